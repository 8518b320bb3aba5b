package handler

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/condex/internal/domain"
)

const (
	defaultProposalLimit = 50
	maxProposalLimit     = 500
)

// ProposalHandler serves the proposal lifecycle.
type ProposalHandler struct {
	exchange Exchange
	logger   *slog.Logger
}

// NewProposalHandler creates a ProposalHandler.
func NewProposalHandler(ex Exchange, logger *slog.Logger) *ProposalHandler {
	return &ProposalHandler{exchange: ex, logger: logHandler(logger, "proposal")}
}

type createProposalRequest struct {
	Inputs    []domain.Item    `json:"inputs"`
	Outputs   []domain.Item    `json:"outputs"`
	Condition domain.Condition `json:"condition"`
}

type solveRequest struct {
	Solution common.Hash `json:"solution"`
}

type conditionResponse struct {
	ID        uint64           `json:"id"`
	Met       bool             `json:"met"`
	Condition domain.Condition `json:"condition"`
}

// CreateProposal escrows the inputs and records a new open proposal.
// POST /api/proposals
func (h *ProposalHandler) CreateProposal(w http.ResponseWriter, r *http.Request) {
	acct, ok := callerAccount(w, r)
	if !ok {
		return
	}
	var req createProposalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.exchange.Propose(r.Context(), acct, req.Inputs, req.Outputs, req.Condition)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetProposal returns a proposal in any state.
// GET /api/proposals/{id}
func (h *ProposalHandler) GetProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.exchange.Proposal(id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListProposals pages through open proposals by ascending id.
// GET /api/proposals?after=&limit=
func (h *ProposalHandler) ListProposals(w http.ResponseWriter, r *http.Request) {
	after, err := queryUint(r, "after", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryUint(r, "limit", defaultProposalLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit == 0 || limit > maxProposalLimit {
		limit = maxProposalLimit
	}

	proposals := h.exchange.ListOpenProposals(after, int(limit))
	if proposals == nil {
		proposals = []domain.Proposal{}
	}
	resp := map[string]any{"proposals": proposals}
	if len(proposals) == int(limit) {
		resp["next_after"] = proposals[len(proposals)-1].ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelProposal refunds the escrowed inputs to the proposer.
// DELETE /api/proposals/{id}
func (h *ProposalHandler) CancelProposal(w http.ResponseWriter, r *http.Request) {
	acct, ok := callerAccount(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.exchange.Cancel(r.Context(), id, acct)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetCondition reports whether the proposal's condition currently holds.
// GET /api/proposals/{id}/condition
func (h *ProposalHandler) GetCondition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.exchange.Proposal(id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	met, err := h.exchange.IsMet(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conditionResponse{ID: id, Met: met, Condition: p.Condition})
}

// ExecuteProposal settles an open proposal whose condition holds.
// POST /api/proposals/{id}/execute
func (h *ProposalHandler) ExecuteProposal(w http.ResponseWriter, r *http.Request) {
	acct, ok := callerAccount(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.exchange.Execute(r.Context(), id, acct)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// SolvePuzzle submits a solution to the proposal's challenge.
// POST /api/proposals/{id}/solve
func (h *ProposalHandler) SolvePuzzle(w http.ResponseWriter, r *http.Request) {
	acct, ok := callerAccount(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req solveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pz, err := h.exchange.Solve(r.Context(), id, acct, req.Solution)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pz)
}

// GetPuzzle returns the challenge attached to a puzzle proposal.
// GET /api/proposals/{id}/puzzle
func (h *ProposalHandler) GetPuzzle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	pz, err := h.exchange.Puzzle(id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pz)
}
