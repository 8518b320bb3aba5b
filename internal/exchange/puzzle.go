package exchange

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/condex/internal/domain"
)

// EqualityVerifier accepts a solution only when it equals the challenge. It
// stands in for verifiable delay function proof checking.
type EqualityVerifier struct{}

// Verify implements domain.ProofVerifier.
func (EqualityVerifier) Verify(challenge, solution common.Hash) bool {
	return challenge == solution
}

// issueChallenge derives keccak256(uint64be(id) || seed) from a freshly drawn
// seed. Callers hold e.mu.
func (e *Engine) issueChallenge(ctx context.Context, id uint64) (common.Hash, error) {
	seed, err := e.seeds.Seed(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("draw seed: %w", err)
	}
	if len(seed) == 0 {
		return common.Hash{}, errors.New("draw seed: empty seed")
	}
	return ChallengeFor(id, seed), nil
}

// ChallengeFor is the deterministic challenge of proposal id under seed.
func ChallengeFor(id uint64, seed []byte) common.Hash {
	var idBytes [8]byte
	binary.BigEndian.PutUint64(idBytes[:], id)
	return crypto.Keccak256Hash(idBytes[:], seed)
}

// Solve records the first accepted solution of a proposal's puzzle. Every
// later submission, including a repeat of the winning value, fails with
// ErrAlreadySolved.
func (e *Engine) Solve(id uint64, solver domain.Account, solution common.Hash) (domain.Puzzle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkWritable(); err != nil {
		return domain.Puzzle{}, fmt.Errorf("exchange: solve %d: %w", id, err)
	}
	if err := checkAccount(solver); err != nil {
		return domain.Puzzle{}, fmt.Errorf("exchange: solve %d: %w", id, err)
	}
	p, ok := e.proposals[id]
	if !ok {
		return domain.Puzzle{}, fmt.Errorf("exchange: solve %d: %w", id, domain.ErrProposalNotFound)
	}
	pz, ok := e.puzzles[id]
	if !ok {
		return domain.Puzzle{}, fmt.Errorf("exchange: solve %d: %w", id, domain.ErrNoPuzzle)
	}
	if pz.Solved {
		return domain.Puzzle{}, fmt.Errorf("exchange: solve %d: %w", id, domain.ErrAlreadySolved)
	}
	if p.Status != domain.ProposalOpen {
		return domain.Puzzle{}, fmt.Errorf("exchange: solve %d: %w", id, domain.ErrAlreadySettled)
	}
	if !e.verifier.Verify(pz.Challenge, solution) {
		return domain.Puzzle{}, fmt.Errorf("exchange: solve %d: %w", id, domain.ErrWrongSolution)
	}

	pz.Solved = true
	pz.Solver = solver
	pz.Solution = solution

	e.emit(domain.Event{
		Type:       domain.EventPuzzleSolved,
		ProposalID: id,
		Account:    solver,
		Detail:     map[string]any{"solution": solution.Hex()},
	})
	return *pz, nil
}

// Puzzle returns the puzzle attached to proposal id.
func (e *Engine) Puzzle(id uint64) (domain.Puzzle, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pz, ok := e.puzzles[id]
	if !ok {
		if _, exists := e.proposals[id]; !exists {
			return domain.Puzzle{}, fmt.Errorf("exchange: puzzle %d: %w", id, domain.ErrProposalNotFound)
		}
		return domain.Puzzle{}, fmt.Errorf("exchange: puzzle %d: %w", id, domain.ErrNoPuzzle)
	}
	return *pz, nil
}
