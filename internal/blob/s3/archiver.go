package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/condex/internal/domain"
)

const (
	contentTypeJSONL = "application/x-ndjson"
	contentTypeJSON  = "application/json"

	// archiveBatch bounds how many proposals one query pulls.
	archiveBatch = 500

	snapshotPrefix = "archive/snapshots/"
)

var _ domain.Archiver = (*ArchiveImpl)(nil)

// ArchiveImpl copies settled proposals and checkpoints to object storage.
// Archived proposals are only stamped in the projection, never deleted.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	reader    domain.BlobReader
	proposals domain.ProposalStore
	audit     domain.AuditStore
	logger    *slog.Logger

	// multipartThreshold is the snapshot size above which uploads go
	// through the multipart manager.
	multipartThreshold int
}

// NewArchiver creates an archiver.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	proposals domain.ProposalStore,
	audit domain.AuditStore,
	logger *slog.Logger,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:             writer,
		reader:             reader,
		proposals:          proposals,
		audit:              audit,
		logger:             logger.With(slog.String("component", "archiver")),
		multipartThreshold: int(minPartSize),
	}
}

// ArchiveProposals moves every unarchived proposal settled before the cutoff
// into per-day JSONL files at archive/proposals/YYYY-MM-DD.jsonl. A day that
// already has a file gets the new rows appended to its existing contents.
func (a *ArchiveImpl) ArchiveProposals(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for {
		batch, err := a.proposals.ListSettledBefore(ctx, before, archiveBatch)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive proposals query: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for _, day := range groupBySettledDay(batch) {
			if err := a.appendDay(ctx, day.path, day.rows); err != nil {
				return total, err
			}
			ids := make([]uint64, len(day.rows))
			for i, p := range day.rows {
				ids[i] = p.ID
			}
			if err := a.proposals.MarkArchived(ctx, ids); err != nil {
				return total, fmt.Errorf("s3blob: archive proposals mark: %w", err)
			}
			total += int64(len(day.rows))
		}

		if len(batch) < archiveBatch {
			break
		}
	}

	if total == 0 {
		return 0, nil
	}
	a.logger.InfoContext(ctx, "archiver: proposals archived",
		slog.Int64("count", total),
		slog.Time("before", before),
	)
	if err := a.audit.Log(ctx, "archive.proposals", map[string]any{
		"count":  total,
		"before": before.UTC().Format(time.RFC3339),
	}); err != nil {
		return total, fmt.Errorf("s3blob: archive proposals audit: %w", err)
	}
	return total, nil
}

func (a *ArchiveImpl) appendDay(ctx context.Context, path string, rows []domain.Proposal) error {
	var buf bytes.Buffer

	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("s3blob: archive proposals probe %s: %w", path, err)
	}
	if exists {
		body, err := a.reader.Get(ctx, path)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("s3blob: archive proposals read %s: %w", path, err)
		}
		if body != nil {
			_, err = io.Copy(&buf, body)
			body.Close()
			if err != nil {
				return fmt.Errorf("s3blob: archive proposals read %s: %w", path, err)
			}
		}
	}

	if err := writeJSONL(&buf, rows); err != nil {
		return fmt.Errorf("s3blob: archive proposals marshal: %w", err)
	}
	if err := a.writer.Put(ctx, path, &buf, contentTypeJSONL); err != nil {
		return fmt.Errorf("s3blob: archive proposals upload: %w", err)
	}
	return nil
}

// ArchiveSnapshot uploads snap to archive/snapshots/<seq>.json and returns
// the object path.
func (a *ArchiveImpl) ArchiveSnapshot(ctx context.Context, snap domain.Snapshot) (string, error) {
	body, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive snapshot marshal: %w", err)
	}

	path := SnapshotPath(snap.Seq)
	if len(body) > a.multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(body), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(body), contentTypeJSON)
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive snapshot upload: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.snapshot", map[string]any{
		"path":  path,
		"seq":   snap.Seq,
		"bytes": len(body),
	}); err != nil {
		return path, fmt.Errorf("s3blob: archive snapshot audit: %w", err)
	}
	return path, nil
}

// LatestSnapshotSeq lists archive/snapshots/ and returns the highest seq
// found. Objects not named <seq>.json are ignored.
func (a *ArchiveImpl) LatestSnapshotSeq(ctx context.Context) (uint64, bool, error) {
	infos, err := a.reader.List(ctx, snapshotPrefix)
	if err != nil {
		return 0, false, fmt.Errorf("s3blob: latest snapshot: %w", err)
	}
	var (
		latest uint64
		found  bool
	)
	for _, info := range infos {
		name, ok := strings.CutPrefix(info.Path, snapshotPrefix)
		if !ok {
			continue
		}
		name, ok = strings.CutSuffix(name, ".json")
		if !ok {
			continue
		}
		seq, err := strconv.ParseUint(name, 10, 64)
		if err != nil {
			continue
		}
		if !found || seq > latest {
			latest, found = seq, true
		}
	}
	return latest, found, nil
}

// ProposalsPath is the archive object holding proposals settled on day.
func ProposalsPath(day time.Time) string {
	return "archive/proposals/" + day.UTC().Format("2006-01-02") + ".jsonl"
}

// SnapshotPath is the archive object for the checkpoint taken at seq.
func SnapshotPath(seq uint64) string {
	return fmt.Sprintf("%s%d.json", snapshotPrefix, seq)
}

type dayBatch struct {
	path string
	rows []domain.Proposal
}

func groupBySettledDay(ps []domain.Proposal) []dayBatch {
	byPath := map[string][]domain.Proposal{}
	for _, p := range ps {
		if p.SettledAt == nil {
			continue
		}
		path := ProposalsPath(*p.SettledAt)
		byPath[path] = append(byPath[path], p)
	}
	out := make([]dayBatch, 0, len(byPath))
	for path, rows := range byPath {
		out = append(out, dayBatch{path: path, rows: rows})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

func writeJSONL[T any](w io.Writer, records []T) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return nil
}
