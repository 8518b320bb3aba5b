package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/condex/internal/domain"
	"github.com/alanyoungcy/condex/internal/store/mem"
)

type memBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	multipart []string
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	m.mu.Lock()
	m.multipart = append(m.multipart, path)
	m.mu.Unlock()
	return m.Put(ctx, path, data, "")
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	return out, nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

func (m *memBlobs) lines(t *testing.T, path string) []domain.Proposal {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Proposal
	sc := bufio.NewScanner(bytes.NewReader(m.objects[path]))
	for sc.Scan() {
		var p domain.Proposal
		require.NoError(t, json.Unmarshal(sc.Bytes(), &p))
		out = append(out, p)
	}
	return out
}

func settledAt(id uint64, at time.Time) domain.Proposal {
	return domain.Proposal{
		ID:        id,
		Proposer:  "alice",
		Status:    domain.ProposalExecuted,
		CreatedAt: at.Add(-time.Hour),
		SettledAt: &at,
	}
}

func TestArchiveProposalsByDay(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	blobs := newMemBlobs()
	props := mem.NewProposalStore()
	audit := mem.NewAuditStore()
	a := NewArchiver(blobs, blobs, props, audit, slog.New(slog.NewTextHandler(io.Discard, nil)))

	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	require.NoError(props.Upsert(ctx, settledAt(1, day1)))
	require.NoError(props.Upsert(ctx, settledAt(2, day1.Add(time.Hour))))
	require.NoError(props.Upsert(ctx, settledAt(3, day2)))
	require.NoError(props.Upsert(ctx, settledAt(4, day2.Add(72*time.Hour))))

	n, err := a.ArchiveProposals(ctx, day2.Add(time.Hour))
	require.NoError(err)
	require.EqualValues(3, n)

	require.Len(blobs.lines(t, "archive/proposals/2026-03-01.jsonl"), 2)
	require.Len(blobs.lines(t, "archive/proposals/2026-03-02.jsonl"), 1)

	n, err = a.ArchiveProposals(ctx, day2.Add(time.Hour))
	require.NoError(err)
	require.Zero(n)

	entries, err := audit.List(ctx, domain.ListOpts{})
	require.NoError(err)
	require.Len(entries, 1)
	require.Equal("archive.proposals", entries[0].Event)
}

func TestArchiveProposalsAppendsToExistingDay(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	blobs := newMemBlobs()
	props := mem.NewProposalStore()
	a := NewArchiver(blobs, blobs, props, mem.NewAuditStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	day := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(props.Upsert(ctx, settledAt(1, day)))
	_, err := a.ArchiveProposals(ctx, day.Add(time.Hour))
	require.NoError(err)

	require.NoError(props.Upsert(ctx, settledAt(2, day.Add(2*time.Hour))))
	_, err = a.ArchiveProposals(ctx, day.Add(3*time.Hour))
	require.NoError(err)

	rows := blobs.lines(t, ProposalsPath(day))
	require.Len(rows, 2)
	require.EqualValues(1, rows[0].ID)
	require.EqualValues(2, rows[1].ID)
}

func TestArchiveSnapshot(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	blobs := newMemBlobs()
	a := NewArchiver(blobs, blobs, mem.NewProposalStore(), mem.NewAuditStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	path, err := a.ArchiveSnapshot(ctx, domain.Snapshot{Seq: 42})
	require.NoError(err)
	require.Equal("archive/snapshots/42.json", path)
	require.Empty(blobs.multipart)

	a.multipartThreshold = 1
	path, err = a.ArchiveSnapshot(ctx, domain.Snapshot{Seq: 43})
	require.NoError(err)
	require.Equal([]string{path}, blobs.multipart)

	infos, err := blobs.List(ctx, "archive/snapshots/")
	require.NoError(err)
	require.Len(infos, 2)
}

func TestLatestSnapshotSeq(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	blobs := newMemBlobs()
	a := NewArchiver(blobs, blobs, mem.NewProposalStore(), mem.NewAuditStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, found, err := a.LatestSnapshotSeq(ctx)
	require.NoError(err)
	require.False(found)

	for _, seq := range []uint64{7, 120, 19} {
		_, err := a.ArchiveSnapshot(ctx, domain.Snapshot{Seq: seq})
		require.NoError(err)
	}
	blobs.objects["archive/snapshots/notes.txt"] = []byte("x")
	blobs.objects["archive/snapshots/900.json.tmp"] = []byte("x")

	seq, found, err := a.LatestSnapshotSeq(ctx)
	require.NoError(err)
	require.True(found)
	require.Equal(uint64(120), seq)
}

func TestNormaliseEndpoint(t *testing.T) {
	require := require.New(t)
	require.Equal("http://localhost:9000", normaliseEndpoint("localhost:9000", false))
	require.Equal("https://s3.example.com", normaliseEndpoint("s3.example.com", true))
	require.Equal("http://minio:9000", normaliseEndpoint("http://minio:9000", true))
}
