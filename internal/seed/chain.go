// Package seed provides unpredictable seed sources for puzzle challenges.
package seed

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ChainSource is a blake2b hash chain. Every draw mixes the previous link,
// fresh entropy and the current time, so a seed cannot be known before the
// call that produces it.
type ChainSource struct {
	mu      sync.Mutex
	link    [blake2b.Size256]byte
	entropy io.Reader
	now     func() time.Time
	draws   uint64
}

// NewChainSource creates a chain keyed from crypto/rand.
func NewChainSource() (*ChainSource, error) {
	return newChainSource(rand.Reader, time.Now)
}

func newChainSource(entropy io.Reader, now func() time.Time) (*ChainSource, error) {
	s := &ChainSource{entropy: entropy, now: now}
	if _, err := io.ReadFull(entropy, s.link[:]); err != nil {
		return nil, fmt.Errorf("seed: init chain: %w", err)
	}
	return s, nil
}

// Seed implements domain.SeedSource. It returns a 32-byte seed.
func (s *ChainSource) Seed(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("seed: draw: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var fresh [32]byte
	if _, err := io.ReadFull(s.entropy, fresh[:]); err != nil {
		return nil, fmt.Errorf("seed: draw: %w", err)
	}
	var meta [16]byte
	binary.BigEndian.PutUint64(meta[:8], uint64(s.now().UnixNano()))
	binary.BigEndian.PutUint64(meta[8:], s.draws)

	h, err := blake2b.New256(s.link[:])
	if err != nil {
		return nil, fmt.Errorf("seed: draw: %w", err)
	}
	h.Write(fresh[:])
	h.Write(meta[:])
	copy(s.link[:], h.Sum(nil))
	s.draws++

	out := make([]byte, len(s.link))
	copy(out, s.link[:])
	return out, nil
}

// Draws returns how many seeds have been produced.
func (s *ChainSource) Draws() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draws
}
