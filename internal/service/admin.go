package service

import (
	"sort"
	"strings"
	"sync"

	"github.com/alanyoungcy/condex/internal/domain"
)

var _ domain.AdminParams = (*Admin)(nil)

// Admin holds the runtime-adjustable administrative inputs of the exchange.
// An empty allow list admits every non-empty asset.
type Admin struct {
	mu      sync.RWMutex
	paused  bool
	allowed map[domain.AssetType]bool
	feeBps  uint32
}

// NewAdmin creates Admin from configured values.
func NewAdmin(paused bool, allowed []string, feeBps uint32) *Admin {
	set := make(map[domain.AssetType]bool, len(allowed))
	for _, a := range allowed {
		if a = strings.TrimSpace(a); a != "" {
			set[domain.AssetType(a)] = true
		}
	}
	return &Admin{paused: paused, allowed: set, feeBps: feeBps}
}

func (a *Admin) Paused() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.paused
}

func (a *Admin) AssetAllowed(asset domain.AssetType) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.allowed) == 0 || a.allowed[asset]
}

func (a *Admin) FeeRateBps() uint32 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.feeBps
}

// SetPaused flips the pause switch and reports whether it changed.
func (a *Admin) SetPaused(paused bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	changed := a.paused != paused
	a.paused = paused
	return changed
}

// AllowedAssets returns the allow list in sorted order; nil means any asset.
func (a *Admin) AllowedAssets() []domain.AssetType {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.allowed) == 0 {
		return nil
	}
	out := make([]domain.AssetType, 0, len(a.allowed))
	for asset := range a.allowed {
		out = append(out, asset)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
