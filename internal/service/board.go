package service

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"bgageek-backend/internal/chrono"
	"bgageek-backend/internal/pipeline"
	"bgageek-backend/internal/scrapers/bgg"
)

// Badge is the rendered statistics of a single target.
type Badge struct {
	Target     string        `json:"target"`
	Mode       pipeline.Mode `json:"mode"`
	CatalogUrl string        `json:"catalogUrl"`
	Stats      bgg.Stats     `json:"stats"`
	RenderedAt time.Time     `json:"renderedAt"`
}

// Board is a pipeline.Renderer that keeps the latest badge of every target
// so it can be served to clients.
type Board struct {
	clock chrono.TimeAPI

	mutex  sync.RWMutex
	badges map[string]Badge
}

func NewBoard(clock chrono.TimeAPI) *Board {
	return &Board{
		clock:  clock,
		badges: map[string]Badge{},
	}
}

func (b *Board) Render(_ context.Context, target string, stats bgg.Stats, catalogUrl string, mode pipeline.Mode) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.badges[target] = Badge{
		Target:     target,
		Mode:       mode,
		CatalogUrl: catalogUrl,
		Stats:      stats,
		RenderedAt: b.clock.Now(),
	}
}

// Badges lists the badges whose target starts with prefix, ordered by target.
func (b *Board) Badges(prefix string) []Badge {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	out := []Badge{}
	for target, badge := range b.badges {
		if strings.HasPrefix(target, prefix) {
			out = append(out, badge)
		}
	}
	slices.SortFunc(out, func(a, b Badge) int {
		return strings.Compare(a.Target, b.Target)
	})
	return out
}

// Clear removes every badge.
func (b *Board) Clear() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.badges = map[string]Badge{}
}
