package pipeline

import (
	"context"

	"bgageek-backend/internal/scrapers/bgg"
)

// Mode is how a badge should be displayed for a task.
type Mode string

const (
	// MODE_LIST is a game card in a list of games.
	MODE_LIST Mode = "list"
	// MODE_PANEL is the header of a single game's page.
	MODE_PANEL Mode = "panel"
)

// Task is a game detected on a page, it lives for one processing cycle.
type Task struct {
	// ExternalID is the platform-local identifier of the game, it is used
	// as both the cache key and the dedup key.
	ExternalID  string `json:"externalId"`
	RawName     string `json:"rawName"`
	// DisplayName is RawName with the platform's decorations stripped,
	// filled in by Enqueue.
	DisplayName string `json:"displayName"`
	// Target is an opaque reference to where the badge goes, it is passed
	// through to the Renderer untouched.
	Target      string `json:"target"`
	Mode        Mode   `json:"mode"`
}

// Renderer paints a badge for a resolved game.
type Renderer interface {
	Render(ctx context.Context, target string, stats bgg.Stats, catalogUrl string, mode Mode)
}

// RendererFunc adapts a function to a Renderer.
type RendererFunc func(ctx context.Context, target string, stats bgg.Stats, catalogUrl string, mode Mode)

func (f RendererFunc) Render(ctx context.Context, target string, stats bgg.Stats, catalogUrl string, mode Mode) {
	f(ctx, target, stats, catalogUrl, mode)
}

// Scanner detects games on pages.
type Scanner interface {
	// Scan returns the games that have not been scanned yet.
	Scan(ctx context.Context) ([]Task, error)
	// Reset forgets which games have already been scanned.
	Reset()
}

// Resolver maps a game name to its catalog url.
type Resolver interface {
	Resolve(ctx context.Context, query string) (string, error)
}

// Fetcher retrieves a page body.
type Fetcher interface {
	FetchPage(ctx context.Context, url string) (string, error)
}
