package commands

import (
	"context"
	"os"
	"sync"

	"bgageek-backend/internal/pipeline"
	"bgageek-backend/internal/scrapers/bgg"

	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

// tableRenderer collects badges as table rows, targets are printed as-is.
type tableRenderer struct {
	mutex sync.Mutex
	rows  []table.Row
}

func (r *tableRenderer) Render(_ context.Context, target string, stats bgg.Stats, catalogUrl string, mode pipeline.Mode) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.rows = append(r.rows, table.Row{
		target,
		stats.Name,
		stats.Score,
		stats.Rank,
		stats.Weight,
		stats.BestPlayerCount,
		catalogUrl,
	})
}

func (r *tableRenderer) Print() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	t := newTable()
	t.AppendHeader(table.Row{"Target", "BGG Name", "Score", "Rank", "Weight", "Best", "BGG"})
	t.AppendRows(r.rows)
	t.Render()
}
