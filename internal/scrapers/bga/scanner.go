// Package bga detects games on boardgamearena pages.
package bga

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"bgageek-backend/internal/assert"
	"bgageek-backend/internal/htmlutil"
	"bgageek-backend/internal/pipeline"
	"bgageek-backend/internal/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const (
	report_scanner_scan      = "scanner.scan"
	report_scanner_scan_page = "scanner.scan-page"
)

type ScannerOptions struct {
	// Pages are the urls fetched on every Scan.
	Pages     []string
	UserAgent string
	Timeout   time.Duration
	Dump      *telemetry.HttpDump
}

// Scanner fetches list and panel pages and turns the games on them into
// tasks. Every game it returns is marked as scanned and not returned again
// until Reset.
type Scanner struct {
	http  *resty.Client
	pages []string
	tel   telemetry.API

	mutex   sync.Mutex
	scanned map[string]struct{}
}

func NewScanner(opts ScannerOptions, tel telemetry.API) *Scanner {
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("bga", tel)

	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 30
	}

	httpClient := resty.New()
	if opts.UserAgent != "" {
		httpClient.SetHeader("user-agent", opts.UserAgent)
	}
	httpClient.SetTimeout(opts.Timeout)
	telemetry.InstrumentResty(httpClient, tel)
	if opts.Dump != nil {
		opts.Dump.Attach(httpClient)
	}

	return &Scanner{
		http:    httpClient,
		pages:   opts.Pages,
		tel:     tel,
		scanned: map[string]struct{}{},
	}
}

func (s *Scanner) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.scanned = map[string]struct{}{}
}

// Scan fetches every configured page, pages that fail are reported and
// skipped.
func (s *Scanner) Scan(ctx context.Context) ([]pipeline.Task, error) {
	var tasks []pipeline.Task
	var errList []error
	for _, page := range s.pages {
		found, err := s.ScanUrl(ctx, page)
		if err != nil {
			s.tel.ReportBroken(report_scanner_scan, err, page)
			errList = append(errList, err)
			continue
		}
		tasks = append(tasks, found...)
	}
	return tasks, errors.Join(errList...)
}

// ScanUrl fetches a single page and scans it.
func (s *Scanner) ScanUrl(ctx context.Context, page string) ([]pipeline.Task, error) {
	res, err := s.http.R().
		SetContext(ctx).
		Get(page)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", page, err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("fetch %s: %s", page, res.Status())
	}
	return s.ScanPage(page, res.Body())
}

// ScanPage scans an already fetched page, the kind of page is decided by its url.
func (s *Scanner) ScanPage(page string, body []byte) ([]pipeline.Task, error) {
	pageUrl, err := url.Parse(page)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err != nil {
		s.tel.ReportBroken(
			report_scanner_scan_page,
			fmt.Errorf("parse html: %w", err),
			page,
		)
		return nil, err
	}

	var found []pipeline.Task
	if strings.Contains(page, "gamelist") {
		found = append(found, ParseGameList(pageUrl, doc)...)
	}
	if strings.Contains(page, "gamepanel") {
		task, ok := ParseGamePanel(pageUrl, doc)
		if ok {
			found = append(found, task)
		}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	var fresh []pipeline.Task
	for _, task := range found {
		_, seen := s.scanned[task.Target]
		if seen {
			continue
		}
		s.scanned[task.Target] = struct{}{}
		fresh = append(fresh, task)
	}

	s.tel.ReportDebug("scanned page", page, len(found), len(fresh))
	return fresh, nil
}

var capitalLetter = regexp.MustCompile(`([A-Z])`)
var digit = regexp.MustCompile(`[0-9]`)

// nameFromId guesses a display name from an id like "sevenwondersduel" or
// "TicketToRide2", name cleaning trims whatever whitespace is left over.
func nameFromId(id string) string {
	name := capitalLetter.ReplaceAllString(id, " $1")
	return digit.ReplaceAllString(name, " ")
}

func target(pageUrl *url.URL, id string) string {
	return fmt.Sprintf("%s#%s", pageUrl.String(), id)
}

// ParseGameList finds the game cards of a list page.
func ParseGameList(pageUrl *url.URL, doc *goquery.Document) []pipeline.Task {
	var tasks []pipeline.Task
	doc.Find(".bga-game-item").Each(func(_ int, card *goquery.Selection) {
		link := card.AttrOr("href", "")
		if link == "" {
			return
		}
		_, id, ok := strings.Cut(link, "game=")
		if !ok || id == "" {
			return
		}

		name := ""
		nameEl := card.Find(".gamename, .text-center").First()
		if len(nameEl.Nodes) > 0 {
			name = htmlutil.NodeText(nameEl.Nodes[0])
		}
		if name == "" {
			name = nameFromId(id)
		}

		tasks = append(tasks, pipeline.Task{
			ExternalID: id,
			RawName:    name,
			Target:     target(pageUrl, id),
			Mode:       pipeline.MODE_LIST,
		})
	})
	return tasks
}

// ParseGamePanel reads the game of a panel page, the game's id comes from
// the page url and its name from the document title.
func ParseGamePanel(pageUrl *url.URL, doc *goquery.Document) (pipeline.Task, bool) {
	id := pageUrl.Query().Get("game")
	if id == "" {
		return pipeline.Task{}, false
	}
	header := doc.Find(".panel-header")
	if header.Length() == 0 {
		return pipeline.Task{}, false
	}
	if header.Find(".flex.justify-start.items-center").Length() == 0 {
		return pipeline.Task{}, false
	}

	title := htmlutil.CleanText(doc.Find("title").First().Text())
	name, _, _ := strings.Cut(title, " • ")

	return pipeline.Task{
		ExternalID: id,
		RawName:    strings.TrimSpace(name),
		Target:     target(pageUrl, id),
		Mode:       pipeline.MODE_PANEL,
	}, true
}
