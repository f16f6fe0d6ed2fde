// client.go contains the http side of talking to boardgamegeek: resolving a
// game name to a catalog url through a search engine and fetching pages.

package bgg

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"bgageek-backend/internal/assert"
	"bgageek-backend/internal/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

const (
	report_client_resolve    = "client.resolve"
	report_client_fetch_page = "client.fetch-page"
)

const (
	DefaultSearchEndpoint = "https://html.duckduckgo.com/html/"
	DefaultCatalogBaseUrl = "https://boardgamegeek.com"
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

	// searchScope restricts search results to catalog game pages.
	searchScope = "site:boardgamegeek.com/boardgame"
)

type ClientOptions struct {
	// SearchEndpoint is the search engine's html results page.
	SearchEndpoint   string
	// CatalogBaseUrl is prepended to resolved catalog paths.
	CatalogBaseUrl   string
	UserAgent        string
	Timeout          time.Duration
	CloudflareBypass bool
	// Dump, when set, keeps a copy of every response for debugging.
	Dump             *telemetry.HttpDump
}

type Client struct {
	http           *resty.Client
	searchEndpoint string
	catalogBaseUrl string
	tel            telemetry.API
}

func NewClient(opts ClientOptions, tel telemetry.API) *Client {
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("bgg", tel)

	if opts.SearchEndpoint == "" {
		opts.SearchEndpoint = DefaultSearchEndpoint
	}
	if opts.CatalogBaseUrl == "" {
		opts.CatalogBaseUrl = DefaultCatalogBaseUrl
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 30
	}

	httpClient := resty.New()
	if opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}
	httpClient.SetHeader("user-agent", opts.UserAgent)
	httpClient.SetTimeout(opts.Timeout)

	telemetry.InstrumentResty(httpClient, tel)
	if opts.Dump != nil {
		opts.Dump.Attach(httpClient)
	}

	return &Client{
		http:           httpClient,
		searchEndpoint: opts.SearchEndpoint,
		catalogBaseUrl: strings.TrimRight(opts.CatalogBaseUrl, "/"),
		tel:            tel,
	}
}

// CatalogUrl is the canonical catalog url of a game id.
func (c *Client) CatalogUrl(id string) string {
	return fmt.Sprintf("%s/boardgame/%s", c.catalogBaseUrl, id)
}

var catalogUrlRegex = regexp.MustCompile(`boardgamegeek\.com/boardgame/(\d+)`)

// Resolve finds the catalog url of the game named query. The search results
// are scanned as raw text for the first catalog url, their markup is not
// parsed. Any failure, including network failures, results in ErrNotFound.
func (c *Client) Resolve(ctx context.Context, query string) (string, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("q", fmt.Sprintf("%s %s", searchScope, query)).
		Get(c.searchEndpoint)
	if err != nil {
		c.tel.ReportWarning(
			report_client_resolve,
			fmt.Errorf("search request: %w", err),
			query,
		)
		return "", ErrNotFound
	}
	if res.StatusCode() != http.StatusOK {
		c.tel.ReportWarning(
			report_client_resolve,
			fmt.Errorf("search returned status %d", res.StatusCode()),
			query,
		)
	}

	groups := catalogUrlRegex.FindStringSubmatch(res.String())
	if len(groups) < 2 {
		return "", ErrNotFound
	}
	return c.CatalogUrl(groups[1]), nil
}

// FetchPage gets the body of a page. Only a 200 is a success, other statuses
// produce an *HTTPError and transport failures a *NetworkError.
func (c *Client) FetchPage(ctx context.Context, url string) (string, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return "", &NetworkError{Url: url, Err: err}
	}
	if res.StatusCode() != http.StatusOK {
		c.tel.ReportDebug(report_client_fetch_page, url, res.Status())
		return "", &HTTPError{Url: url, Status: res.StatusCode()}
	}
	return res.String(), nil
}
