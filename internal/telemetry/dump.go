package telemetry

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// HttpDump writes every exchange of a resty client to its own file, which
// is how pages that fail to parse are inspected after the fact.
type HttpDump struct {
	directory string
	counter   *uint64
}

// NewHttpDump creates dir if needed, files already in it are overwritten as
// new exchanges are dumped.
func NewHttpDump(dir string) (HttpDump, error) {
	err := os.MkdirAll(dir, 0777)
	if err != nil {
		return HttpDump{}, err
	}
	var counter uint64
	return HttpDump{directory: dir, counter: &counter}, nil
}

// Attach dumps every response the client receives.
func (d HttpDump) Attach(client *resty.Client) {
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := atomic.AddUint64(d.counter, 1)
		d.write(fmt.Sprintf("%04d.txt", id), formatExchange(res))
		return nil
	})
}

func (d HttpDump) write(name, contents string) {
	err := os.WriteFile(filepath.Join(d.directory, name), []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write http dump", "name", name, "err", err)
	}
}

func formatHeaders(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out strings.Builder
	for _, k := range keys {
		for _, v := range headers[k] {
			fmt.Fprintf(&out, "%s: %s\n", k, v)
		}
	}
	return strings.TrimSuffix(out.String(), "\n")
}

const exchangeTemplate = `---- REQUEST ----

%s %s

%s

---- RESPONSE ----

%d %s

%s

%s`

func formatExchange(res *resty.Response) string {
	var requestHeaders string
	if res.Request.RawRequest != nil {
		requestHeaders = formatHeaders(res.Request.RawRequest.Header)
	}

	responseUrl := res.Request.URL
	if res.RawResponse != nil {
		redirected, err := res.RawResponse.Location()
		if err == nil {
			responseUrl = redirected.String()
		}
	}

	return fmt.Sprintf(
		exchangeTemplate,
		res.Request.Method, res.Request.URL,
		requestHeaders,
		res.StatusCode(), responseUrl,
		formatHeaders(res.Header()),
		res.String(),
	)
}
