package bgg

import (
	"errors"
	"fmt"
	"net/http"
)

// Stats is the normalized statistics record of a catalog entry.
//
// Score and Weight are fixed-point decimal strings or "?", Rank is a positive
// integer string or "-", BestPlayerCount is "3", "2-5" or "?".
type Stats struct {
	Score           string `json:"score"`
	Rank            string `json:"rank"`
	Weight          string `json:"weight"`
	BestPlayerCount string `json:"bestPlayerCount"`
	// Name is the catalog's own name of the game, when known.
	Name string `json:"name,omitempty"`
}

const (
	UNKNOWN  = "?"
	UNRANKED = "-"
)

// ErrNotFound is returned by Resolve when no catalog entry could be found.
var ErrNotFound = errors.New("bgg: catalog entry not found")

// ErrPreloadNotFound is returned by Extract when the page has no preload blob.
var ErrPreloadNotFound = errors.New("bgg: geekitemPreload not found")

// ErrItemNotFound is returned by Extract when the preload blob has no item.
var ErrItemNotFound = errors.New("bgg: preload has no item")

// HTTPError is a response that came back with a status other than 200.
type HTTPError struct {
	Url    string
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Url)
}

// NetworkError is a request that failed before a response was received.
type NetworkError struct {
	Url string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s: %s", e.Url, e.Err.Error())
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ParseError is a preload blob that is not valid JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse geekitemPreload: %s", e.Err.Error())
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is an HTTP 404.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound
}
