package bgg

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// the blob is not delimited by anything other than the next GEEK assignment,
// the lazy match stops at the first closing brace followed by it.
var preloadRegex = regexp.MustCompile(`(?s)GEEK\.geekitemPreload\s*=\s*(\{.*?\})\s*;\s*\n\s*GEEK`)

// ExtractStats is Extract with every failure mapped to ok == false.
func ExtractStats(body string) (Stats, bool) {
	stats, err := Extract(body)
	if err != nil {
		return Stats{}, false
	}
	return stats, true
}

// Extract reads the statistics out of the geekitemPreload script of a
// catalog page. The page is never parsed as html.
func Extract(body string) (stats Stats, err error) {
	defer func() {
		r := recover()
		if r != nil {
			stats = Stats{}
			err = fmt.Errorf("bgg: extract: %v", r)
		}
	}()

	groups := preloadRegex.FindStringSubmatch(body)
	if len(groups) < 2 {
		return Stats{}, ErrPreloadNotFound
	}
	blob := groups[1]

	var validate json.RawMessage
	err = json.Unmarshal([]byte(blob), &validate)
	if err != nil {
		return Stats{}, &ParseError{Err: err}
	}

	item := gjson.Get(blob, "item")
	if !item.IsObject() {
		return Stats{}, ErrItemNotFound
	}

	stats = Stats{
		Score:           fixed(item.Get("stats.average"), 1),
		Weight:          fixed(item.Get("stats.avgweight"), 2),
		Rank:            overallRank(item.Get("rankinfo")),
		BestPlayerCount: bestPlayerCount(item),
		Name:            strings.TrimSpace(item.Get("name").String()),
	}
	return stats, nil
}

// number reads a json number or numeric string, zero counts as missing.
func number(value gjson.Result) (float64, bool) {
	switch value.Type {
	case gjson.Number:
		return value.Num, value.Num != 0
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value.Str), 64)
		if err != nil || parsed == 0 {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func fixed(value gjson.Result, decimals int) string {
	n, ok := number(value)
	if !ok {
		return UNKNOWN
	}
	return strconv.FormatFloat(n, 'f', decimals, 64)
}

// overallRankObjectId identifies the overall "Board Game Rank" in rankinfo.
const overallRankObjectId = "1"

func overallRank(rankinfo gjson.Result) string {
	if !rankinfo.IsArray() {
		return UNRANKED
	}
	entries := rankinfo.Array()
	if len(entries) == 0 {
		return UNRANKED
	}

	chosen := entries[0]
	for _, entry := range entries {
		if entry.Get("rankobjectid").String() == overallRankObjectId {
			chosen = entry
			break
		}
	}

	rank := chosen.Get("rank")
	if !rank.Exists() {
		return UNRANKED
	}
	// "Not Ranked" and any other non-numeric value falls through here
	n, err := strconv.Atoi(strings.TrimSpace(rank.String()))
	if err != nil || n <= 0 {
		return UNRANKED
	}
	return strconv.Itoa(n)
}

func bestPlayerCount(item gjson.Result) string {
	best := ""
	var maxVotes int64

	// ForEach walks the object in document order, which decides ties.
	item.Get("polls.userplayers").ForEach(func(label, options gjson.Result) bool {
		if !options.IsArray() {
			return true
		}
		for _, option := range options.Array() {
			if option.Get("value").String() != "Best" {
				continue
			}
			votes := option.Get("numvotes").Int()
			if votes > maxVotes {
				maxVotes = votes
				best = label.String()
			}
			break
		}
		return true
	})
	if best != "" {
		return strings.TrimSuffix(strings.TrimSpace(best), "+")
	}

	minPlayers := item.Get("minplayers").Int()
	maxPlayers := item.Get("maxplayers").Int()
	if minPlayers <= 0 || maxPlayers <= 0 {
		return UNKNOWN
	}
	if minPlayers == maxPlayers {
		return strconv.FormatInt(minPlayers, 10)
	}
	return fmt.Sprintf("%d-%d", minPlayers, maxPlayers)
}
