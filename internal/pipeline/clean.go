package pipeline

import (
	"regexp"
	"strings"
)

var (
	playPrefix   = regexp.MustCompile(`(?i)^(Spiele|Play|Jugar|Jouer)\s+`)
	onlineSuffix = regexp.MustCompile(`(?i)\s+(online|en ligne|im Browser).*$`)
	siteSuffix   = regexp.MustCompile(` • Board Game Arena$`)
)

// CleanTitle strips the localized "Play ... online" decorations the platform
// puts around game names.
func CleanTitle(raw string) string {
	s := playPrefix.ReplaceAllString(raw, "")
	s = onlineSuffix.ReplaceAllString(s, "")
	s = siteSuffix.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
