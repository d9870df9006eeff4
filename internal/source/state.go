package source

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxWarningsLen bounds the stored warnings text.
const MaxWarningsLen = 255

// State is what the orchestrator remembers about a source between cycles.
type State struct {
	SourceID      string
	LastETag      string
	FetchStatus   bool
	FetchDuration time.Duration
	MissingGeo    bool
	Warnings      string
	// LatestPublished is the newest sent time accepted so far. Zero if none.
	LatestPublished time.Time
	UpdatedAt       time.Time
}

// TruncateWarnings renders warnings as a list and cuts it to MaxWarningsLen
// bytes without splitting a rune.
func TruncateWarnings(warnings []string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, w := range warnings {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Quote(w))
		if b.Len() > MaxWarningsLen {
			break
		}
	}
	b.WriteByte(']')

	s := b.String()
	if len(s) <= MaxWarningsLen {
		return s
	}
	cut := MaxWarningsLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
