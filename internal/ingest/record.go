package ingest

import (
	"time"

	"github.com/paulmach/orb"
)

// maxEventLen bounds AlertRecord.Event in runes.
const maxEventLen = 255

// Outcome is what the store did with a record.
type Outcome int

const (
	Created Outcome = iota
	Updated
)

func (o Outcome) String() string {
	if o == Updated {
		return "updated"
	}
	return "created"
}

// AlertRecord is one accepted alert, ready for storage. Its identity is
// (SourceID, AlertID).
type AlertRecord struct {
	SourceID        string
	AlertID         string
	Area            orb.MultiPolygon
	CAPData         []byte
	CAPDataModified bool
	IssueTime       time.Time
	ExpireTime      *time.Time
	SourceURL       string
	MsgType         string
	Status          string
	Event           string
	Severity        string
	Urgency         string
	ArchiveKey      string
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
