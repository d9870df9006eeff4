package feed

import (
	"errors"
	"fmt"
	"sort"
)

// Format identifies a source dialect.
type Format int

const (
	FormatAtom Format = iota + 1
	FormatMoWaS
	FormatNINA
	FormatEDXL
	FormatDWDZip
	FormatAlertSwiss
	FormatLUAlert
)

var formatNames = map[Format]string{
	FormatAtom:       "rss or atom",
	FormatMoWaS:      "de-mowas",
	FormatNINA:       "de-nina",
	FormatEDXL:       "edxl",
	FormatDWDZip:     "DWD-Zip",
	FormatAlertSwiss: "ch-alertswiss",
	FormatLUAlert:    "lu-alert",
}

// ErrUnknownFormat is returned for format names without an adapter.
var ErrUnknownFormat = errors.New("unknown feed format")

// ParseFormat maps a catalogue format name to a Format.
func ParseFormat(name string) (Format, error) {
	for f, n := range formatNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// String returns the catalogue name of the format.
func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// FormatNames lists every known format name in sorted order.
func FormatNames() []string {
	names := make([]string, 0, len(formatNames))
	for _, n := range formatNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
