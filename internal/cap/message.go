package cap

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// Namespace is the CAP 1.2 XML namespace.
	Namespace = "urn:oasis:names:tc:emergency:cap:1.2"

	namespace11        = "urn:oasis:names:tc:emergency:cap:1.1"
	namespaceLUProfile = "urn:oasis:names:tc:emergency:cap:1.2:profile:cap-lu:1.0"

	// DefaultLanguage applies to info blocks without a language element.
	DefaultLanguage = "en-US"
)

// ErrMissingField is returned when a required CAP element is absent or unusable.
var ErrMissingField = errors.New("missing required CAP field")

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// Message is a parsed CAP alert message.
type Message struct {
	root *Element
	// Modified is true when the document was rewritten on input (namespace
	// upgrade) or later changed by the caller, e.g. by geocode expansion.
	Modified bool
}

// UpgradeNamespace rewrites CAP 1.1 and LU profile namespaces to CAP 1.2 by
// literal substitution and reports whether anything changed.
func UpgradeNamespace(data []byte) ([]byte, bool) {
	changed := false
	// The LU profile URI starts with the 1.2 URI, so it goes first.
	if bytes.Contains(data, []byte(namespaceLUProfile)) {
		data = bytes.ReplaceAll(data, []byte(namespaceLUProfile), []byte(Namespace))
		changed = true
	}
	if bytes.Contains(data, []byte(namespace11)) {
		data = bytes.ReplaceAll(data, []byte(namespace11), []byte(Namespace))
		changed = true
	}
	return data, changed
}

// Parse upgrades the namespace and parses a CAP document. The root element
// must be a CAP 1.2 alert.
func Parse(data []byte) (*Message, error) {
	data, upgraded := UpgradeNamespace(data)
	root, err := decodeTree(data)
	if err != nil {
		return nil, fmt.Errorf("parse cap: %w", err)
	}
	if !root.is("alert") {
		return nil, fmt.Errorf("parse cap: unexpected root element {%s}%s", root.Name.Space, root.Name.Local)
	}
	return &Message{root: root, Modified: upgraded}, nil
}

// NewAlert returns an empty message with a CAP 1.2 alert root, for
// converters that build CAP from other formats.
func NewAlert() *Message {
	return &Message{root: NewElement("alert")}
}

// FromElement wraps an already-built alert element, e.g. one embedded in an
// envelope document.
func FromElement(el *Element) (*Message, error) {
	if el == nil || !el.is("alert") {
		return nil, errors.New("cap: element is not a CAP alert")
	}
	return &Message{root: el}, nil
}

// Root returns the alert element.
func (m *Message) Root() *Element { return m.root }

// Bytes serializes the message in canonical form.
func (m *Message) Bytes() []byte {
	return Document(m.root)
}

func (m *Message) Identifier() string { return m.root.ChildText("identifier") }
func (m *Message) Sender() string     { return m.root.ChildText("sender") }
func (m *Message) Status() string     { return m.root.ChildText("status") }
func (m *Message) MsgType() string    { return m.root.ChildText("msgType") }
func (m *Message) Scope() string      { return m.root.ChildText("scope") }
func (m *Message) References() string { return m.root.ChildText("references") }

// Sent returns the sent timestamp. A missing or unparseable value wraps ErrMissingField.
func (m *Message) Sent() (time.Time, error) {
	s := m.root.ChildText("sent")
	if s == "" {
		return time.Time{}, fmt.Errorf("sent: %w", ErrMissingField)
	}
	t, ok := ParseTime(s)
	if !ok {
		return time.Time{}, fmt.Errorf("sent %q not parseable: %w", s, ErrMissingField)
	}
	return t, nil
}

// Infos returns the info blocks in document order.
func (m *Message) Infos() []Info {
	els := m.root.ChildrenNamed("info")
	out := make([]Info, len(els))
	for i, el := range els {
		out[i] = Info{el: el}
	}
	return out
}

// IsExpired reports whether every info block has a parseable expiry at or
// before the package clock's now.
func (m *Message) IsExpired() bool {
	return m.ExpiredAt(clock.Now())
}

// ExpiredAt is IsExpired for an explicit reference time.
func (m *Message) ExpiredAt(now time.Time) bool {
	for _, info := range m.Infos() {
		if !info.ExpiredAt(now) {
			return false
		}
	}
	return true
}

// ExpireTime returns the latest expiry across all info blocks.
func (m *Message) ExpireTime() (time.Time, bool) {
	var latest time.Time
	found := false
	for _, info := range m.Infos() {
		t, ok := info.Expires()
		if !ok {
			continue
		}
		if !found || t.After(latest) {
			latest, found = t, true
		}
	}
	return latest, found
}

// PreferredInfo returns the first English info block, otherwise the first block.
func (m *Message) PreferredInfo() (Info, bool) {
	infos := m.Infos()
	if len(infos) == 0 {
		return Info{}, false
	}
	for _, info := range infos {
		if strings.HasPrefix(info.Language(), "en") {
			return info, true
		}
	}
	return infos[0], true
}

// Areas returns every area of every info block.
func (m *Message) Areas() []Area {
	var out []Area
	for _, info := range m.Infos() {
		out = append(out, info.Areas()...)
	}
	return out
}

// Polygons returns the polygon strings of all areas, without duplicates.
func (m *Message) Polygons() []string {
	return m.collect(Area.Polygons)
}

// Circles returns the circle strings of all areas, without duplicates.
func (m *Message) Circles() []string {
	return m.collect(Area.Circles)
}

func (m *Message) collect(get func(Area) []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, a := range m.Areas() {
		for _, s := range get(a) {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// Info is one CAP info block.
type Info struct {
	el *Element
}

// Element returns the underlying info element.
func (i Info) Element() *Element { return i.el }

// Language returns the info language, defaulting to en-US.
func (i Info) Language() string {
	if l := i.el.ChildText("language"); l != "" {
		return l
	}
	return DefaultLanguage
}

func (i Info) Event() string       { return i.el.ChildText("event") }
func (i Info) Urgency() string     { return i.el.ChildText("urgency") }
func (i Info) Severity() string    { return i.el.ChildText("severity") }
func (i Info) Certainty() string   { return i.el.ChildText("certainty") }
func (i Info) Headline() string    { return i.el.ChildText("headline") }
func (i Info) Description() string { return i.el.ChildText("description") }
func (i Info) Instruction() string { return i.el.ChildText("instruction") }
func (i Info) Web() string         { return i.el.ChildText("web") }
func (i Info) Contact() string     { return i.el.ChildText("contact") }

// Expires returns the parsed expiry. Absent or unparseable values report false.
func (i Info) Expires() (time.Time, bool) {
	return ParseTime(i.el.ChildText("expires"))
}

// ExpiredAt reports whether the block has a parseable expiry not after now.
func (i Info) ExpiredAt(now time.Time) bool {
	t, ok := i.Expires()
	return ok && !t.After(now)
}

// Areas returns the area blocks of this info.
func (i Info) Areas() []Area {
	els := i.el.ChildrenNamed("area")
	out := make([]Area, len(els))
	for k, el := range els {
		out[k] = Area{el: el}
	}
	return out
}

// Area is one CAP area block.
type Area struct {
	el *Element
}

// Geocode is a scheme/code reference to a predefined region.
type Geocode struct {
	Name  string
	Value string
}

func (a Area) Desc() string { return a.el.ChildText("areaDesc") }

// Polygons returns the non-empty polygon strings of the area.
func (a Area) Polygons() []string { return a.texts("polygon") }

// Circles returns the non-empty circle strings of the area.
func (a Area) Circles() []string { return a.texts("circle") }

// HasInlineGeometry reports whether the area carries any polygon or circle element.
func (a Area) HasInlineGeometry() bool {
	return a.el.Child("polygon") != nil || a.el.Child("circle") != nil
}

// Geocodes returns the geocode references of the area.
func (a Area) Geocodes() []Geocode {
	var out []Geocode
	for _, g := range a.el.ChildrenNamed("geocode") {
		out = append(out, Geocode{Name: g.ChildText("valueName"), Value: g.ChildText("value")})
	}
	return out
}

// AddPolygon appends a polygon element. Polygons are placed before the first
// geocode so the area stays in CAP schema order.
func (a Area) AddPolygon(text string) {
	p := NewElement("polygon")
	p.Text = text
	children := a.el.Children
	for k, c := range children {
		if c.is("geocode") || c.is("altitude") || c.is("ceiling") {
			a.el.Children = append(children[:k:k], append([]*Element{p}, children[k:]...)...)
			return
		}
	}
	a.el.Children = append(children, p)
}

// Element returns the underlying area element.
func (a Area) Element() *Element { return a.el }

func (a Area) texts(local string) []string {
	var out []string
	for _, c := range a.el.ChildrenNamed(local) {
		if c.Text != "" {
			out = append(out, c.Text)
		}
	}
	return out
}
