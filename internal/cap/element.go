package cap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
)

const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

// Element is one node of a CAP document tree. Name.Space holds the namespace URI.
type Element struct {
	Name     xml.Name
	Attr     []xml.Attr
	Text     string
	Children []*Element
}

// NewElement creates an element in the CAP 1.2 namespace.
func NewElement(local string) *Element {
	return &Element{Name: xml.Name{Space: Namespace, Local: local}}
}

// Child returns the first CAP child element with the given local name, or nil.
func (e *Element) Child(local string) *Element {
	for _, c := range e.Children {
		if c.is(local) {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns all CAP child elements with the given local name.
func (e *Element) ChildrenNamed(local string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.is(local) {
			out = append(out, c)
		}
	}
	return out
}

// ChildText returns the text of the first CAP child with the given name, or "".
func (e *Element) ChildText(local string) string {
	if c := e.Child(local); c != nil {
		return c.Text
	}
	return ""
}

// Add appends a CAP child element holding text. Empty text adds nothing and returns nil.
func (e *Element) Add(local, text string) *Element {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	c := NewElement(local)
	c.Text = text
	e.Children = append(e.Children, c)
	return c
}

// AddElement appends an empty CAP child element and returns it.
func (e *Element) AddElement(local string) *Element {
	c := NewElement(local)
	e.Children = append(e.Children, c)
	return c
}

// Find returns all CAP descendants (in document order) with the given local name.
func (e *Element) Find(local string) []*Element {
	var out []*Element
	stack := []*Element{e}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n != e && n.is(local) {
			out = append(out, n)
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return out
}

// ChildrenNS returns the child elements with the given namespace and local name.
func (e *Element) ChildrenNS(space, local string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Name.Space == space && c.Name.Local == local {
			out = append(out, c)
		}
	}
	return out
}

// ChildNS returns the first child with the given namespace and local name, or nil.
func (e *Element) ChildNS(space, local string) *Element {
	if cs := e.ChildrenNS(space, local); len(cs) > 0 {
		return cs[0]
	}
	return nil
}

// FirstChild returns the first child element, or nil.
func (e *Element) FirstChild() *Element {
	if len(e.Children) == 0 {
		return nil
	}
	return e.Children[0]
}

// ParseDocument decodes any XML document into an element tree. Envelope
// formats use it to reach embedded CAP alerts.
func ParseDocument(data []byte) (*Element, error) {
	root, err := decodeTree(data)
	if err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}
	return root, nil
}

// Document serializes e as a standalone canonical XML document.
func Document(e *Element) []byte {
	var buf bytes.Buffer
	buf.WriteString(xmlHeader)
	encodeTree(&buf, e)
	return buf.Bytes()
}

func (e *Element) is(local string) bool {
	return e.Name.Local == local && e.Name.Space == Namespace
}

// decodeTree builds an element tree from XML. Comments, processing
// instructions and directives are dropped; text is trimmed.
func decodeTree(data []byte) (*Element, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.CharsetReader = charset.NewReaderLabel

	var (
		root  *Element
		stack []*Element
		text  []*strings.Builder
	)
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Name: t.Name, Attr: keepAttrs(t.Attr)}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("decode xml: multiple root elements")
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)
			text = append(text, &strings.Builder{})
		case xml.EndElement:
			top := stack[len(stack)-1]
			top.Text = strings.TrimSpace(text[len(text)-1].String())
			stack = stack[:len(stack)-1]
			text = text[:len(text)-1]
		case xml.CharData:
			if len(text) > 0 {
				text[len(text)-1].Write(t)
			}
		}
	}
	if root == nil {
		return nil, errors.New("decode xml: no root element")
	}
	if len(stack) != 0 {
		return nil, errors.New("decode xml: unexpected end of document")
	}
	return root, nil
}

// keepAttrs drops namespace declarations; the serializer regenerates them.
func keepAttrs(attrs []xml.Attr) []xml.Attr {
	var out []xml.Attr
	for _, a := range attrs {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		out = append(out, a)
	}
	return out
}

// encodeTree writes the canonical form of root: default namespace
// declarations only where the namespace changes, trimmed text, no
// whitespace between elements.
func encodeTree(w *bytes.Buffer, root *Element) {
	type frame struct {
		el       *Element
		parentNS string
		closing  bool
	}
	stack := []frame{{el: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		el := f.el

		if f.closing {
			w.WriteString("</")
			w.WriteString(el.Name.Local)
			w.WriteByte('>')
			continue
		}

		w.WriteByte('<')
		w.WriteString(el.Name.Local)
		if el.Name.Space != f.parentNS {
			writeAttr(w, "xmlns", el.Name.Space)
		}
		prefixes := 0
		for _, a := range el.Attr {
			switch a.Name.Space {
			case "":
				writeAttr(w, a.Name.Local, a.Value)
			case xmlNamespace, "xml":
				writeAttr(w, "xml:"+a.Name.Local, a.Value)
			default:
				prefixes++
				prefix := "ns" + strconv.Itoa(prefixes)
				writeAttr(w, "xmlns:"+prefix, a.Name.Space)
				writeAttr(w, prefix+":"+a.Name.Local, a.Value)
			}
		}

		if el.Text == "" && len(el.Children) == 0 {
			w.WriteString("/>")
			continue
		}
		w.WriteByte('>')
		xml.EscapeText(w, []byte(el.Text)) //nolint:errcheck // bytes.Buffer writes never fail

		stack = append(stack, frame{el: el, closing: true})
		for i := len(el.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{el: el.Children[i], parentNS: el.Name.Space})
		}
	}
}

func writeAttr(w *bytes.Buffer, name, value string) {
	w.WriteByte(' ')
	w.WriteString(name)
	w.WriteString(`="`)
	xml.EscapeText(w, []byte(value)) //nolint:errcheck // bytes.Buffer writes never fail
	w.WriteByte('"')
}
