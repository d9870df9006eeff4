package feed

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/couchcryptid/cap-alert-ingest/internal/cap"
)

// jsonText accepts JSON strings, numbers and booleans as text.
type jsonText string

func (t *jsonText) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = jsonText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*t = jsonText(n.String())
		return nil
	}
	var v bool
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*t = jsonText(strconv.FormatBool(v))
	return nil
}

// bbkAlert is the CAP-like JSON used by Germany's federal warning system.
type bbkAlert struct {
	Identifier jsonText  `json:"identifier"`
	Sender     jsonText  `json:"sender"`
	Sent       jsonText  `json:"sent"`
	Status     jsonText  `json:"status"`
	MsgType    jsonText  `json:"msgType"`
	Scope      jsonText  `json:"scope"`
	Note       jsonText  `json:"note"`
	References jsonText  `json:"references"`
	Info       []bbkInfo `json:"info"`
}

type bbkInfo struct {
	Language    jsonText   `json:"language"`
	Category    []jsonText `json:"category"`
	Event       jsonText   `json:"event"`
	Urgency     jsonText   `json:"urgency"`
	Severity    jsonText   `json:"severity"`
	Certainty   jsonText   `json:"certainty"`
	EventCode   []bbkValue `json:"eventCode"`
	Expires     jsonText   `json:"expires"`
	Headline    jsonText   `json:"headline"`
	Description jsonText   `json:"description"`
	Instruction jsonText   `json:"instruction"`
	Web         jsonText   `json:"web"`
	Contact     jsonText   `json:"contact"`
	Parameter   []bbkValue `json:"parameter"`
	Area        []bbkArea  `json:"area"`
}

type bbkValue struct {
	ValueName jsonText `json:"valueName"`
	Value     jsonText `json:"value"`
}

type bbkArea struct {
	AreaDesc jsonText   `json:"areaDesc"`
	Polygon  []jsonText `json:"polygon"`
	Geocode  []bbkValue `json:"geocode"`
}

// senderSignatureParam carries the human-readable sender in BBK parameters.
const senderSignatureParam = "sender_signature"

const bbkPlaceholder = "-1.0,-1.0"

var bbkPair = regexp.MustCompile(`(-?\d+\.\d+),(-?\d+\.\d+)`)

// filterBBKPolygon drops every -1.0,-1.0 placeholder vertex and swaps the
// lon,lat pairs into CAP lat,lon order.
func filterBBKPolygon(s string) string {
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if f != bbkPlaceholder {
			kept = append(kept, f)
		}
	}
	return bbkPair.ReplaceAllString(strings.Join(kept, " "), "$2,$1")
}

// toCAP converts a BBK alert to a CAP message. Info children are emitted in
// CAP schema order.
func (a *bbkAlert) toCAP() *cap.Message {
	msg := cap.NewAlert()
	root := msg.Root()
	root.Add("identifier", string(a.Identifier))
	root.Add("sender", string(a.Sender))
	root.Add("sent", string(a.Sent))
	root.Add("status", string(a.Status))
	root.Add("msgType", string(a.MsgType))
	root.Add("scope", string(a.Scope))
	root.Add("note", string(a.Note))
	root.Add("references", string(a.References))

	for _, in := range a.Info {
		info := root.AddElement("info")
		info.Add("language", string(in.Language))
		for _, c := range in.Category {
			info.Add("category", string(c))
		}
		info.Add("event", string(in.Event))
		info.Add("urgency", string(in.Urgency))
		info.Add("severity", string(in.Severity))
		info.Add("certainty", string(in.Certainty))
		for _, ec := range in.EventCode {
			addValuePair(info, "eventCode", ec)
		}
		info.Add("expires", string(in.Expires))
		for _, p := range in.Parameter {
			if string(p.ValueName) == senderSignatureParam {
				info.Add("senderName", string(p.Value))
			}
		}
		info.Add("headline", string(in.Headline))
		info.Add("description", string(in.Description))
		info.Add("instruction", string(in.Instruction))
		info.Add("web", string(in.Web))
		info.Add("contact", string(in.Contact))
		for _, p := range in.Parameter {
			addValuePair(info, "parameter", p)
		}
		for _, ar := range in.Area {
			area := info.AddElement("area")
			area.Add("areaDesc", string(ar.AreaDesc))
			for _, p := range ar.Polygon {
				area.Add("polygon", filterBBKPolygon(string(p)))
			}
			for _, g := range ar.Geocode {
				addValuePair(area, "geocode", g)
			}
		}
	}
	return msg
}

func addValuePair(parent *cap.Element, name string, v bbkValue) {
	el := parent.AddElement(name)
	el.Add("valueName", string(v.ValueName))
	el.Add("value", string(v.Value))
}
