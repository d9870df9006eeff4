package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // Europe/Zurich must resolve without system zoneinfo

	"github.com/couchcryptid/cap-alert-ingest/internal/cap"
)

// alertSwissLanguages are the feed languages, merged in this order.
var alertSwissLanguages = []string{"de", "fr", "it", "en"}

const (
	alertSwissLangPlaceholder = "{LANG}"
	alertSwissSentLayout      = "02.01.2006, 15:04"
)

var alertSwissZone = mustLoadLocation("Europe/Zurich")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// alertSwissAdapter reads the per-language AlertSwiss JSON feeds and merges
// them into one CAP message per alert.
type alertSwissAdapter struct {
	deps
}

func newAlertSwissAdapter(d deps) Adapter { return &alertSwissAdapter{deps: d} }

type alertSwissFeed struct {
	Alerts []json.RawMessage `json:"alerts"`
}

type alertSwissAlert struct {
	Identifier         string `json:"identifier"`
	Sent               string `json:"sent"`
	Sender             string `json:"sender"`
	Reference          string `json:"reference"`
	TestAlert          bool   `json:"testAlert"`
	TechnicalTestAlert bool   `json:"technicalTestAlert"`
	PublisherName      string `json:"publisherName"`
	Title              struct {
		Title string `json:"title"`
	} `json:"title"`
	Description struct {
		Description string `json:"description"`
	} `json:"description"`
	Instructions []struct {
		Text string `json:"text"`
	} `json:"instructions"`
	Links []struct {
		Href string `json:"href"`
	} `json:"links"`
	Contact struct {
		Contact string `json:"contact"`
	} `json:"contact"`
	Event    string `json:"event"`
	AllClear bool   `json:"allClear"`
	Severity string `json:"severity"`
	Areas    []struct {
		Description struct {
			Description string `json:"description"`
		} `json:"description"`
		Polygons []struct {
			Coordinates [][]jsonText `json:"coordinates"`
		} `json:"polygons"`
	} `json:"areas"`
}

var alertSwissSeverity = map[string]string{
	"minor":    "Minor",
	"moderate": "Moderate",
}

func (a *alertSwissAdapter) Fetch(ctx context.Context, req Request) Result {
	res := Result{Status: Fetched}

	byID := make(map[string]*cap.Message)
	var order []string
	var fetchErrs []error

	for _, lang := range alertSwissLanguages {
		url := strings.ReplaceAll(req.URL, alertSwissLangPlaceholder, lang)
		// The upstream supports neither ETag nor If-Modified-Since.
		resp, err := a.client.GetConditional(ctx, url, "")
		if err != nil {
			fetchErrs = append(fetchErrs, err)
			res.warn(fmt.Sprintf("Fetch error: %s", url))
			continue
		}
		var feed alertSwissFeed
		if err := json.Unmarshal(resp.Body, &feed); err != nil {
			fetchErrs = append(fetchErrs, fmt.Errorf("decode %s: %w", url, err))
			res.warn(fmt.Sprintf("Malformed feed: %s", url))
			continue
		}
		for i, raw := range feed.Alerts {
			var al alertSwissAlert
			if err := json.Unmarshal(raw, &al); err != nil || al.Identifier == "" {
				a.logger.Warn("malformed alertswiss alert", "source_id", req.SourceID, "lang", lang, "index", i, "error", err)
				res.warn(fmt.Sprintf("Malformed alert at %s index %d", lang, i))
				continue
			}
			msg, ok := byID[al.Identifier]
			if !ok {
				var err error
				msg, err = al.toCAPMessage()
				if err != nil {
					a.logger.Warn("alertswiss alert skipped", "source_id", req.SourceID, "alert_id", al.Identifier, "error", err)
					res.warn(fmt.Sprintf("Parameter error: %s", al.Identifier))
					continue
				}
				byID[al.Identifier] = msg
				order = append(order, al.Identifier)
			}
			root := msg.Root()
			root.Children = append(root.Children, al.toCAPInfo(lang))
		}
	}

	if len(fetchErrs) == len(alertSwissLanguages) {
		return failed(errors.Join(fetchErrs...))
	}
	for _, id := range order {
		res.Payloads = append(res.Payloads, Payload{Data: byID[id].Bytes()})
	}
	return res
}

// parseAlertSwissSent parses "<weekday> 02.01.2006, 15:04" in Swiss local time.
func parseAlertSwissSent(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	i := strings.Index(s, " ")
	if i < 0 {
		return time.Time{}, fmt.Errorf("unexpected sent format %q", s)
	}
	t, err := time.ParseInLocation(alertSwissSentLayout, strings.TrimSpace(s[i+1:]), alertSwissZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("unexpected sent format %q: %w", s, err)
	}
	return t, nil
}

func (al *alertSwissAlert) toCAPMessage() (*cap.Message, error) {
	sent, err := parseAlertSwissSent(al.Sent)
	if err != nil {
		return nil, err
	}
	status := "Actual"
	switch {
	case al.TestAlert:
		status = "Exercise"
	case al.TechnicalTestAlert:
		status = "Test"
	}

	msg := cap.NewAlert()
	root := msg.Root()
	root.Add("identifier", al.Identifier)
	root.Add("sender", al.Sender)
	root.Add("sent", cap.FormatTime(sent))
	root.Add("status", status)
	root.Add("msgType", "Alert")
	root.Add("scope", "Public")
	root.Add("references", al.Reference)
	return msg, nil
}

func (al *alertSwissAlert) toCAPInfo(lang string) *cap.Element {
	info := cap.NewElement("info")
	info.Add("language", lang)
	info.Add("event", al.Event)
	if al.AllClear {
		info.Add("responseType", "AllClear")
	}
	info.Add("urgency", "Unknown")
	severity, ok := alertSwissSeverity[al.Severity]
	if !ok {
		severity = "Unknown"
	}
	info.Add("severity", severity)
	info.Add("senderName", al.PublisherName)
	info.Add("headline", al.Title.Title)
	info.Add("description", al.Description.Description)

	instructions := make([]string, 0, len(al.Instructions))
	for _, in := range al.Instructions {
		if t := strings.TrimSpace(in.Text); t != "" {
			instructions = append(instructions, t)
		}
	}
	info.Add("instruction", strings.Join(instructions, "\n"))
	for _, l := range al.Links {
		if info.Add("web", l.Href) != nil {
			break
		}
	}
	info.Add("contact", al.Contact.Contact)

	for _, ar := range al.Areas {
		area := info.AddElement("area")
		area.Add("areaDesc", ar.Description.Description)
		for _, p := range ar.Polygons {
			pairs := make([]string, 0, len(p.Coordinates))
			for _, c := range p.Coordinates {
				parts := make([]string, len(c))
				for k, v := range c {
					parts[k] = string(v)
				}
				pairs = append(pairs, strings.Join(parts, ","))
			}
			area.Add("polygon", strings.Join(pairs, " "))
		}
	}
	return info
}
