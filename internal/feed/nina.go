package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	geojson "github.com/paulmach/go.geojson"

	"github.com/couchcryptid/cap-alert-ingest/internal/cap"
	"github.com/couchcryptid/cap-alert-ingest/internal/geocode"
)

// areaIDScheme is the geocode that links NINA areas to companion features.
const areaIDScheme = "AreaId"

// ninaAdapter reads the NINA id list and fetches each warning plus its
// companion GeoJSON.
type ninaAdapter struct {
	deps
}

func newNINAAdapter(d deps) Adapter { return &ninaAdapter{deps: d} }

type ninaEntry struct {
	ID jsonText `json:"id"`
}

func (a *ninaAdapter) Fetch(ctx context.Context, req Request) Result {
	base := a.opts.APIBase
	if base == "" {
		base = ninaBase(req.URL)
	}
	if base == "" {
		return failed(fmt.Errorf("cannot derive NINA API base from %q", req.URL))
	}
	base = strings.TrimRight(base, "/")

	resp, err := a.client.GetConditional(ctx, req.URL, req.Validator)
	if err != nil {
		return failed(err)
	}
	if resp.NotModified {
		return notModified()
	}

	var list []ninaEntry
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return failed(fmt.Errorf("decode nina list: %w", err))
	}

	res := Result{Status: Fetched, Validator: resp.ETag}
	for _, e := range list {
		id := string(e.ID)
		if id == "" {
			continue
		}
		data, err := a.warning(ctx, base, id)
		if err != nil {
			a.logger.Warn("nina warning skipped", "source_id", req.SourceID, "alert_id", id, "error", err)
			res.warn(fmt.Sprintf("Fetch error: %s", id))
			continue
		}
		res.Payloads = append(res.Payloads, Payload{Data: data, SourceURL: base + "/warnings/" + id + ".json"})
	}
	return res
}

func (a *ninaAdapter) warning(ctx context.Context, base, id string) ([]byte, error) {
	warningURL := base + "/warnings/" + id + ".json"
	raw, err := fetchDocument(ctx, a.client, a.docs, warningURL)
	if err != nil {
		return nil, err
	}
	geo, err := fetchDocument(ctx, a.client, a.docs, base+"/warnings/"+id+".geojson")
	if err != nil {
		return nil, fmt.Errorf("companion geojson: %w", err)
	}

	var alert bbkAlert
	if err := json.Unmarshal(raw, &alert); err != nil {
		return nil, fmt.Errorf("decode warning: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(geo)
	if err != nil {
		return nil, fmt.Errorf("decode companion geojson: %w", err)
	}

	msg := alert.toCAP()
	mergeAreaGeometry(msg, fc)
	return msg.Bytes(), nil
}

// mergeAreaGeometry adds the polygons of every companion feature whose id or
// areaId property matches an AreaId geocode of the area.
func mergeAreaGeometry(msg *cap.Message, fc *geojson.FeatureCollection) {
	for _, area := range msg.Areas() {
		for _, gc := range area.Geocodes() {
			if gc.Name != areaIDScheme || gc.Value == "" {
				continue
			}
			for _, f := range fc.Features {
				if !sameID(f.ID, gc.Value) && !sameID(f.Properties["areaId"], gc.Value) {
					continue
				}
				polygons, _ := geocode.FeaturePolygons(f)
				for _, p := range polygons {
					area.AddPolygon(p)
				}
			}
		}
	}
}

func sameID(v any, code string) bool {
	switch id := v.(type) {
	case string:
		return id == code
	case float64:
		n, err := strconv.ParseFloat(code, 64)
		return err == nil && n == id
	case json.Number:
		return id.String() == code
	default:
		return false
	}
}

var ninaMarkers = []string{"/warnings", "/dashboard", "/mowas"}

// ninaBase derives the API base from a NINA feed URL, e.g.
// https://warnung.bund.de/api31/dashboard/x.json -> https://warnung.bund.de/api31.
func ninaBase(feedURL string) string {
	cut := -1
	for _, m := range ninaMarkers {
		if i := strings.Index(feedURL, m); i > 0 && (cut < 0 || i < cut) {
			cut = i
		}
	}
	if cut < 0 {
		return ""
	}
	return feedURL[:cut]
}
