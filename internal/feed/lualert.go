package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultLUDatasetURL lists the published LU-Alert CAP dumps.
const DefaultLUDatasetURL = "https://data.public.lu/api/1/datasets/alertes-du-systeme-lu-alert/"

// luAlertAdapter reads the LU-Alert JSON index and downloads the matching CAP
// dumps from the public dataset.
type luAlertAdapter struct {
	deps
}

func newLUAlertAdapter(d deps) Adapter { return &luAlertAdapter{deps: d} }

type luAlertEntry struct {
	Identifier string `json:"identifier"`
	Sent       int64  `json:"sent"` // epoch milliseconds
}

type luDataset struct {
	Resources []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"resources"`
}

func (a *luAlertAdapter) Fetch(ctx context.Context, req Request) Result {
	resp, err := a.client.GetConditional(ctx, req.URL, req.Validator)
	if err != nil {
		return failed(err)
	}
	if resp.NotModified {
		return notModified()
	}

	var entries []luAlertEntry
	if err := json.Unmarshal(resp.Body, &entries); err != nil {
		return failed(fmt.Errorf("decode lu-alert index: %w", err))
	}

	res := Result{Status: Fetched, Validator: resp.ETag}
	wanted := make(map[string]bool)
	for _, e := range entries {
		if known, ok := req.Known[e.Identifier]; ok && known.Equal(time.UnixMilli(e.Sent)) {
			res.Unchanged = append(res.Unchanged, e.Identifier)
			continue
		}
		name, ok := luDumpName(e.Identifier)
		if !ok {
			res.warn(fmt.Sprintf("Unexpected LU-Alert identifier: %s", e.Identifier))
			continue
		}
		wanted[name] = true
	}
	if len(wanted) == 0 {
		return res
	}

	datasetURL := a.opts.DatasetURL
	if datasetURL == "" {
		datasetURL = DefaultLUDatasetURL
	}
	body, err := a.client.Get(ctx, datasetURL)
	if err != nil {
		return failed(fmt.Errorf("lu-alert dataset: %w", err))
	}
	var ds luDataset
	if err := json.Unmarshal(body, &ds); err != nil {
		return failed(fmt.Errorf("decode lu-alert dataset: %w", err))
	}

	for _, r := range ds.Resources {
		if !wanted[r.Title] {
			continue
		}
		data, err := fetchDocument(ctx, a.client, a.docs, r.URL)
		if err != nil {
			a.logger.Warn("fetch lu-alert dump failed", "source_id", req.SourceID, "url", r.URL, "error", err)
			res.warn(fmt.Sprintf("Fetch error: %s", r.URL))
			continue
		}
		res.Payloads = append(res.Payloads, Payload{Data: data, SourceURL: r.URL})
	}
	return res
}

// luDumpName maps an identifier such as "lu.123.x" to "dump-alert.123.xml".
func luDumpName(identifier string) (string, bool) {
	parts := strings.Split(identifier, ".")
	if len(parts) < 2 || parts[1] == "" {
		return "", false
	}
	return "dump-alert." + parts[1] + ".xml", true
}
