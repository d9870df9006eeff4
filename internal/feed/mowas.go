package feed

import (
	"context"
	"encoding/json"
	"fmt"
)

// mowasAdapter reads the BBK JSON list used by the MoWaS and flood feeds.
type mowasAdapter struct {
	deps
}

func newMoWaSAdapter(d deps) Adapter { return &mowasAdapter{deps: d} }

func (a *mowasAdapter) Fetch(ctx context.Context, req Request) Result {
	resp, err := a.client.GetConditional(ctx, req.URL, req.Validator)
	if err != nil {
		return failed(err)
	}
	if resp.NotModified {
		return notModified()
	}

	var items []json.RawMessage
	if err := json.Unmarshal(resp.Body, &items); err != nil {
		return failed(fmt.Errorf("decode mowas feed: %w", err))
	}

	res := Result{Status: Fetched, Validator: resp.ETag}
	for i, raw := range items {
		var alert bbkAlert
		if err := json.Unmarshal(raw, &alert); err != nil {
			a.logger.Warn("malformed mowas alert", "source_id", req.SourceID, "index", i, "error", err)
			res.warn(fmt.Sprintf("Malformed alert at index %d", i))
			continue
		}
		res.Payloads = append(res.Payloads, Payload{Data: alert.toCAP().Bytes()})
	}
	return res
}
