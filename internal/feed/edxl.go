package feed

import (
	"context"
	"fmt"

	"github.com/couchcryptid/cap-alert-ingest/internal/cap"
)

// edxlNamespace is the EDXL Distribution Element 1.0 namespace.
const edxlNamespace = "urn:oasis:names:tc:emergency:EDXL:DE:1.0"

// edxlAdapter unwraps CAP alerts embedded in an EDXL-DE envelope.
type edxlAdapter struct {
	deps
}

func newEDXLAdapter(d deps) Adapter { return &edxlAdapter{deps: d} }

func (a *edxlAdapter) Fetch(ctx context.Context, req Request) Result {
	resp, err := a.client.GetConditional(ctx, req.URL, req.Validator)
	if err != nil {
		return failed(err)
	}
	if resp.NotModified {
		return notModified()
	}

	root, err := cap.ParseDocument(resp.Body)
	if err != nil {
		return failed(fmt.Errorf("decode edxl: %w", err))
	}

	res := Result{Status: Fetched, Validator: resp.ETag}
	for i, obj := range root.ChildrenNS(edxlNamespace, "contentObject") {
		alert := embeddedAlert(obj)
		if alert == nil {
			a.logger.Warn("edxl content object without embedded xml", "source_id", req.SourceID, "index", i)
			res.warn(fmt.Sprintf("Empty EDXL content object %d", i))
			continue
		}
		res.Payloads = append(res.Payloads, Payload{Data: cap.Document(alert)})
	}
	return res
}

// embeddedAlert returns contentObject/xmlContent/embeddedXMLContent/*[1].
func embeddedAlert(obj *cap.Element) *cap.Element {
	content := obj.ChildNS(edxlNamespace, "xmlContent")
	if content == nil {
		return nil
	}
	embedded := content.ChildNS(edxlNamespace, "embeddedXMLContent")
	if embedded == nil {
		embedded = content.FirstChild()
	}
	if embedded == nil {
		return nil
	}
	return embedded.FirstChild()
}
