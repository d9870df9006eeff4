package feed

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
)

// maxZipEntrySize bounds one decompressed archive member.
const maxZipEntrySize = 16 << 20

// dwdZipAdapter reads a zip archive of standalone CAP documents.
type dwdZipAdapter struct {
	deps
}

func newDWDZipAdapter(d deps) Adapter { return &dwdZipAdapter{deps: d} }

func (a *dwdZipAdapter) Fetch(ctx context.Context, req Request) Result {
	resp, err := a.client.GetConditional(ctx, req.URL, req.Validator)
	if err != nil {
		return failed(err)
	}
	if resp.NotModified {
		return notModified()
	}

	zr, err := zip.NewReader(bytes.NewReader(resp.Body), int64(len(resp.Body)))
	if err != nil {
		return failed(fmt.Errorf("open zip: %w", err))
	}

	res := Result{Status: Fetched, Validator: resp.ETag}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		data, err := readZipEntry(f)
		if err != nil {
			a.logger.Warn("corrupt zip entry", "source_id", req.SourceID, "name", f.Name, "error", err)
			res.warn(fmt.Sprintf("Corrupt archive entry: %s", f.Name))
			continue
		}
		res.Payloads = append(res.Payloads, Payload{Data: data})
	}
	return res
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxZipEntrySize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxZipEntrySize {
		return nil, errTooLarge
	}
	return data, nil
}
