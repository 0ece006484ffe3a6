package gofetch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/url"
)

// encodeBody renders b into wire bytes. The Content-Type the encoding
// implies was already applied to the request headers at merge time
// (applyImpliedHeaders); encodeBody only ever needs to produce bytes that
// agree with that header, which matters most for BodyMultipart where the
// boundary chosen at merge time must match the one the writer uses here.
func encodeBody(b Body) ([]byte, error) {
	switch b.Kind {
	case BodyNone:
		return nil, nil
	case BodyJSON:
		data, err := json.Marshal(b.JSONValue)
		if err != nil {
			return nil, fmt.Errorf("gofetch: encoding json body: %w", err)
		}
		return data, nil
	case BodyForm:
		values := make(url.Values, len(b.FormValue))
		for k, v := range b.FormValue {
			values.Set(k, v)
		}
		return []byte(values.Encode()), nil
	case BodyMultipart:
		return encodeMultipart(b)
	case BodyRaw:
		return b.Raw, nil
	default:
		return nil, fmt.Errorf("gofetch: unknown body kind %d", b.Kind)
	}
}

func encodeMultipart(b Body) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(b.Boundary); err != nil {
		return nil, fmt.Errorf("gofetch: invalid multipart boundary: %w", err)
	}
	for _, part := range b.Parts {
		if part.FileName == "" {
			fw, err := w.CreateFormField(part.Name)
			if err != nil {
				return nil, err
			}
			if _, err := fw.Write(part.Content); err != nil {
				return nil, err
			}
			continue
		}
		fw, err := w.CreatePart(multipartFileHeader(part))
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(part.Content); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func multipartFileHeader(part MultipartPart) map[string][]string {
	ct := part.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	return map[string][]string{
		"Content-Disposition": {fmt.Sprintf(`form-data; name=%q; filename=%q`, part.Name, part.FileName)},
		"Content-Type":        {ct},
	}
}
