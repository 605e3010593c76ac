package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
)

// Request describes one backend call. Endpoint is relative to the client's base URL.
type Request struct {
	Method   string
	Endpoint string
	// Body is JSON-encoded unless it is already []byte or json.RawMessage.
	Body any
	// Form sends a multipart payload instead of Body.
	Form   *Form
	Header http.Header
}

type FormFile struct {
	Field    string
	Filename string
	Content  []byte
}

// Form is a multipart payload. Scalar values are written as their string form,
// anything else as JSON; nil values are skipped.
type Form struct {
	Fields map[string]any
	Files  []FormFile
}

func (f *Form) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(f.Fields))
	for k := range f.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := f.Fields[k]
		if v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case fmt.Stringer:
			s = t.String()
		case bool, int, int32, int64, uint, uint32, uint64, float32, float64:
			s = fmt.Sprint(t)
		default:
			b, err := json.Marshal(t)
			if err != nil {
				return nil, "", fmt.Errorf("form field %q: %w", k, err)
			}
			s = string(b)
		}
		if err := w.WriteField(k, s); err != nil {
			return nil, "", err
		}
	}
	for _, file := range f.Files {
		part, err := w.CreateFormFile(file.Field, file.Filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(file.Content); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func normalizeMethod(m string) string {
	m = strings.ToUpper(strings.TrimSpace(m))
	if m == "" {
		return http.MethodGet
	}
	return m
}

// encodeBody returns the wire body and the Content-Type to send, if any.
func encodeBody(method string, r Request) ([]byte, string, error) {
	if r.Form != nil {
		return r.Form.encode()
	}
	var body []byte
	switch b := r.Body.(type) {
	case nil:
	case []byte:
		body = b
	case json.RawMessage:
		body = b
	default:
		enc, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("encode body: %w", err)
		}
		body = enc
	}
	if method == http.MethodPost || method == http.MethodPut {
		return body, "application/json", nil
	}
	return body, "", nil
}
