package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/yungbote/coursegen/internal/auth"
	"github.com/yungbote/coursegen/internal/platform/apierr"
)

// Response is a settled HTTP exchange as seen by classifiers and decoders.
type Response struct {
	Method   string
	Endpoint string
	Status   int
	Header   http.Header
	Body     []byte
	// JSON is true when the server declared a JSON content type.
	JSON bool
	// Detail is the top-level "detail" field of a JSON object body, if any.
	Detail any
	// Valid is false when a JSON-declared body failed to parse.
	Valid bool
}

func (r *Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// Null reports whether a successful response carries no usable JSON value.
func (r *Response) Null() bool {
	if !r.JSON || !r.Valid {
		return true
	}
	b := bytes.TrimSpace(r.Body)
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}

func newResponse(method, endpoint string, status int, header http.Header, body []byte) *Response {
	resp := &Response{
		Method:   method,
		Endpoint: endpoint,
		Status:   status,
		Header:   header,
		Body:     body,
		JSON:     strings.Contains(strings.ToLower(header.Get("Content-Type")), "application/json"),
	}
	if resp.JSON {
		resp.Valid = json.Valid(bytes.TrimSpace(body))
		if resp.Valid {
			var env map[string]any
			if err := json.Unmarshal(body, &env); err == nil {
				resp.Detail = env["detail"]
			}
		}
	}
	return resp
}

// Classifier turns a non-2xx response into an error, or returns nil to pass it
// to the next classifier in the chain.
type Classifier func(resp *Response) error

// DefaultClassifiers is the standard chain: auth, validation, then generation
// rejection. A response no classifier claims becomes an ApiError via Fallback.
func DefaultClassifiers(tokens auth.TokenProvider) []Classifier {
	return []Classifier{
		Unauthorized(tokens),
		Unprocessable(),
		RecitationRejection(),
	}
}

// Unauthorized clears the stored token on 401 when the provider supports it.
func Unauthorized(tokens auth.TokenProvider) Classifier {
	return func(resp *Response) error {
		if resp.Status != http.StatusUnauthorized {
			return nil
		}
		if c, ok := tokens.(interface{ Clear() error }); ok {
			_ = c.Clear()
		}
		return withResponse(apierr.New(apierr.KindAuthentication, resp.Status, "Could not validate credentials"), resp)
	}
}

func Unprocessable() Classifier {
	return func(resp *Response) error {
		if resp.Status != http.StatusUnprocessableEntity {
			return nil
		}
		return withResponse(apierr.New(apierr.KindValidation, resp.Status, validationMessage(resp.Detail)), resp)
	}
}

const (
	rejectionContentMarker = "content {"
	rejectionFinishMarker  = "finish_reason: RECITATION"
)

// RecitationRejection recognizes the backend's content-safety failure on batch
// generation endpoints.
func RecitationRejection() Classifier {
	return func(resp *Response) error {
		if resp.Status != http.StatusInternalServerError || !strings.Contains(resp.Endpoint, "batch-generate") {
			return nil
		}
		detail, ok := resp.Detail.(string)
		if !ok || !strings.Contains(detail, rejectionContentMarker) || !strings.Contains(detail, rejectionFinishMarker) {
			return nil
		}
		return withResponse(apierr.New(apierr.KindGeneration, resp.Status, "Failed to generate content: "+detail), resp)
	}
}

func Fallback() Classifier {
	return func(resp *Response) error {
		return withResponse(apierr.New(apierr.KindAPI, resp.Status, fallbackMessage(resp)), resp)
	}
}

func withResponse(e *apierr.Error, resp *Response) *apierr.Error {
	e.Endpoint = resp.Endpoint
	e.Detail = resp.Detail
	return e
}

func validationMessage(detail any) string {
	switch d := detail.(type) {
	case []any:
		parts := make([]string, 0, len(d))
		for _, item := range d {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			msg := fmt.Sprint(m["msg"])
			if m["msg"] == nil {
				msg = ""
			}
			loc, _ := m["loc"].([]any)
			if len(loc) == 0 {
				parts = append(parts, msg)
				continue
			}
			segs := make([]string, 0, len(loc))
			for _, l := range loc {
				segs = append(segs, fmt.Sprint(l))
			}
			parts = append(parts, strings.Join(segs, ".")+": "+msg)
		}
		if len(parts) > 0 {
			return strings.Join(parts, ", ")
		}
	case string:
		if d != "" {
			return d
		}
	}
	return "Validation error"
}

func fallbackMessage(resp *Response) string {
	if !resp.JSON || !resp.Valid {
		return fmt.Sprintf("HTTP error! status: %d", resp.Status)
	}
	switch d := resp.Detail.(type) {
	case nil:
	case string:
		if d != "" {
			return d
		}
	default:
		if b, err := json.Marshal(d); err == nil {
			return string(b)
		}
	}
	return "An error occurred"
}
