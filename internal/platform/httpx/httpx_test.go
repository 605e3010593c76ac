package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/yungbote/coursegen/internal/platform/apierr"
)

func TestJoinURL(t *testing.T) {
	cases := []struct {
		base, endpoint, want string
	}{
		{"http://localhost:8000/api/v1", "contents/generate?unit_id=7", "http://localhost:8000/api/v1/contents/generate?unit_id=7"},
		{"http://localhost:8000/api/v1/", "/contents/1/regenerate", "http://localhost:8000/api/v1/contents/1/regenerate"},
		{"http://localhost:8000/api/v1//", "//auth/me", "http://localhost:8000/api/v1/auth/me"},
		{"http://localhost:8000/api/v1", "", "http://localhost:8000/api/v1"},
		{"http://localhost:8000/api/v1", "https://other.example/x", "https://other.example/x"},
	}
	for _, tc := range cases {
		if got := JoinURL(tc.base, tc.endpoint); got != tc.want {
			t.Fatalf("JoinURL(%q,%q)=%q want=%q", tc.base, tc.endpoint, got, tc.want)
		}
	}
}

func TestWebSocketBase(t *testing.T) {
	got, err := WebSocketBase("http://localhost:8000/api/v1/")
	if err != nil || got != "ws://localhost:8000/api/v1" {
		t.Fatalf("got=%q err=%v", got, err)
	}
	got, err = WebSocketBase("https://studio.example.com/api/v1")
	if err != nil || got != "wss://studio.example.com/api/v1" {
		t.Fatalf("got=%q err=%v", got, err)
	}
	if _, err := WebSocketBase("ftp://x"); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func TestIsTransportError(t *testing.T) {
	if IsTransportError(context.Canceled) {
		t.Fatalf("cancel is not transport")
	}
	if !IsTransportError(&url.Error{Op: "Post", URL: "http://x", Err: errors.New("connection refused")}) {
		t.Fatalf("url.Error should be transport")
	}
	if IsTransportError(&url.Error{Op: "Post", URL: "http://x", Err: context.Canceled}) {
		t.Fatalf("wrapped cancel is not transport")
	}
}

func TestStatusCode(t *testing.T) {
	err := fmt.Errorf("load course: %w", apierr.New(apierr.KindAPI, 404, "Course not found"))
	if got := StatusCode(err); got != 404 {
		t.Fatalf("status=%d", got)
	}
	if got := StatusCode(errors.New("boom")); got != 0 {
		t.Fatalf("plain error status=%d", got)
	}
}
