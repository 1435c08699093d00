package egress

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/llm"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestAllowlistRoundTripper(t *testing.T) {
	called := 0
	rt := NewAllowlistRoundTripper(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		called++
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("{}")), Header: make(http.Header)}, nil
	}), []string{"Generativelanguage.googleapis.com"})

	req, _ := http.NewRequest(http.MethodPost, "https://generativelanguage.googleapis.com/v1beta/models/gemini-pro:generateContent", nil)
	if _, err := rt.RoundTrip(req); err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if called != 1 {
		t.Fatalf("expected allowlisted request to reach base transport")
	}

	blockedURLs := []string{
		"https://example.com/v1beta/models",
		"http://generativelanguage.googleapis.com/v1beta/models",
		"https://127.0.0.1/v1beta/models",
	}
	for _, raw := range blockedURLs {
		blockedReq, _ := http.NewRequest(http.MethodGet, raw, nil)
		_, err := rt.RoundTrip(blockedReq)
		if !errors.Is(err, llm.ErrEgressBlocked) {
			t.Fatalf("%s: expected egress blocked error, got %v", raw, err)
		}
		var blocked *BlockedError
		if !errors.As(err, &blocked) || blocked.Reason == "" {
			t.Fatalf("%s: expected blocked error with reason, got %v", raw, err)
		}
	}
	if called != 1 {
		t.Fatalf("expected blocked requests to never reach base transport")
	}
}
