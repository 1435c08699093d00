package egress

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/llm"
)

// BlockedError names the request target that the allowlist refused.
type BlockedError struct {
	Scheme string
	Host   string
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("egress blocked: %s://%s (%s)", e.Scheme, e.Host, e.Reason)
}

func (e *BlockedError) Unwrap() error { return llm.ErrEgressBlocked }

// AllowlistRoundTripper enforces HTTPS-only requests to a fixed host allowlist.
type AllowlistRoundTripper struct {
	Base      http.RoundTripper
	Allowlist map[string]bool
}

// NewAllowlistRoundTripper returns a RoundTripper that enforces a host allowlist.
func NewAllowlistRoundTripper(base http.RoundTripper, hosts []string) *AllowlistRoundTripper {
	allowlist := make(map[string]bool, len(hosts))
	for _, host := range hosts {
		allowlist[strings.ToLower(strings.TrimSpace(host))] = true
	}
	return &AllowlistRoundTripper{Base: base, Allowlist: allowlist}
}

func (rt *AllowlistRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := rt.check(req); err != nil {
		return nil, err
	}
	base := rt.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

func (rt *AllowlistRoundTripper) check(req *http.Request) error {
	if req.URL == nil {
		return &BlockedError{Reason: "missing url"}
	}
	host := req.URL.Hostname()
	blocked := func(reason string) error {
		return &BlockedError{Scheme: req.URL.Scheme, Host: host, Reason: reason}
	}
	if req.URL.Scheme != "https" {
		return blocked("https required")
	}
	if host == "" {
		return blocked("missing host")
	}
	if ip := net.ParseIP(host); ip != nil {
		return blocked("ip literal")
	}
	if !rt.Allowlist[strings.ToLower(host)] {
		return blocked("host not allowlisted")
	}
	return nil
}
