package slate

import (
	"fmt"
	"net/url"
	"strings"
)

// URLError reports a server address that cannot be used, with hints on how
// to fix it. The hints are meant to be shown to a user verbatim.
type URLError struct {
	Raw   string
	Hints []string
}

func (e *URLError) Error() string {
	if len(e.Hints) == 0 {
		return fmt.Sprintf("slate: invalid server URL %q", e.Raw)
	}

	return fmt.Sprintf("slate: invalid server URL %q (%s)", e.Raw, strings.Join(e.Hints, "; "))
}

// NormalizeServerURL validates a server address and returns its canonical
// form: scheme + host, no trailing slash. An address without a scheme gets
// "https://" prepended. A path component is kept so servers behind a proxy
// prefix keep working.
func NormalizeServerURL(raw string) (string, error) {
	addr := strings.TrimSpace(raw)
	if addr == "" {
		return "", &URLError{Raw: raw, Hints: []string{"server address is empty"}}
	}

	if !strings.Contains(addr, "://") {
		addr = "https://" + addr
	}

	parsed, err := url.Parse(addr)
	if err != nil {
		return "", &URLError{Raw: raw, Hints: []string{
			"expected a URL like https://slate.studio.example",
		}}
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", &URLError{Raw: raw, Hints: []string{
			fmt.Sprintf("unsupported scheme %q", parsed.Scheme),
			"use http:// or https://",
		}}
	}

	if parsed.Host == "" {
		return "", &URLError{Raw: raw, Hints: []string{"server address has no host"}}
	}

	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return "", &URLError{Raw: raw, Hints: []string{
			"server address must not contain a query string or fragment",
		}}
	}

	parsed.Path = strings.TrimRight(parsed.Path, "/")

	return parsed.String(), nil
}
