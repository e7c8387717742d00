package workflow

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ResolveTarget turns a company reference into an absolute http(s) URL.
// Bare hosts such as "example.com" get an https scheme.
func ResolveTarget(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: target reference is required", ErrInvalidInput)
	}
	if !strings.Contains(ref, "://") {
		ref = "https://" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: target %q is not a url: %v", ErrInvalidInput, ref, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: target %q must use http or https", ErrInvalidInput, ref)
	}
	host := u.Hostname()
	if host == "" || !strings.Contains(host, ".") || strings.ContainsAny(host, " _") {
		return "", fmt.Errorf("%w: target %q has no resolvable host", ErrInvalidInput, ref)
	}
	return u.String(), nil
}

// InferCompanyName takes the first host label after "www." and title-cases
// it: "https://www.acme-labs.io" becomes "Acme-Labs".
func InferCompanyName(targetURL string) string {
	u, err := url.Parse(targetURL)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	label, _, _ := strings.Cut(host, ".")
	if label == "" {
		return ""
	}
	return cases.Title(language.English).String(label)
}

// Domain returns the host without "www.".
func Domain(targetURL string) string {
	u, err := url.Parse(targetURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
