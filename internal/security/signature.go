package security

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"voicemail-bridge/internal/config"
)

// Validator checks the X-Twilio-Signature header on inbound webhooks: an
// HMAC-SHA1 over the public request URL followed by the form parameters in
// key-sorted order, keyed with the account auth token.
type Validator struct {
	authToken string
	enabled   bool
}

func NewValidator(cfg config.TwilioConfig) *Validator {
	return &Validator{authToken: cfg.AuthToken, enabled: cfg.ValidateSignature}
}

// Verify reports whether the request carries a valid signature. Validation
// disabled by configuration always passes; an enabled validator without an
// auth token always fails closed.
func (v *Validator) Verify(r *http.Request, form url.Values, requestURL string) bool {
	if !v.enabled {
		return true
	}
	if v.authToken == "" {
		return false
	}

	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}

	return hmac.Equal([]byte(signature), []byte(v.expectedSignature(form, requestURL)))
}

func (v *Validator) expectedSignature(form url.Values, requestURL string) string {
	keys := make([]string, 0, len(form))
	for key := range form {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(requestURL)
	for _, key := range keys {
		builder.WriteString(key)
		builder.WriteString(form.Get(key))
	}

	mac := hmac.New(sha1.New, []byte(v.authToken))
	mac.Write([]byte(builder.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// PublicBaseURL resolves the externally visible base URL: the configured one
// when set, otherwise reconstructed from forwarding headers.
func PublicBaseURL(r *http.Request, configuredBase string) string {
	if configuredBase != "" {
		return strings.TrimRight(configuredBase, "/")
	}

	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}

	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}

	return scheme + "://" + host
}

// PublicURL builds the public URL for path, or for the request's own path
// and query when path is empty. The latter is the URL Twilio signed.
func PublicURL(r *http.Request, configuredBase, path string) string {
	base := PublicBaseURL(r, configuredBase)

	if path == "" {
		target := base + r.URL.Path
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		return target
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
