package security_test

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http/httptest"
	"net/url"
	"sort"
	"testing"

	"voicemail-bridge/internal/config"
	"voicemail-bridge/internal/security"
)

func sign(authToken, requestURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for key := range form {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	payload := requestURL
	for _, key := range keys {
		payload += key + form.Get(key)
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	v := security.NewValidator(config.TwilioConfig{AuthToken: "secret", ValidateSignature: true})
	form := url.Values{"CallSid": {"CA1"}, "SpeechResult": {"hello"}}
	requestURL := "https://example.com/voice/followup"

	r := httptest.NewRequest("POST", requestURL, nil)
	r.Header.Set("X-Twilio-Signature", sign("secret", requestURL, form))

	if !v.Verify(r, form, requestURL) {
		t.Fatal("expected valid signature to pass")
	}
}

func TestVerifyRejectsTamperedParams(t *testing.T) {
	v := security.NewValidator(config.TwilioConfig{AuthToken: "secret", ValidateSignature: true})
	form := url.Values{"CallSid": {"CA1"}}
	requestURL := "https://example.com/voice/incoming"

	r := httptest.NewRequest("POST", requestURL, nil)
	r.Header.Set("X-Twilio-Signature", sign("secret", requestURL, form))

	form.Set("CallSid", "CA2")
	if v.Verify(r, form, requestURL) {
		t.Fatal("expected tampered params to fail")
	}
}

func TestVerifyRejectsMissingHeader(t *testing.T) {
	v := security.NewValidator(config.TwilioConfig{AuthToken: "secret", ValidateSignature: true})
	r := httptest.NewRequest("POST", "https://example.com/voice/incoming", nil)

	if v.Verify(r, url.Values{}, "https://example.com/voice/incoming") {
		t.Fatal("expected missing signature header to fail")
	}
}

func TestVerifyFailsClosedWithoutToken(t *testing.T) {
	v := security.NewValidator(config.TwilioConfig{ValidateSignature: true})
	r := httptest.NewRequest("POST", "https://example.com/voice/incoming", nil)
	r.Header.Set("X-Twilio-Signature", "whatever")

	if v.Verify(r, url.Values{}, "https://example.com/voice/incoming") {
		t.Fatal("expected enabled validation without a token to fail")
	}
}

func TestVerifyDisabledAlwaysPasses(t *testing.T) {
	v := security.NewValidator(config.TwilioConfig{})
	r := httptest.NewRequest("POST", "https://example.com/voice/incoming", nil)

	if !v.Verify(r, url.Values{}, "https://example.com/voice/incoming") {
		t.Fatal("expected disabled validation to pass")
	}
}

func TestPublicURLPrefersConfiguredBase(t *testing.T) {
	r := httptest.NewRequest("POST", "http://internal:8080/voice/incoming", nil)

	got := security.PublicURL(r, "https://bridge.example.com", "/voice/followup")
	want := "https://bridge.example.com/voice/followup"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestPublicURLFromForwardingHeaders(t *testing.T) {
	r := httptest.NewRequest("POST", "http://internal:8080/voice/incoming?x=1", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "bridge.example.com")

	got := security.PublicURL(r, "", "")
	want := "https://bridge.example.com/voice/incoming?x=1"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
