package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance bounds the age of timestamped signatures.
const DefaultTolerance = 5 * time.Minute

// verifier checks webhook authenticity for one provider.
type verifier struct {
	secret        []byte
	allowUnsigned bool
	tolerance     time.Duration
	now           func() time.Time
}

func newVerifier(secret string, allowUnsigned bool) verifier {
	return verifier{
		secret:        []byte(secret),
		allowUnsigned: allowUnsigned,
		tolerance:     DefaultTolerance,
		now:           time.Now,
	}
}

// unsigned reports whether verification is skipped: no secret configured
// and unsigned deliveries explicitly allowed.
func (v verifier) unsigned() (skip bool, err error) {
	if len(v.secret) > 0 {
		return false, nil
	}
	if v.allowUnsigned {
		return true, nil
	}
	return false, fmt.Errorf("%w: no webhook secret configured", ErrSignature)
}

func hmacSHA256(key []byte, parts ...[]byte) []byte {
	m := hmac.New(sha256.New, key)
	for _, p := range parts {
		m.Write(p)
	}
	return m.Sum(nil)
}

func (v verifier) fresh(ts string) error {
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrSignature)
	}
	age := v.now().Sub(time.Unix(sec, 0))
	if math.Abs(float64(age)) > float64(v.tolerance) {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrSignature)
	}
	return nil
}

// verifyStripe checks "Stripe-Signature: t=<unix>,v1=<hex>[,v1=<hex>...]"
// over "<t>.<body>".
func (v verifier) verifyStripe(h http.Header, body []byte) error {
	if skip, err := v.unsigned(); skip || err != nil {
		return err
	}
	raw := h.Get("Stripe-Signature")
	if raw == "" {
		return fmt.Errorf("%w: missing Stripe-Signature", ErrSignature)
	}
	var ts string
	var sigs [][]byte
	for _, part := range strings.Split(raw, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = val
		case "v1":
			if b, err := hex.DecodeString(val); err == nil {
				sigs = append(sigs, b)
			}
		}
	}
	if ts == "" || len(sigs) == 0 {
		return fmt.Errorf("%w: incomplete Stripe-Signature", ErrSignature)
	}
	if err := v.fresh(ts); err != nil {
		return err
	}
	want := hmacSHA256(v.secret, []byte(ts), []byte("."), body)
	for _, s := range sigs {
		if hmac.Equal(s, want) {
			return nil
		}
	}
	return ErrSignature
}

// verifyStandard checks the Standard Webhooks scheme used by Speed:
// webhook-id, webhook-timestamp and "webhook-signature: v1,<base64> ..."
// over "<id>.<timestamp>.<body>".
func (v verifier) verifyStandard(h http.Header, body []byte) error {
	if skip, err := v.unsigned(); skip || err != nil {
		return err
	}
	id, ts, raw := h.Get("webhook-id"), h.Get("webhook-timestamp"), h.Get("webhook-signature")
	if id == "" || ts == "" || raw == "" {
		return fmt.Errorf("%w: missing webhook-id, webhook-timestamp or webhook-signature", ErrSignature)
	}
	if err := v.fresh(ts); err != nil {
		return err
	}
	want := hmacSHA256(standardKey(v.secret), []byte(id), []byte("."), []byte(ts), []byte("."), body)
	for _, sig := range strings.Fields(raw) {
		ver, b64, ok := strings.Cut(sig, ",")
		if !ok || ver != "v1" {
			continue
		}
		got, err := base64.StdEncoding.DecodeString(b64)
		if err == nil && hmac.Equal(got, want) {
			return nil
		}
	}
	return ErrSignature
}

// standardKey strips a "whsec_"/"wsec_" prefix and base64-decodes the rest;
// secrets that are not base64 are used as-is.
func standardKey(secret []byte) []byte {
	s := string(secret)
	for _, p := range []string{"whsec_", "wsec_"} {
		if strings.HasPrefix(s, p) {
			if k, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, p)); err == nil {
				return k
			}
			return []byte(strings.TrimPrefix(s, p))
		}
	}
	return secret
}

// verifyHex checks a hex HMAC-SHA256 of the raw body carried in header name,
// optionally prefixed (e.g. "sha256=").
func (v verifier) verifyHex(h http.Header, body []byte, name, prefix string) error {
	if skip, err := v.unsigned(); skip || err != nil {
		return err
	}
	raw := strings.TrimSpace(h.Get(name))
	if raw == "" {
		return fmt.Errorf("%w: missing %s", ErrSignature, name)
	}
	if prefix != "" {
		if !strings.HasPrefix(raw, prefix) {
			return fmt.Errorf("%w: bad %s format", ErrSignature, name)
		}
		raw = strings.TrimPrefix(raw, prefix)
	}
	got, err := hex.DecodeString(raw)
	if err != nil {
		return fmt.Errorf("%w: bad %s encoding", ErrSignature, name)
	}
	if !hmac.Equal(got, hmacSHA256(v.secret, body)) {
		return ErrSignature
	}
	return nil
}
