package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const maxResponseBytes = 1 << 20

var (
	providerReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_provider_requests_total",
			Help: "Outbound payment provider calls by outcome.",
		},
		[]string{"provider", "outcome"},
	)

	providerLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_provider_request_duration_seconds",
			Help:    "Duration of outbound payment provider calls in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(providerReqs, providerLat)
}

// apiClient performs provider calls and classifies their failures.
type apiClient struct {
	provider string
	baseURL  string
	http     *http.Client
}

func newAPIClient(provider, baseURL string, hc *http.Client, timeout time.Duration) apiClient {
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return apiClient{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     hc,
	}
}

func (c apiClient) postJSON(ctx context.Context, path string, header http.Header, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return &ProviderError{Provider: c.provider, Message: "encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &ProviderError{Provider: c.provider, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, header, out)
}

func (c apiClient) postForm(ctx context.Context, path string, header http.Header, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return &ProviderError{Provider: c.provider, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, header, out)
}

func (c apiClient) do(req *http.Request, header http.Header, out any) error {
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	providerLat.WithLabelValues(c.provider).Observe(time.Since(start).Seconds())
	if err != nil {
		providerReqs.WithLabelValues(c.provider, "transport_error").Inc()
		return &ProviderError{Provider: c.provider, Retryable: true, Message: "request failed: " + err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		providerReqs.WithLabelValues(c.provider, "transport_error").Inc()
		return &ProviderError{Provider: c.provider, Retryable: true, StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		providerReqs.WithLabelValues(c.provider, "http_error").Inc()
		return &ProviderError{
			Provider:   c.provider,
			Retryable:  true,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected response: %s", truncate(string(raw), 256)),
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		providerReqs.WithLabelValues(c.provider, "malformed").Inc()
		return &ProviderError{Provider: c.provider, Retryable: true, StatusCode: resp.StatusCode, Message: "malformed response body", Err: err}
	}
	providerReqs.WithLabelValues(c.provider, "ok").Inc()
	return nil
}

// missingField is the non-retryable contract failure for a 2xx without the
// fields a session needs.
func (c apiClient) missingField(field string) error {
	providerReqs.WithLabelValues(c.provider, "contract_error").Inc()
	return &ProviderError{Provider: c.provider, StatusCode: http.StatusOK, Message: "response missing " + field}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
