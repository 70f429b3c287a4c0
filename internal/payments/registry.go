package payments

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/tbourn/go-deposit-backend/internal/config"
)

// Options carries what every adapter constructor needs.
type Options struct {
	Config         config.ProviderConfig
	HTTPClient     *http.Client // optional; defaults to one bounded by Timeout
	Timeout        time.Duration
	AllowUnsigned  bool
	SuccessURL     string
	CancelURL      string
	WebhookBaseURL string // public origin + API base path
	Now            func() time.Time
}

func (o Options) verifier() verifier {
	v := newVerifier(o.Config.WebhookSecret, o.AllowUnsigned)
	if o.Now != nil {
		v.now = o.Now
	}
	return v
}

func (o Options) webhookURL(provider string) string {
	if o.WebhookBaseURL == "" {
		return ""
	}
	return strings.TrimRight(o.WebhookBaseURL, "/") + "/webhooks/" + provider
}

var constructors = map[string]func(Options) Provider{
	config.ProviderStripe: func(o Options) Provider { return NewStripe(o) },
	config.ProviderSpeed:  func(o Options) Provider { return NewSpeed(o) },
	config.ProviderWert:   func(o Options) Provider { return NewWert(o) },
	config.ProviderPaidly: func(o Options) Provider { return NewPaidly(o) },
	config.ProviderVert:   func(o Options) Provider { return NewVert(o) },
}

// Registry resolves providers by name. It is read-only after construction.
type Registry struct {
	providers map[string]Provider
	def       string
}

// NewRegistry builds every known provider from cfg. Webhooks are accepted for
// all of them; only the default provider must hold an API key.
func NewRegistry(cfg config.PaymentsConfig, apiBasePath string, hc *http.Client) (*Registry, error) {
	r := &Registry{providers: make(map[string]Provider, len(constructors)), def: cfg.Default}
	for _, name := range config.KnownProviders {
		pc := cfg.Providers[name]
		pc.Name = name
		r.providers[name] = constructors[name](Options{
			Config:         pc,
			HTTPClient:     hc,
			Timeout:        cfg.Timeout,
			AllowUnsigned:  cfg.AllowUnsigned,
			SuccessURL:     cfg.SuccessURL,
			CancelURL:      cfg.CancelURL,
			WebhookBaseURL: joinURL(cfg.WebhookBaseURL, apiBasePath),
		})
	}
	if _, ok := r.providers[cfg.Default]; !ok {
		return nil, fmt.Errorf("payments: unknown default provider %q", cfg.Default)
	}
	if !cfg.Providers[cfg.Default].Configured() {
		return nil, fmt.Errorf("payments: default provider %q has no API key", cfg.Default)
	}
	return r, nil
}

// NewStaticRegistry wraps pre-built providers; def names the default.
func NewStaticRegistry(def string, ps ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(ps)), def: def}
	for _, p := range ps {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the named provider.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Default returns the provider used for new deposits.
func (r *Registry) Default() Provider { return r.providers[r.def] }

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for n := range r.providers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func joinURL(base, path string) string {
	base = strings.TrimRight(base, "/")
	if base == "" {
		return ""
	}
	if path == "" || path == "/" {
		return base
	}
	return base + "/" + strings.TrimLeft(path, "/")
}
