package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cast"
	"golang.org/x/time/rate"

	"github.com/vulntor/fwid/pkg/engine"
	"github.com/vulntor/fwid/pkg/fingerprint"
)

const (
	// NetlasName is the source name of Netlas observations.
	NetlasName = "netlas"

	DefaultNetlasBaseURL = "https://app.netlas.io/api"
	DefaultNetlasTimeout = 30 * time.Second
	// DefaultNetlasRateLimit is one request per second, the pace of the
	// free API tier.
	DefaultNetlasRateLimit = 1.0

	// maxNetlasResponseBytes caps a response body. One item with its source
	// document is far below this.
	maxNetlasResponseBytes = 8 << 20
)

// ErrMissingAPIKey is returned when a Netlas provider is built without a key.
var ErrMissingAPIKey = errors.New("netlas api key is required")

// Probe field paths mapped onto the Netlas response document, tried in
// order. The http.head and certificate.serial paths cover documents in the
// older response layout.
var netlasAliases = map[string][]string{
	"headers.server":             {"http.headers.server", "http.head.server"},
	"http.headers.server":        {"http.headers.server", "http.head.server"},
	"certificate.serial":         {"certificate.serial_number", "certificate.serial"},
	"tls.certificate.serial":     {"certificate.serial_number", "certificate.serial"},
	"tls.certificate.subject.cn": {"certificate.subject.common_name"},
	"tls.certificate.issuer.cn":  {"certificate.issuer.common_name"},
}

// NetlasConfig configures a NetlasProvider.
type NetlasConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// RateLimit is requests per second; zero or less disables pacing.
	RateLimit float64
	Burst     int
	Client    *http.Client
}

// NetlasProvider answers HTTP and TLS fields from the Netlas responses
// search. Every call issues one request for the newest response of the
// target; LookupAll answers all fields of a target from that one response.
type NetlasProvider struct {
	cfg     NetlasConfig
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

type netlasDocument struct {
	data       map[string]any
	observedAt time.Time
}

type netlasResponse struct {
	Items []struct {
		Data map[string]any `json:"data"`
	} `json:"items"`
}

// NewNetlasProvider validates cfg and builds a provider.
func NewNetlasProvider(cfg NetlasConfig) (*NetlasProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultNetlasBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultNetlasTimeout
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &NetlasProvider{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		now:     time.Now,
	}, nil
}

// Name implements Provider.
func (p *NetlasProvider) Name() string { return NetlasName }

// CanHandle implements Provider.
func (p *NetlasProvider) CanHandle(protocol fingerprint.Protocol, _ string) bool {
	return protocol == fingerprint.ProtocolHTTP || protocol == fingerprint.ProtocolTLS
}

// Lookup implements Provider.
func (p *NetlasProvider) Lookup(ctx context.Context, target string, ref engine.FieldRef) (engine.Observation, error) {
	doc, err := p.fetch(ctx, target)
	if err != nil {
		return engine.Observation{}, err
	}
	return doc.observe(ref)
}

// LookupAll implements BatchProvider. A field whose value cannot be read as
// a scalar is reported as absent with a note.
func (p *NetlasProvider) LookupAll(ctx context.Context, target string, refs []engine.FieldRef) (map[engine.FieldRef]engine.Observation, error) {
	doc, err := p.fetch(ctx, target)
	if err != nil {
		return nil, err
	}

	out := make(map[engine.FieldRef]engine.Observation, len(refs))
	for _, ref := range refs {
		obs, err := doc.observe(ref)
		if err != nil {
			obs = engine.Absent(NetlasName, doc.observedAt).WithNote(err.Error())
		}
		out[ref] = obs
	}
	return out, nil
}

func (d netlasDocument) observe(ref engine.FieldRef) (engine.Observation, error) {
	var (
		raw   any
		found bool
	)
	for _, path := range netlasPaths(ref.Field) {
		if raw, found = lookupPath(d.data, path); found {
			break
		}
	}
	if !found {
		return engine.Absent(NetlasName, d.observedAt), nil
	}
	value, present, err := jsonScalar(raw)
	if err != nil {
		return engine.Observation{}, fmt.Errorf("field %s: %w", ref.Field, err)
	}
	if !present {
		return engine.Absent(NetlasName, d.observedAt), nil
	}
	return engine.Present(value, NetlasName, d.observedAt), nil
}

func (p *NetlasProvider) fetch(ctx context.Context, target string) (netlasDocument, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return netlasDocument{}, err
	}

	params := url.Values{}
	params.Set("q", netlasQuery(target))
	params.Set("source_type", "include")
	params.Set("start", "0")
	params.Set("size", "1")
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/responses/?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return netlasDocument{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Api-Key", p.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return netlasDocument{}, fmt.Errorf("query netlas: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return netlasDocument{}, fmt.Errorf("unexpected status from netlas: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxNetlasResponseBytes+1))
	if err != nil {
		return netlasDocument{}, fmt.Errorf("read netlas body: %w", err)
	}
	if len(body) > maxNetlasResponseBytes {
		return netlasDocument{}, fmt.Errorf("netlas response exceeds %d bytes", maxNetlasResponseBytes)
	}

	// Numbers keep their text: a version 1.20 must not become 1.2.
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var decoded netlasResponse
	if err := dec.Decode(&decoded); err != nil {
		return netlasDocument{}, fmt.Errorf("decode netlas response: %w", err)
	}

	doc := netlasDocument{data: map[string]any{}, observedAt: p.now().UTC()}
	if len(decoded.Items) > 0 && decoded.Items[0].Data != nil {
		doc.data = decoded.Items[0].Data
		if ts, ok := doc.data["last_updated"]; ok {
			if parsed, err := cast.ToTimeE(ts); err == nil {
				doc.observedAt = parsed.UTC()
			}
		}
	}
	return doc, nil
}

func netlasQuery(target string) string {
	if net.ParseIP(target) != nil {
		return fmt.Sprintf("ip:%q", target)
	}
	return fmt.Sprintf("host:%q", target)
}

func netlasPaths(field string) []string {
	if paths, ok := netlasAliases[field]; ok {
		return paths
	}
	return []string{field}
}

// jsonScalar reads a decoded JSON value as observed text. Lists contribute
// their first element; null is an absence.
func jsonScalar(raw any) (string, bool, error) {
	switch v := raw.(type) {
	case nil:
		return "", false, nil
	case []any:
		if len(v) == 0 {
			return "", false, nil
		}
		return jsonScalar(v[0])
	case map[string]any:
		return "", false, fmt.Errorf("value is an object, not a scalar")
	case json.Number:
		return v.String(), true, nil
	}
	s, err := cast.ToStringE(raw)
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

// lookupPath walks a dotted path through nested objects. Lists are entered
// through their first element.
func lookupPath(data map[string]any, path string) (any, bool) {
	var cur any = data
	for _, part := range strings.Split(path, ".") {
		if list, ok := cur.([]any); ok {
			if len(list) == 0 {
				return nil, false
			}
			cur = list[0]
		}
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
