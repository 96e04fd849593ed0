// Package provider sends a transcript to a hosted LLM and returns its reply.
//
// Three providers are supported, each with its own wire format. They share a
// single Provider interface and are looked up by name in an Adapter.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/apperr"
	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/transcript"
)

const (
	OpenAI = "openai"
	Gemini = "gemini"
	Claude = "claude"
)

const DefaultTimeout = 60 * time.Second

// Config selects the provider and credentials for one call.
type Config struct {
	Provider string
	APIKey   string
	Model    string
}

// Provider is one LLM backend.
type Provider interface {
	Name() string
	DefaultModel() string
	Send(ctx context.Context, apiKey, model string, messages transcript.Transcript) (string, error)
}

// Adapter dispatches requests to the provider named in the Config.
type Adapter struct {
	providers map[string]Provider
	logger    logrus.FieldLogger
}

type Option func(*options)

type options struct {
	client   *http.Client
	logger   logrus.FieldLogger
	baseURLs map[string]string
}

// WithHTTPClient replaces the shared HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithBaseURL points a provider at a different host, e.g. a test server.
func WithBaseURL(provider, baseURL string) Option {
	return func(o *options) {
		o.baseURLs[provider] = strings.TrimSuffix(baseURL, "/")
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func NewAdapter(opts ...Option) *Adapter {
	o := &options{
		client:   &http.Client{Timeout: DefaultTimeout},
		logger:   logrus.StandardLogger(),
		baseURLs: map[string]string{},
	}
	for _, opt := range opts {
		opt(o)
	}

	base := func(name, fallback string) string {
		if u, ok := o.baseURLs[name]; ok {
			return u
		}
		return fallback
	}

	h := httpDoer{client: o.client}
	return NewAdapterWith(o.logger,
		&openAI{http: h, baseURL: base(OpenAI, "https://api.openai.com")},
		&gemini{http: h, baseURL: base(Gemini, "https://generativelanguage.googleapis.com")},
		&claude{http: h, baseURL: base(Claude, "https://api.anthropic.com")},
	)
}

// NewAdapterWith builds an Adapter from an explicit provider set.
func NewAdapterWith(logger logrus.FieldLogger, providers ...Provider) *Adapter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	a := &Adapter{
		providers: make(map[string]Provider, len(providers)),
		logger:    logger.WithField("component", "provider"),
	}
	for _, p := range providers {
		a.providers[p.Name()] = p
	}
	return a
}

func (a *Adapter) Names() []string {
	return slices.Sorted(maps.Keys(a.providers))
}

// Send issues exactly one request. Configuration problems are reported
// before any network I/O.
func (a *Adapter) Send(ctx context.Context, cfg Config, messages transcript.Transcript) (string, error) {
	if cfg.APIKey == "" {
		return "", apperr.Config("API Key is missing")
	}
	p, ok := a.providers[cfg.Provider]
	if !ok {
		return "", apperr.UnknownProvider(cfg.Provider)
	}

	model := cfg.Model
	if model == "" {
		model = p.DefaultModel()
	}

	log := a.logger.WithFields(logrus.Fields{
		"provider": cfg.Provider,
		"model":    model,
		"messages": len(messages),
	})
	start := time.Now()
	reply, err := p.Send(ctx, cfg.APIKey, model, messages)
	if err != nil {
		log.WithError(err).Warn("provider request failed")
		return "", err
	}
	log.WithField("duration", time.Since(start).String()).Debug("provider replied")
	return reply, nil
}

// splitSystem separates the optional leading system message from the chat
// turns.
func splitSystem(messages transcript.Transcript) (string, bool, []transcript.Message) {
	system, ok := messages.System()
	return system.Content, ok, messages.ChatMessages()
}

type httpDoer struct {
	client *http.Client
}

// postJSON sends body and returns the raw response body of a 2xx reply.
func (h httpDoer) postJSON(ctx context.Context, label, url string, headers map[string]string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperr.Transport(label, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.Transport(label, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Cancelled("request")
		}
		return nil, apperr.Transport(label, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Cancelled("request")
		}
		return nil, apperr.Transport(label, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Provider(label, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

var errMissingReply = errors.New("invalid response structure")

func decode(label string, body []byte, into any) error {
	if err := json.Unmarshal(body, into); err != nil {
		return apperr.Parse(label, fmt.Errorf("decode: %w", err))
	}
	return nil
}

// text checks that an extracted reply is present and non-empty.
func text(label string, s *string) (string, error) {
	if s == nil || *s == "" {
		return "", apperr.Parse(label, errMissingReply)
	}
	return *s, nil
}
