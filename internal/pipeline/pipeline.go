// Package pipeline drives a generation run end to end: acquire a
// credential, call the completion API, parse the response into files,
// and materialize them as a bundle. Each run walks a linear state
// machine and ends in Done or a classified failure.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"appforge/internal/broker"
	"appforge/internal/bundle"
	"appforge/internal/client"
	"appforge/internal/config"
	"appforge/internal/extract"
	"appforge/internal/logging"
	"appforge/internal/security"
)

const maxBackoff = 30 * time.Second

// ClientFactory builds a completion client for a run. Tests swap it
// for a fake.
type ClientFactory func(ctx context.Context, cfg *config.Config, credential string) (client.Client, error)

// Pipeline runs generations against one broker and materializer.
type Pipeline struct {
	cfg       *config.Config
	broker    *broker.Broker
	mat       *bundle.Materializer
	newClient ClientFactory
	observer  StateObserver

	mu    sync.Mutex
	state State
}

// Option configures a pipeline.
type Option func(*Pipeline)

// WithObserver registers a phase-transition callback.
func WithObserver(fn StateObserver) Option {
	return func(p *Pipeline) { p.observer = fn }
}

// WithClientFactory overrides how completion clients are built.
func WithClientFactory(fn ClientFactory) Option {
	return func(p *Pipeline) { p.newClient = fn }
}

// New creates a pipeline.
func New(cfg *config.Config, br *broker.Broker, mat *bundle.Materializer, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		broker:    br,
		mat:       mat,
		newClient: client.NewClient,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result is a successful run's outcome.
type Result struct {
	Info        bundle.Info
	Report      *bundle.ChangeReport
	UsedDemoKey bool
	Attempts    int
	Fallback    bool
}

// Generate creates a new bundle from a prompt.
func (p *Pipeline) Generate(ctx context.Context, name, prompt string) (*Result, error) {
	return p.run(ctx, name, prompt, "")
}

// Rework modifies an existing bundle according to a prompt.
func (p *Pipeline) Rework(ctx context.Context, bundleID, prompt string) (*Result, error) {
	return p.run(ctx, "", prompt, bundleID)
}

func (p *Pipeline) run(ctx context.Context, name, prompt, reworkID string) (*Result, error) {
	result := &Result{}

	p.setState(StateAcquiringCredential)
	cred, perr := p.acquireCredential(ctx)
	if perr != nil {
		p.setState(StateFailed)
		return nil, perr
	}
	result.UsedDemoKey = cred.demo

	p.setState(StateCalling)
	messages, perr := p.buildMessages(name, prompt, reworkID)
	if perr != nil {
		p.setState(StateFailed)
		return nil, perr
	}
	c, err := p.newClient(ctx, p.cfg, cred.key)
	if err != nil {
		p.setState(StateFailed)
		return nil, failure(FailureCredentialMissing, "no usable API client; check your configuration", err)
	}
	defer c.Close()

	raw, attempts, err := p.callWithRetry(ctx, c, messages)
	result.Attempts = attempts
	if err != nil {
		p.setState(StateFailed)
		return nil, classifyCallError(err)
	}

	p.setState(StateParsing)
	if strings.TrimSpace(raw) == "" {
		p.setState(StateFailed)
		return nil, failure(FailureParse, "the API returned an empty response", nil)
	}
	extracted := extract.Files(raw)
	result.Fallback = extracted.Fallback
	if extracted.Fallback {
		logging.Warn("response had no structured file collection; using raw text as the page")
	}

	p.setState(StateMaterializing)
	if reworkID == "" {
		result.Info, err = p.mat.Create(ctx, name, extracted.Files)
	} else {
		result.Report, err = p.mat.Rework(ctx, reworkID, extracted.Files)
		if err == nil {
			result.Info, err = p.mat.ReadInfo(reworkID)
		}
	}
	if err != nil {
		p.setState(StateFailed)
		return nil, failure(FailureMaterialization, "failed to write the app bundle to disk", err)
	}

	// Demo usage counts only after the bundle actually landed on disk,
	// and exactly once per run regardless of retry attempts.
	if cred.demo {
		if err := p.broker.IncrementUsage(); err != nil {
			logging.Warn("failed to record demo key usage", "error", err)
		}
	}

	p.setState(StateDone)
	return result, nil
}

type credential struct {
	key  string
	demo bool
}

// acquireCredential resolves the credential for a run. A user-supplied
// key always wins; the brokered demo key is the fallback and is gated
// by the usage quota. Non-hosted providers manage their own keys in
// the client factory.
func (p *Pipeline) acquireCredential(ctx context.Context) (credential, *Error) {
	if p.cfg.API.Provider != config.ProviderHosted {
		return credential{}, nil
	}

	if userKey := security.GetUserKey(p.cfg.API.APIKey); userKey.IsSet() {
		logging.Debug("using user API key", "source", userKey.Source)
		return credential{key: userKey.Value}, nil
	}

	if err := p.broker.RegisterDevice(ctx); err != nil {
		return credential{}, classifyCredentialError(err)
	}
	ok, err := p.broker.CanUseDemoKey()
	if err != nil {
		return credential{}, classifyCredentialError(err)
	}
	if !ok {
		quota, qerr := p.broker.Quota()
		if qerr == nil {
			return credential{}, failure(FailureQuotaExceeded,
				"demo limit reached ("+quota.String()+"); set your own API key to continue", nil)
		}
		return credential{}, failure(FailureQuotaExceeded,
			"demo limit reached; set your own API key to continue", nil)
	}
	key, err := p.broker.FetchDemoKey(ctx)
	if err != nil {
		return credential{}, classifyCredentialError(err)
	}
	logging.Debug("using brokered demo key")
	return credential{key: key, demo: true}, nil
}

func (p *Pipeline) buildMessages(name, prompt, reworkID string) ([]client.Message, *Error) {
	if reworkID == "" {
		return generateMessages(prompt), nil
	}
	existing, err := p.mat.Files(reworkID)
	if err != nil {
		return nil, failure(FailureMaterialization, "could not read bundle "+reworkID, err)
	}
	return reworkMessages(prompt, existing), nil
}

// callWithRetry issues the completion call, retrying transient network
// failures with a delay proportional to the attempt number. API status
// errors are terminal: retrying a 429 or a rejected request only digs
// the hole deeper.
func (p *Pipeline) callWithRetry(ctx context.Context, c client.Client, messages []client.Message) (string, int, error) {
	maxAttempts := p.cfg.API.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		raw, err := c.Complete(ctx, messages)
		if err == nil {
			return raw, attempt, nil
		}
		lastErr = err

		if attempt == maxAttempts || !client.IsTransient(err) {
			return "", attempt, err
		}

		delay := client.BackoffDelay(p.cfg.API.Retry.RetryDelay, attempt, maxBackoff)
		logging.Warn("transient API failure, retrying",
			"attempt", attempt, "max_attempts", maxAttempts, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return "", attempt, ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", maxAttempts, lastErr
}
