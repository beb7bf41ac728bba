// Package router implements the provider-agnostic ModelRouter (§4.4): role
// resolution, per-provider circuit breakers, non-streaming fallback chains,
// response-shape validation and call auditing.
package router

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/baker-street/brain/pkg/apperr"
	"github.com/baker-street/brain/pkg/breaker"
	"github.com/baker-street/brain/pkg/logger"
	"github.com/baker-street/brain/pkg/metrics"
)

// Config is the router's full configuration (§4.4).
type Config struct {
	Providers     map[string]ProviderConfig
	Models        []ModelConfig
	Roles         map[string]string
	FallbackChain []string
}

// AdapterFactory builds the Adapter for a given provider config, invoked
// lazily on the first use of each provider (§4.4).
type AdapterFactory func(ProviderConfig) Adapter

// Router resolves roles to models, runs adapter calls behind per-provider
// breakers, and retries the fallback chain on non-streaming calls.
type Router struct {
	mu       sync.RWMutex
	cfg      Config
	breakers map[string]*breaker.Breaker
	adapters map[string]Adapter
	factories map[ProviderKind]AdapterFactory

	auditMu sync.RWMutex
	audit   AuditFunc
}

// New creates a router without constructing any adapter: adapterFor builds
// each provider's adapter from its kind's factory on first use.
func New(cfg Config, factories map[ProviderKind]AdapterFactory) *Router {
	r := &Router{
		cfg:       cfg,
		breakers:  map[string]*breaker.Breaker{},
		adapters:  map[string]Adapter{},
		factories: factories,
	}
	return r
}

// SetOnAPICall registers the audit callback (§4.4).
func (r *Router) SetOnAPICall(fn AuditFunc) {
	r.auditMu.Lock()
	defer r.auditMu.Unlock()
	r.audit = fn
}

// UpdateConfig merges roles and/or fallback chain updates in place (§4.4).
func (r *Router) UpdateConfig(roles map[string]string, fallbackChain []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for role, modelID := range roles {
		r.cfg.Roles[role] = modelID
	}
	if fallbackChain != nil {
		r.cfg.FallbackChain = fallbackChain
	}
}

func (r *Router) resolveModel(params ChatParams) (ModelConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	modelID := params.ModelOverride
	if modelID == "" {
		role := params.Role
		if role == "" {
			role = "agent"
		}
		var ok bool
		modelID, ok = r.cfg.Roles[role]
		if !ok {
			return ModelConfig{}, errors.Errorf("unknown role: %s", role)
		}
	}

	for _, m := range r.cfg.Models {
		if m.ID == modelID {
			return m, nil
		}
	}
	return ModelConfig{}, errors.Errorf("unknown model id: %s", modelID)
}

func reportBreakerState(provider string, b *breaker.Breaker) {
	metrics.BreakerState.WithLabelValues(provider).Set(metrics.BreakerStateValue(b.State().String()))
}

func (r *Router) breakerFor(provider string) *breaker.Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[provider]
	if !ok {
		b = breaker.New(breaker.Config{})
		r.breakers[provider] = b
	}
	return b
}

func (r *Router) adapterFor(providerKey string) (Adapter, ProviderConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pc, ok := r.cfg.Providers[providerKey]
	if !ok {
		return nil, ProviderConfig{}, errors.Errorf("unknown provider: %s", providerKey)
	}

	if a, ok := r.adapters[providerKey]; ok {
		return a, pc, nil
	}

	factory, ok := r.factories[pc.Kind]
	if !ok {
		return nil, ProviderConfig{}, errors.Errorf("no adapter factory registered for provider kind: %s", pc.Kind)
	}
	adapter := factory(pc)
	r.adapters[providerKey] = adapter
	return adapter, pc, nil
}

func (r *Router) emitAudit(provider, model string, start time.Time, usage *Usage, err error) {
	r.auditMu.RLock()
	fn := r.audit
	r.auditMu.RUnlock()
	if fn == nil {
		return
	}

	evt := AuditEvent{
		Provider:   provider,
		Model:      model,
		DurationMs: time.Since(start).Milliseconds(),
		Err:        err,
	}
	if usage != nil {
		in, out := usage.InputTokens, usage.OutputTokens
		evt.InputTokens = &in
		evt.OutputTokens = &out
		evt.Cost = usage.TotalCost()
	}
	fn(evt)
}

// UseOAuth reports whether resolving params against the configured roles
// would hit a provider authenticated via OAuth token, consumed by the
// context builder to prepend the Claude-Code identity block (§4.4, §4.6).
func (r *Router) UseOAuth(params ChatParams) bool {
	model, err := r.resolveModel(params)
	if err != nil {
		return false
	}
	r.mu.RLock()
	pc := r.cfg.Providers[model.Provider]
	r.mu.RUnlock()
	return pc.useOAuth()
}

// candidateChain builds the ordered list of model ids to try: the
// resolved primary followed by the configured fallback chain, for
// non-streaming calls only (§4.4).
func (r *Router) candidateChain(primary ModelConfig) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain := []string{primary.ID}
	for _, id := range r.cfg.FallbackChain {
		if id != primary.ID {
			chain = append(chain, id)
		}
	}
	return chain
}

func (r *Router) modelByID(id string) (ModelConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.cfg.Models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelConfig{}, false
}

// Chat resolves a model and runs it behind its provider's breaker,
// falling through the fallback chain on any error (§4.4).
func (r *Router) Chat(ctx context.Context, params ChatParams) (Response, error) {
	primary, err := r.resolveModel(params)
	if err != nil {
		return Response{}, err
	}

	var lastErr error
	for _, modelID := range r.candidateChain(primary) {
		model, ok := r.modelByID(modelID)
		if !ok {
			continue
		}

		resp, err := r.callOnce(ctx, model, params)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		logger.G(ctx).WithError(err).WithField("model", model.ID).Warn("chat call failed, trying next candidate")
	}
	return Response{}, lastErr
}

func (r *Router) callOnce(ctx context.Context, model ModelConfig, params ChatParams) (Response, error) {
	adapter, _, err := r.adapterFor(model.Provider)
	if err != nil {
		return Response{}, err
	}
	b := r.breakerFor(model.Provider)

	start := time.Now()
	var resp Response
	callErr := b.Call(model.Provider, func() error {
		var err error
		resp, err = adapter.Chat(ctx, model, params)
		return err
	})

	reportBreakerState(model.Provider, b)

	if callErr != nil {
		if _, isOpen := callErr.(*breaker.ErrOpen); isOpen {
			callErr = apperr.BreakerOpen(model.Provider)
		}
		r.emitAudit(model.Provider, model.ID, start, nil, callErr)
		return Response{}, callErr
	}

	if err := validateResponse(resp); err != nil {
		r.emitAudit(model.Provider, model.ID, start, nil, err)
		return Response{}, err
	}
	resp.Content = filterContentBlocks(resp.Content)
	applyCost(model, &resp.Usage)

	r.emitAudit(model.Provider, model.ID, start, &resp.Usage, nil)
	return resp, nil
}

// applyCost fills in the usage's per-direction cost from the model's
// configured per-million-token rates (supplemented cost accounting).
func applyCost(model ModelConfig, usage *Usage) {
	usage.InputCost = float64(usage.InputTokens) / 1_000_000 * model.CostPer1MInput
	usage.OutputCost = float64(usage.OutputTokens) / 1_000_000 * model.CostPer1MOutput
}

// ChatStream resolves a model and streams it behind its provider's
// breaker. Unlike Chat, it never falls through to another candidate: a
// breaker-open error is surfaced immediately (§4.4).
func (r *Router) ChatStream(ctx context.Context, params ChatParams, emit func(StreamEvent)) error {
	model, err := r.resolveModel(params)
	if err != nil {
		return err
	}

	adapter, _, err := r.adapterFor(model.Provider)
	if err != nil {
		return err
	}
	b := r.breakerFor(model.Provider)

	if err := b.Allow(model.Provider); err != nil {
		reportBreakerState(model.Provider, b)
		streamErr := apperr.BreakerOpen(model.Provider)
		r.emitAudit(model.Provider, model.ID, time.Now(), nil, streamErr)
		return streamErr
	}

	start := time.Now()
	var finalResp *Response
	err = adapter.ChatStream(ctx, model, params, func(evt StreamEvent) {
		if evt.Type == EventMessageDone && evt.Response != nil {
			validated := *evt.Response
			validated.Content = filterContentBlocks(validated.Content)
			finalResp = &validated
			evt.Response = &validated
		}
		emit(evt)
	})

	if err != nil {
		b.RecordFailure()
		reportBreakerState(model.Provider, b)
		r.emitAudit(model.Provider, model.ID, start, nil, err)
		return err
	}
	if finalResp == nil {
		err := apperr.InvalidResponseShape("chat stream completed without a terminal message_done event")
		b.RecordFailure()
		reportBreakerState(model.Provider, b)
		r.emitAudit(model.Provider, model.ID, start, nil, err)
		return err
	}
	if err := validateResponse(*finalResp); err != nil {
		b.RecordFailure()
		reportBreakerState(model.Provider, b)
		r.emitAudit(model.Provider, model.ID, start, nil, err)
		return err
	}
	applyCost(model, &finalResp.Usage)

	b.RecordSuccess()
	reportBreakerState(model.Provider, b)
	r.emitAudit(model.Provider, model.ID, start, &finalResp.Usage, nil)
	return nil
}

// validateResponse enforces the §4.4 response-shape contract: a content
// array and integer usage counters must be present.
func validateResponse(resp Response) error {
	if resp.Content == nil {
		return apperr.InvalidResponseShape("response missing content array")
	}
	if resp.Usage.InputTokens < 0 || resp.Usage.OutputTokens < 0 {
		return apperr.InvalidResponseShape("response usage has negative token counts")
	}
	return nil
}

// filterContentBlocks keeps only the block types the router understands,
// dropping anything else with a warning (§4.4).
func filterContentBlocks(blocks []ContentBlock) []ContentBlock {
	kept := make([]ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case BlockText, BlockToolUse, BlockToolResult:
			kept = append(kept, b)
		default:
			logger.L.WithField("type", b.Type).Warn("dropping unknown content block type")
		}
	}
	return kept
}
