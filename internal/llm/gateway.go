package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ppiankov/hopqa/internal/cache"
	"github.com/ppiankov/hopqa/internal/logging"
	"github.com/ppiankov/hopqa/internal/metrics"
	"github.com/ppiankov/hopqa/internal/worker"
	"go.uber.org/zap"
)

// GatewayConfig bounds one Invoke
type GatewayConfig struct {
	MaxRetries int           // Total attempts, not re-tries after the first
	Backoff    time.Duration // Fixed pause between attempts
	Timeout    time.Duration // Deadline for each attempt
}

// Call is one logical oracle request
type Call struct {
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
	JSONMode    bool

	// Validate rejects malformed output; a rejection costs an attempt
	// exactly like a transport error. Nil accepts any non-empty text.
	Validate func(string) bool

	// Log receives per-attempt diagnostics. Nil uses the gateway logger.
	Log logging.Sink

	// After runs once after every attempt, success or not
	After func(ctx context.Context)
}

// Gateway wraps a Provider with bounded retry, output validation, an
// optional response cache, per-model rate limiting and metrics. It never
// returns an error: a caller gets text or a failed flag.
type Gateway struct {
	provider Provider
	cfg      GatewayConfig
	cache    cache.Cache
	limiter  *worker.Limiter
	metrics  *metrics.Recorder
	logger   *zap.Logger
}

// GatewayOption configures optional gateway collaborators
type GatewayOption func(*Gateway)

// WithCache stores validated responses and serves repeats from c
func WithCache(c cache.Cache) GatewayOption {
	return func(g *Gateway) { g.cache = c }
}

// WithLimiter throttles attempts per model
func WithLimiter(l *worker.Limiter) GatewayOption {
	return func(g *Gateway) { g.limiter = l }
}

// WithMetrics records attempts and outcomes
func WithMetrics(m *metrics.Recorder) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

// WithLogger sets the fallback logger
func WithLogger(l *zap.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

// NewGateway wraps provider
func NewGateway(provider Provider, cfg GatewayConfig, opts ...GatewayOption) *Gateway {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	g := &Gateway{
		provider: provider,
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Invoke runs call with up to MaxRetries attempts. Each attempt is a full
// re-invocation under its own deadline. It returns the first text that is
// non-empty and passes Validate, or ("", false) once the budget is spent
// or ctx is cancelled.
func (g *Gateway) Invoke(ctx context.Context, call Call) (string, bool) {
	log := call.Log
	if log == nil {
		log = g.logger
	}

	key := g.cacheKey(call)
	if key != "" {
		if data, ok := g.cache.Get(key); ok {
			text := string(data)
			if accept(call, text) {
				g.metrics.Call(call.Model, "cached")
				log.Debug("oracle cache hit", zap.String("model", call.Model))
				return text, true
			}
			_ = g.cache.Delete(key)
		}
	}

	req := CompletionRequest{
		Model:       call.Model,
		Messages:    call.Messages,
		Temperature: call.Temperature,
		MaxTokens:   call.MaxTokens,
		JSONMode:    call.JSONMode,
	}

	for attempt := 1; attempt <= g.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			break
		}

		text, ok := g.attempt(ctx, req, call, attempt, log)
		if call.After != nil {
			call.After(ctx)
		}
		if ok {
			if key != "" {
				if err := g.cache.Set(key, []byte(text), 0); err != nil {
					log.Warn("oracle cache write failed", zap.Error(err))
				}
			}
			g.metrics.Call(call.Model, "ok")
			return text, true
		}

		if attempt < g.cfg.MaxRetries {
			if err := worker.Sleep(ctx, g.cfg.Backoff); err != nil {
				break
			}
		}
	}

	g.metrics.Call(call.Model, "exhausted")
	log.Error("oracle retries exhausted",
		zap.String("model", call.Model),
		zap.Int("attempts", g.cfg.MaxRetries),
	)
	return "", false
}

func (g *Gateway) attempt(ctx context.Context, req CompletionRequest, call Call, n int, log logging.Sink) (string, bool) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx, call.Model); err != nil {
			return "", false
		}
	}

	actx := ctx
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.provider.Complete(actx, req)
	elapsed := time.Since(start)

	if err != nil {
		g.metrics.Attempt(call.Model, "error", elapsed, 0)
		log.Warn("oracle attempt failed",
			zap.String("model", call.Model),
			zap.Int("attempt", n),
			zap.Int("max_attempts", g.cfg.MaxRetries),
			zap.Error(err),
		)
		return "", false
	}

	if !accept(call, resp.Text) {
		g.metrics.Attempt(call.Model, "rejected", elapsed, resp.TokensUsed)
		log.Warn("oracle output rejected",
			zap.String("model", call.Model),
			zap.Int("attempt", n),
			zap.Int("max_attempts", g.cfg.MaxRetries),
			zap.Int("length", len(resp.Text)),
		)
		return "", false
	}

	g.metrics.Attempt(call.Model, "ok", elapsed, resp.TokensUsed)
	return resp.Text, true
}

func accept(call Call, text string) bool {
	if text == "" {
		return false
	}
	return call.Validate == nil || call.Validate(text)
}

// cacheKey is empty when caching is off. Video payloads are included in the
// fingerprint, so clip content changes invalidate entries.
func (g *Gateway) cacheKey(call Call) string {
	if g.cache == nil {
		return ""
	}
	msgs, err := json.Marshal(call.Messages)
	if err != nil {
		return ""
	}
	return cache.Key(
		g.provider.Name(),
		call.Model,
		fmt.Sprintf("%.3f", call.Temperature),
		fmt.Sprintf("%d", call.MaxTokens),
		fmt.Sprintf("%t", call.JSONMode),
		string(msgs),
	)
}
