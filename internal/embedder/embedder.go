package embedder

import (
	"context"
	"fmt"
	"time"

	"document-rag-platform/internal/config"
	"document-rag-platform/internal/logger"
	"document-rag-platform/internal/telemetry"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

// Provider is a single embedding backend. EmbedBatch must return exactly
// one vector per input text, in input order.
type Provider interface {
	Name() string
	Model() string
	Dimension() int
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Service wraps a Provider with batching, rate limiting, a circuit breaker
// and exponential backoff retry on transient failures.
type Service struct {
	provider    Provider
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
	metrics     *telemetry.Metrics
	batchSize   int
	maxRetries  int
	baseDelay   time.Duration
	timeout     time.Duration
}

// NewProvider builds the configured backend.
func NewProvider(cfg *config.Config) (Provider, error) {
	switch cfg.EmbeddingsProvider {
	case "google", "":
		return NewGoogleProvider(cfg)
	case "openai":
		return NewOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", cfg.EmbeddingsProvider)
	}
}

func NewService(provider Provider, metrics *telemetry.Metrics, cfg *config.Config) *Service {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "EmbeddingsAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	rpm := cfg.EmbedRateLimitRPM
	if rpm <= 0 {
		rpm = 600
	}
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}
	// RPM limit with some buffer
	rateLimiter := rate.NewLimiter(rate.Limit(float64(rpm)*0.9/60.0), burst)

	batchSize := cfg.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	maxRetries := cfg.EmbedMaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := cfg.EmbedRetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}

	return &Service{
		provider:    provider,
		breaker:     breaker,
		rateLimiter: rateLimiter,
		metrics:     metrics,
		batchSize:   batchSize,
		maxRetries:  maxRetries,
		baseDelay:   baseDelay,
		timeout:     cfg.EmbedTimeout,
	}
}

func (s *Service) Dimension() int { return s.provider.Dimension() }

// EmbedAll embeds texts in batches of at most batchSize, preserving input
// order. Any batch failing after retries fails the whole call.
func (s *Service) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	tracer := otel.Tracer("embedder")
	ctx, span := tracer.Start(ctx, "embedder.embed_all")
	defer span.End()
	span.SetAttributes(
		attribute.Int("embed.texts", len(texts)),
		attribute.String("embed.provider", s.provider.Name()),
		attribute.String("embed.model", s.provider.Model()),
	)

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := s.embedBatch(ctx, texts[start:end])
		if err != nil {
			span.SetAttributes(attribute.Bool("embed.error", true))
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// EmbedQuery embeds a single retrieval query.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embedBatch retries transient failures with exponential backoff. A terminal
// provider error aborts immediately.
func (s *Service) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		vectors, err := s.embedOnce(ctx, texts)
		if err == nil {
			if attempt > 1 {
				logger.Debug("Embedding batch succeeded after retry", "attempt", attempt)
			}
			return vectors, nil
		}
		lastErr = err

		if !IsTransient(err) && err != gobreaker.ErrOpenState {
			return nil, &EmbeddingFailedError{Attempts: attempt, Err: err}
		}
		logger.Warn("Embedding batch failed, will retry",
			"attempt", attempt, "max_retries", s.maxRetries, "error", err)

		if attempt == s.maxRetries {
			break
		}

		// baseDelay * 2^(attempt-1)
		delay := s.baseDelay
		for i := 1; i < attempt; i++ {
			delay *= 2
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, &EmbeddingFailedError{Attempts: s.maxRetries, Err: lastErr}
}

func (s *Service) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	if err := s.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	result, err := s.breaker.Execute(func() (interface{}, error) {
		vectors, err := s.provider.EmbedBatch(callCtx, texts)
		if err != nil {
			return nil, err
		}
		// A short response would silently misalign vectors with chunks,
		// so any count mismatch fails the batch.
		if len(vectors) != len(texts) {
			return nil, Transient(fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(texts)))
		}
		return vectors, nil
	})
	if s.metrics != nil {
		s.metrics.EmbedBatchDuration.Record(ctx, time.Since(started).Seconds())
	}
	if err != nil {
		return nil, err
	}
	return result.([][]float32), nil
}
