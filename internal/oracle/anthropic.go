package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"designflow/internal/config"
	"designflow/internal/domain"
	"designflow/internal/logging"
	"designflow/internal/report"
)

const defaultModel = "claude-sonnet-4-5-20250929"

type Options struct {
	APIKey         string
	Model          string
	MaxTokens      int
	Timeout        time.Duration
	MaxRetries     int
	RatePerMinute  int
	MaxConcurrent  int
	InitialBackoff time.Duration
	Logger         *slog.Logger
	// RequestOptions are appended to the SDK client options (base URL, HTTP client).
	RequestOptions []option.RequestOption
}

// Anthropic is an Advisor backed by the Messages API. Calls share one
// concurrency semaphore and one rate limiter per instance.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	retries   int
	backoff   time.Duration
	sem       *semaphore.Weighted
	limiter   *rate.Limiter
	log       *slog.Logger
}

func NewAnthropic(opts Options) *Anthropic {
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey), option.WithMaxRetries(0)}
	reqOpts = append(reqOpts, opts.RequestOptions...)
	a := &Anthropic{
		client:    anthropic.NewClient(reqOpts...),
		model:     opts.Model,
		maxTokens: int64(opts.MaxTokens),
		timeout:   opts.Timeout,
		retries:   opts.MaxRetries,
		backoff:   opts.InitialBackoff,
		log:       opts.Logger,
	}
	if a.model == "" {
		a.model = defaultModel
	}
	if a.maxTokens <= 0 {
		a.maxTokens = 2048
	}
	if a.timeout <= 0 {
		a.timeout = 30 * time.Second
	}
	if a.backoff <= 0 {
		a.backoff = time.Second
	}
	if a.log == nil {
		a.log = logging.Discard()
	}
	concurrent := opts.MaxConcurrent
	if concurrent <= 0 {
		concurrent = 1
	}
	a.sem = semaphore.NewWeighted(int64(concurrent))
	if opts.RatePerMinute > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(float64(opts.RatePerMinute)/60), opts.RatePerMinute)
	} else {
		a.limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return a
}

// New picks the advisor for cfg. Without a provider or API key it returns
// Disabled.
func New(cfg config.OracleConfig, logger *slog.Logger) Advisor {
	key := cfg.APIKey()
	if cfg.Provider != "anthropic" || key == "" {
		return Disabled{}
	}
	return NewAnthropic(Options{
		APIKey:        key,
		Model:         cfg.Model,
		MaxTokens:     cfg.MaxTokens,
		Timeout:       cfg.Timeout(),
		MaxRetries:    cfg.MaxRetries,
		RatePerMinute: cfg.RatePerMinute,
		MaxConcurrent: cfg.MaxConcurrent,
		Logger:        logger,
	})
}

func (a *Anthropic) SuggestAssignments(ctx context.Context, designers []DesignerInput, requests []RequestInput) ([]domain.Suggestion, error) {
	dj, err := json.Marshal(designers)
	if err != nil {
		return nil, err
	}
	rj, err := json.Marshal(requests)
	if err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf(`You schedule a design team. Match each pending request to the best designer, considering skills and current load in hours.

Designers:
%s

Pending requests:
%s

Reply with only a JSON array. Each element must be {"requestId": string, "designerId": string, "rationale": string}.`, dj, rj)
	text, err := a.complete(ctx, "suggest", prompt)
	if err != nil {
		return nil, err
	}
	return ParseSuggestions(text)
}

func (a *Anthropic) Summarize(ctx context.Context, stats report.Stats, period string) (string, error) {
	sj, err := json.Marshal(stats)
	if err != nil {
		return "", err
	}
	prompt := fmt.Sprintf(`Summarize the design team's %s in three short paragraphs: workload mix, bottlenecks and one recommendation.

Statistics:
%s`, period, sj)
	text, err := a.complete(ctx, "summarize", prompt)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty summary", ErrMalformed)
	}
	return text, nil
}

func (a *Anthropic) complete(ctx context.Context, operation, prompt string) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%s: rate limit wait: %w", operation, err)
	}
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%s: acquire concurrency slot: %w", operation, err)
	}
	defer a.sem.Release(1)

	var lastErr error
	backoff := a.backoff
	for attempt := 0; attempt <= a.retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, a.timeout)
		resp, err := a.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(a.model),
			MaxTokens: a.maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		cancel()
		if err == nil {
			var b strings.Builder
			for _, block := range resp.Content {
				if block.Type == "text" {
					b.WriteString(block.Text)
				}
			}
			return b.String(), nil
		}
		lastErr = err
		if !retriable(err) || attempt == a.retries {
			break
		}
		a.log.Warn("oracle call failed, retrying", "operation", operation, "attempt", attempt+1, "backoff", backoff, "err", err)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return "", fmt.Errorf("%s: %w", operation, ctx.Err())
		}
	}
	return "", fmt.Errorf("%s: %w", operation, lastErr)
}

func retriable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
