// Package invoke sends a headline to a model and validates the reply shape,
// retrying malformed replies within a fixed budget.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/headcheck/internal/llm"
	"github.com/ppiankov/headcheck/internal/model"
	"github.com/ppiankov/headcheck/internal/prompt"
	"github.com/ppiankov/headcheck/internal/worker"
)

// ErrRetriesExhausted is returned when every attempt produced a malformed reply
var ErrRetriesExhausted = errors.New("format retries exhausted")

// DefaultMaxAttempts bounds calls per invocation, including the first
const DefaultMaxAttempts = 5

// Invoker runs the two-message exchange against one provider
type Invoker struct {
	provider    llm.Provider
	limiter     *worker.Limiter
	maxAttempts int
	logger      *zap.Logger
}

// Option configures an Invoker
type Option func(*Invoker)

// WithLimiter paces calls through l, keyed by provider name
func WithLimiter(l *worker.Limiter) Option {
	return func(i *Invoker) { i.limiter = l }
}

// WithMaxAttempts sets the attempt budget; values below 1 keep the default
func WithMaxAttempts(n int) Option {
	return func(i *Invoker) {
		if n >= 1 {
			i.maxAttempts = n
		}
	}
}

// WithLogger sets the logger used for format warnings
func WithLogger(l *zap.Logger) Option {
	return func(i *Invoker) {
		if l != nil {
			i.logger = l
		}
	}
}

// New creates an invoker for provider
func New(provider llm.Provider, opts ...Option) *Invoker {
	i := &Invoker{
		provider:    provider,
		maxAttempts: DefaultMaxAttempts,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Reply is an accepted model reply
type Reply struct {
	Text     string // Normalized reply text
	Attempts int    // Model calls spent, including the accepted one
}

// Verdict asks for a free-form real/fake classification
func (i *Invoker) Verdict(ctx context.Context, headline, template string) (model.Verdict, Reply, error) {
	var verdict model.Verdict
	reply, err := i.invoke(ctx, headline, template, prompt.StrictVerdict, func(text string) bool {
		v, ok := model.ParseVerdict(text)
		verdict = v
		return ok
	})
	if err != nil {
		return "", reply, err
	}

	// Only the leading word counts
	if len(reply.Text) > 4 {
		reply.Text = reply.Text[:4]
	}
	return verdict, reply, nil
}

// Rating asks for a 1-5 confidence rating; the reply's first character decides
func (i *Invoker) Rating(ctx context.Context, headline, template string) (int, Reply, error) {
	var rating int
	reply, err := i.invoke(ctx, headline, template, prompt.StrictRating, func(text string) bool {
		r, ok := ParseRating(text)
		rating = r
		return ok
	})
	if err != nil {
		return 0, reply, err
	}
	return rating, reply, nil
}

func (i *Invoker) invoke(ctx context.Context, headline, template, constraint string, accept func(string) bool) (Reply, error) {
	system := template
	var last string

	for attempt := 1; attempt <= i.maxAttempts; attempt++ {
		if i.limiter != nil {
			if err := i.limiter.Wait(ctx, i.provider.Name()); err != nil {
				return Reply{}, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := i.provider.Complete(ctx, llm.ChatRequest{System: system, User: headline})
		if err != nil {
			return Reply{}, fmt.Errorf("%s completion: %w", i.provider.Name(), err)
		}

		last = Normalize(resp.Content)
		if accept(last) {
			return Reply{Text: last, Attempts: attempt}, nil
		}

		i.logger.Warn("rerunning model call due to format issues",
			zap.String("reply", last),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", i.maxAttempts))

		system = prompt.WithConstraint(template, constraint)
	}

	return Reply{Text: last, Attempts: i.maxAttempts},
		fmt.Errorf("%w: %d attempts, last reply %q", ErrRetriesExhausted, i.maxAttempts, last)
}

// Normalize trims surrounding whitespace and drops every '.'
func Normalize(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ".", "")
}

// ParseRating accepts replies whose first character is a digit 1-5
func ParseRating(s string) (int, bool) {
	if s == "" || s[0] < '1' || s[0] > '5' {
		return 0, false
	}
	return int(s[0] - '0'), true
}
