// Package workflow runs the three advisory stages over one city record
// and records each stage's conclusion in a conversation log.
package workflow

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"urban-greenery/decision/climate"
	"urban-greenery/decision/ecology"
	"urban-greenery/decision/sustainability"
)

// Agent names as they appear in the conversation log.
const (
	AgentSystem     = "System"
	AgentClimate    = "Climate Analyst"
	AgentEcology    = "Ecological Planner"
	AgentAdvisor    = "Sustainability Advisor"
	timestampLayout = "15:04:05"
)

// Entry is one conversation log line.
type Entry struct {
	Agent     string `json:"agent"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Bundle is the merged output of all three stages. It holds no ids or
// times, so the same record always yields the same bundle.
type Bundle struct {
	City           string                        `json:"city"`
	Climate        climate.Assessment            `json:"climate_analysis"`
	Plan           ecology.Plan                  `json:"ecological_plan"`
	Recommendation sustainability.Recommendation `json:"sustainability_plan"`
}

// Result is one run's bundle and log.
type Result struct {
	ID     uuid.UUID `json:"id"`
	Bundle Bundle    `json:"recommendations"`
	Log    []Entry   `json:"agent_messages"`
}

// Pipeline runs records through the stages. It is safe for concurrent use.
type Pipeline struct {
	advisor     *sustainability.Advisor
	clock       func() time.Time
	logger      *zap.Logger
	concurrency int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the source of log timestamps.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// WithAdvisor replaces the default sustainability advisor.
func WithAdvisor(a *sustainability.Advisor) Option {
	return func(p *Pipeline) { p.advisor = a }
}

// WithLogger sets the logger for run events.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithConcurrency bounds the number of cities RunAll evaluates at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// New creates a pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		advisor:     sustainability.NewAdvisor(),
		clock:       time.Now,
		logger:      zap.NewNop(),
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run evaluates one record with a pipeline built from opts.
func Run(ctx context.Context, rec climate.CityRecord, opts ...Option) (*Result, error) {
	return New(opts...).Run(ctx, rec)
}

// Run evaluates one record. A missing input field aborts the run.
func (p *Pipeline) Run(ctx context.Context, rec climate.CityRecord) (*Result, error) {
	res := &Result{ID: uuid.New(), Log: make([]Entry, 0, 5)}
	log := func(agent, msg string, data any) {
		res.Log = append(res.Log, Entry{
			Agent:     agent,
			Message:   msg,
			Data:      data,
			Timestamp: p.clock().Format(timestampLayout),
		})
	}
	logger := p.logger.With(zap.String("city", rec.City), zap.String("run_id", res.ID.String()))

	log(AgentSystem, fmt.Sprintf("🚀 Greenery advisory initiated for %s", rec.City), nil)

	assessment, err := climate.Assess(rec)
	if err != nil {
		logger.Warn("climate assessment failed", zap.Error(err))
		return nil, fmt.Errorf("%s: %w", AgentClimate, err)
	}
	log(AgentClimate, assessment.Summary(), assessment)

	plan, err := ecology.Derive(rec, assessment)
	if err != nil {
		logger.Warn("ecological plan failed", zap.Error(err))
		return nil, fmt.Errorf("%s: %w", AgentEcology, err)
	}
	log(AgentEcology, plan.Summary(), plan)

	recommendation, err := p.advisor.Advise(ctx, rec, assessment, plan)
	if err != nil {
		logger.Warn("sustainability advice failed", zap.Error(err))
		return nil, fmt.Errorf("%s: %w", AgentAdvisor, err)
	}
	log(AgentAdvisor, recommendation.Summary(), recommendation)

	log(AgentSystem, "✅ Multi-agent analysis complete. Recommendations generated.", nil)

	res.Bundle = Bundle{
		City:           rec.City,
		Climate:        assessment,
		Plan:           plan,
		Recommendation: recommendation,
	}
	logger.Debug("advisory complete",
		zap.Float64("resilience", recommendation.GreenResilienceScore),
		zap.Int("trees", plan.TreesToPlant))
	return res, nil
}

// Outcome is one city's result from RunAll.
type Outcome struct {
	City   string
	Result *Result
	Err    error
}

// RunAll evaluates every record independently and in parallel. Outcomes
// are in input order; one city's failure does not affect the others.
func (p *Pipeline) RunAll(ctx context.Context, recs []climate.CityRecord) []Outcome {
	out := make([]Outcome, len(recs))
	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup

	for i, rec := range recs {
		wg.Add(1)
		go func(i int, rec climate.CityRecord) {
			defer wg.Done()
			out[i].City = rec.City

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				out[i].Err = ctx.Err()
				return
			}
			out[i].Result, out[i].Err = p.Run(ctx, rec)
		}(i, rec)
	}

	wg.Wait()
	return out
}
