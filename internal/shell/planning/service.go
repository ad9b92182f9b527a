// Package planning provides the planning service around the pure deployment planner.
// This is part of the Imperative Shell - it assigns plan identity, traces,
// logs and publishes, and calls the pure planner for the actual work.
package planning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/artpar/releaseplan/internal/core/deployment"
	"github.com/artpar/releaseplan/internal/core/domain"
	"github.com/artpar/releaseplan/internal/shell/publish"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// Service Errors
// =============================================================================

// ErrPublishFailed is returned when a plan was built but could not be published.
// The plan is still returned alongside the error.
var ErrPublishFailed = errors.New("plan built but not published")

const tracerName = "github.com/artpar/releaseplan/internal/shell/planning"

// =============================================================================
// Planning Service
// =============================================================================

// Result is a built plan together with its identity.
type Result struct {
	PlanID      string          `json:"planId"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Plan        deployment.Plan `json:"plan"`
}

// Service builds deployment plans and hands them to a publisher.
// It is safe for concurrent use when its publisher is.
type Service struct {
	opts      deployment.Options
	publisher publish.Publisher
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// Option configures a Service.
type Option func(*Service)

// WithOptions sets the planner options (sort key, display limit).
func WithOptions(opts deployment.Options) Option {
	return func(s *Service) {
		s.opts = opts
	}
}

// WithPublisher sets the plan publisher. Defaults to publish.Nop.
func WithPublisher(p publish.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithTracer sets the tracer. Defaults to the global tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock sets the time source used for GeneratedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator sets the plan ID generator. Defaults to random UUIDs.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewService creates a new planning service.
func NewService(logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		opts:      deployment.DefaultOptions(),
		publisher: publish.Nop{},
		tracer:    otel.Tracer(tracerName),
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Plan builds a deployment plan for the analysis and publishes it.
//
// Planning itself never fails. If publishing fails the built result is
// returned together with an error wrapping ErrPublishFailed.
func (s *Service) Plan(ctx context.Context, analysis domain.Analysis) (Result, error) {
	result := Result{
		PlanID:      s.newID(),
		GeneratedAt: s.now().UTC(),
	}

	ctx, span := s.tracer.Start(ctx, "planning.Plan",
		trace.WithAttributes(
			attribute.String("plan.id", result.PlanID),
			attribute.Int("analysis.stories", len(analysis.Stories)),
			attribute.Int("analysis.enforcement_results", len(analysis.EnforcementResults)),
		),
	)
	defer span.End()

	result.Plan = deployment.BuildPlan(analysis, s.opts)
	summary := result.Plan.Summary

	span.SetAttributes(
		attribute.Int("plan.total", summary.Total),
		attribute.Int("plan.deployable", summary.Deployable),
		attribute.Int("plan.conflicted", summary.Conflicted),
		attribute.Int("plan.behind_prod", summary.BehindProd),
	)

	s.logger.Info("deployment plan built",
		"plan_id", result.PlanID,
		"total", summary.Total,
		"deployable", summary.Deployable,
		"conflicted", summary.Conflicted,
		"behind_prod", summary.BehindProd,
	)

	event := publish.PlanEvent{
		PlanID:      result.PlanID,
		GeneratedAt: result.GeneratedAt,
		Plan:        result.Plan,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		s.logger.Error("failed to publish plan", "plan_id", result.PlanID, "error", err)
		return result, fmt.Errorf("%w: plan %s: %w", ErrPublishFailed, result.PlanID, err)
	}

	return result, nil
}
