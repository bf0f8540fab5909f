// Package telemetry records OpenTelemetry spans and metrics for query
// compilation and evaluation. Without an installed SDK the global no-op
// providers are used.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter.
var (
	tracer = otel.Tracer("xqcore.engine")
	meter  = otel.Meter("xqcore.engine")
)

var (
	rewritesTotal      metric.Int64Counter
	compilePasses      metric.Int64Histogram
	planCacheHits      metric.Int64Counter
	planCacheMisses    metric.Int64Counter
	evaluationsTotal   metric.Int64Counter
	evaluationSteps    metric.Int64Histogram
	evaluationDuration metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		if rewritesTotal, err = meter.Int64Counter(
			"xqcore_rewrites_total",
			metric.WithDescription("Rewrite rules fired during optimization"),
		); err != nil {
			metricsErr = err
			return
		}

		if compilePasses, err = meter.Int64Histogram(
			"xqcore_compile_passes",
			metric.WithDescription("Optimization passes until fixpoint"),
		); err != nil {
			metricsErr = err
			return
		}

		if planCacheHits, err = meter.Int64Counter(
			"xqcore_plan_cache_hits_total",
			metric.WithDescription("Compiled plans served from cache"),
		); err != nil {
			metricsErr = err
			return
		}

		if planCacheMisses, err = meter.Int64Counter(
			"xqcore_plan_cache_misses_total",
			metric.WithDescription("Plans compiled because they were not cached"),
		); err != nil {
			metricsErr = err
			return
		}

		if evaluationsTotal, err = meter.Int64Counter(
			"xqcore_evaluations_total",
			metric.WithDescription("Query evaluations by outcome"),
		); err != nil {
			metricsErr = err
			return
		}

		if evaluationSteps, err = meter.Int64Histogram(
			"xqcore_evaluation_steps",
			metric.WithDescription("Evaluation steps per query"),
		); err != nil {
			metricsErr = err
			return
		}

		if evaluationDuration, err = meter.Float64Histogram(
			"xqcore_evaluation_duration_seconds",
			metric.WithDescription("Duration of query evaluation"),
			metric.WithUnit("s"),
		); err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// StartCompileSpan starts the span covering one plan compilation.
func StartCompileSpan(ctx context.Context, plan, fingerprint string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine.Compile",
		trace.WithAttributes(
			attribute.String("xqcore.plan", plan),
			attribute.String("xqcore.fingerprint", fingerprint),
		),
	)
}

// StartEvaluateSpan starts the span covering one query evaluation.
func StartEvaluateSpan(ctx context.Context, queryID, plan string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine.Evaluate",
		trace.WithAttributes(
			attribute.String("xqcore.query_id", queryID),
			attribute.String("xqcore.plan", plan),
		),
	)
}

// EndSpan records err, if any, and ends span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// RecordRewrite counts one fired rewrite rule.
func RecordRewrite(ctx context.Context, rule string) {
	if err := initMetrics(); err != nil {
		return
	}
	rewritesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("rule", rule)))
}

// RecordCompile records the passes a compilation took and annotates the
// current span.
func RecordCompile(ctx context.Context, passes, rewrites int) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("xqcore.passes", passes),
		attribute.Int("xqcore.rewrites", rewrites),
	)
	if err := initMetrics(); err != nil {
		return
	}
	compilePasses.Record(ctx, int64(passes))
}

// RecordPlanCache counts a plan cache lookup.
func RecordPlanCache(ctx context.Context, hit bool) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("xqcore.cache_hit", hit))
	if err := initMetrics(); err != nil {
		return
	}
	if hit {
		planCacheHits.Add(ctx, 1)
		return
	}
	planCacheMisses.Add(ctx, 1)
}

// RecordEvaluation records the outcome of one evaluation. Outcome is
// "ok" or the error code that ended it.
func RecordEvaluation(ctx context.Context, outcome string, steps int, d time.Duration) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("xqcore.outcome", outcome),
		attribute.Int("xqcore.steps", steps),
	)
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	evaluationsTotal.Add(ctx, 1, attrs)
	evaluationSteps.Record(ctx, int64(steps))
	evaluationDuration.Record(ctx, d.Seconds(), attrs)
}
