// Package tracing bridges the Event Bus (internal/bus) into OpenTelemetry:
// every parallel task becomes a span, and every other bus event observed
// while that span is open is recorded against it as a span event. This is
// purely an observability add-on — nothing in the engine depends on a
// Bridge existing, and a nil/unconfigured Bridge is always safe to use.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ntars/tars/internal/bus"
)

// Config selects the OTLP exporter. Protocol is "grpc" or "http"; Endpoint
// is a host:port (grpc) or base URL (http) for the collector.
type Config struct {
	Endpoint string
	Protocol string // "grpc" (default) or "http"
	Insecure bool
}

// Bridge owns the TracerProvider and the in-flight task_id -> span table.
type Bridge struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
}

// New builds a Bridge exporting spans over OTLP. Call Shutdown on engine exit
// to flush pending spans.
func New(ctx context.Context, cfg Config) (*Bridge, error) {
	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: build exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceNameKey.String("tarsd"),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return &Bridge{
		provider: provider,
		tracer:   provider.Tracer("github.com/ntars/tars/internal/dispatcher"),
		spans:    make(map[string]trace.Span),
	}, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	if cfg.Protocol == "http" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

// Shutdown flushes and closes the exporter. Safe to call on a nil Bridge.
func (br *Bridge) Shutdown(ctx context.Context) {
	if br == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := br.provider.Shutdown(shutdownCtx); err != nil {
		slog.Warn("tracing: shutdown failed", "error", err)
	}
}

// ensure otlptrace.Client satisfies otlptracegrpc/http construction above;
// referenced so the dependency shows up as directly used, not just
// transitively pulled in by the exporter packages.
var _ otlptrace.Client

// Subscribe wires the Bridge into b: a parallel_task_started event opens a
// span keyed by task_id, every other tracked event on a known task_id is
// recorded as a span event, and parallel_task_completed ends the span. Safe
// to call with a nil Bridge (the bus will simply have no tracing subscriber).
func (br *Bridge) Subscribe(b *bus.Bus) {
	if br == nil || b == nil {
		return
	}
	b.Subscribe(bus.TopicParallelTaskStarted, "tracing-bridge", br.onTaskStarted)
	b.Subscribe(bus.TopicParallelTaskCompleted, "tracing-bridge", br.onTaskCompleted)
	b.Subscribe(bus.TopicToolCalled, "tracing-bridge", br.onToolCalled)
	b.Subscribe(bus.TopicToolResult, "tracing-bridge", br.onEvent("tool_result"))
	b.Subscribe(bus.TopicAgentStarted, "tracing-bridge", br.onEvent("agent_started"))
	b.Subscribe(bus.TopicAgentCompleted, "tracing-bridge", br.onEvent("agent_completed"))
	b.Subscribe(bus.TopicKillSwitch, "tracing-bridge", br.onEvent("kill_switch"))
}

func (br *Bridge) onTaskStarted(e bus.Event) {
	taskID, _ := e.Payload["task_id"].(string)
	if taskID == "" {
		return
	}
	_, span := br.tracer.Start(context.Background(), "parallel_task")
	span.SetAttributes(attribute.String("task_id", taskID))
	if traceID, ok := e.Payload["trace_id"].(string); ok {
		span.SetAttributes(attribute.String("trace_id", traceID))
	}
	if src, ok := e.Payload["source"].(string); ok {
		span.SetAttributes(attribute.String("source", src))
	}
	if batchType, ok := e.Payload["batch_type"].(string); ok {
		span.SetAttributes(attribute.String("batch_type", batchType))
	}

	br.mu.Lock()
	br.spans[taskID] = span
	br.mu.Unlock()
}

func (br *Bridge) onTaskCompleted(e bus.Event) {
	taskID, _ := e.Payload["task_id"].(string)
	span := br.takeSpan(taskID)
	if span == nil {
		return
	}
	if success, ok := e.Payload["success"].(bool); ok {
		span.SetAttributes(attribute.Bool("success", success))
	}
	if stuck, ok := e.Payload["stuck"].(bool); ok {
		span.SetAttributes(attribute.Bool("stuck", stuck))
	}
	if reason, ok := e.Payload["reason"].(string); ok && reason != "" {
		span.SetAttributes(attribute.String("reason", reason))
	}
	span.End()
}

func (br *Bridge) onToolCalled(e bus.Event) {
	taskID, _ := e.Payload["task_id"].(string)
	span := br.activeSpan(taskID)
	if span == nil {
		return
	}
	attrs := []attribute.KeyValue{}
	if tool, ok := e.Payload["tool"].(string); ok {
		attrs = append(attrs, attribute.String("tool", tool))
	}
	if agentName, ok := e.Payload["agent"].(string); ok {
		attrs = append(attrs, attribute.String("agent", agentName))
	}
	if step, ok := e.Payload["step"]; ok {
		attrs = append(attrs, attribute.String("step", fmt.Sprint(step)))
	}
	span.AddEvent("tool_called", trace.WithAttributes(attrs...))
}

// onEvent returns a generic subscriber that records name as a span event on
// the task_id's currently open span, if any, with no extra attributes.
func (br *Bridge) onEvent(name string) bus.Subscriber {
	return func(e bus.Event) {
		taskID, _ := e.Payload["task_id"].(string)
		span := br.activeSpan(taskID)
		if span == nil {
			return
		}
		span.AddEvent(name)
	}
}

func (br *Bridge) activeSpan(taskID string) trace.Span {
	if taskID == "" {
		return nil
	}
	br.mu.Lock()
	defer br.mu.Unlock()
	return br.spans[taskID]
}

func (br *Bridge) takeSpan(taskID string) trace.Span {
	if taskID == "" {
		return nil
	}
	br.mu.Lock()
	defer br.mu.Unlock()
	span := br.spans[taskID]
	delete(br.spans, taskID)
	return span
}
