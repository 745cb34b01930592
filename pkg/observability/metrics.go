// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observability wires Prometheus metrics and an OpenTelemetry
// tracer for the engine's ambient observability — a metrics product is
// out of scope, but structured telemetry of the engine itself is not.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Metrics holds the counters and histograms for a run's lifecycle: tool
// dispatch, review calls, and LLM calls. NewMetrics registers them; no
// engine package updates them.
type Metrics struct {
	ToolCallsTotal       *prometheus.CounterVec
	ToolCallDuration     *prometheus.HistogramVec
	ReviewCallsTotal     *prometheus.CounterVec
	LLMCallsTotal        *prometheus.CounterVec
	LLMCallDuration      *prometheus.HistogramVec
	ActiveRuns           prometheus.Gauge
	FragmentsAccumulated *prometheus.CounterVec
}

// NewMetrics registers engine metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrun_tool_calls_total",
			Help: "Total tool invocations, by tool name and outcome.",
		}, []string{"tool", "status"}),
		ToolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentrun_tool_call_duration_seconds",
			Help:    "Tool call duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		ReviewCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrun_review_calls_total",
			Help: "Total Reviewer invocations, by focus.",
		}, []string{"focus"}),
		LLMCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrun_llm_calls_total",
			Help: "Total LLM calls, by provider and purpose.",
		}, []string{"provider", "purpose"}),
		LLMCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentrun_llm_call_duration_seconds",
			Help:    "LLM call duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "purpose"}),
		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentrun_active_runs",
			Help: "Number of agent runs currently executing.",
		}),
		FragmentsAccumulated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrun_fragments_accumulated_total",
			Help: "Total fragments accepted into the fragment store, by tool name.",
		}, []string{"tool"}),
	}

	reg.MustRegister(
		m.ToolCallsTotal, m.ToolCallDuration, m.ReviewCallsTotal,
		m.LLMCallsTotal, m.LLMCallDuration, m.ActiveRuns, m.FragmentsAccumulated,
	)
	return m
}

// Tracer returns the package-wide OpenTelemetry tracer for engine spans.
func Tracer() trace.Tracer {
	return otel.Tracer("github.com/agentrun/turnengine/pkg/engine")
}
