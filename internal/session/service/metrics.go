package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "authcore/session"

type metrics struct {
	issued  metric.Int64Counter
	rotated metric.Int64Counter
	revoked metric.Int64Counter
	reuse   metric.Int64Counter
	cleaned metric.Int64Counter
}

func newMetrics(meter metric.Meter) *metrics {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(meterName)
	}
	fallback := noop.NewMeterProvider().Meter(meterName)
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{session}"))
		if err != nil {
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}
	return &metrics{
		issued:  counter("authcore.sessions.issued", "Sessions created by sign-in"),
		rotated: counter("authcore.sessions.rotated", "Successful refresh-token rotations"),
		revoked: counter("authcore.sessions.revoked", "Sessions deleted by revoke, revoke-all or eviction"),
		reuse:   counter("authcore.sessions.reuse_detected", "Refresh tokens rejected as reused"),
		cleaned: counter("authcore.sessions.cleanup.deleted", "Sessions deleted by cleanup sweeps"),
	}
}

func (m *metrics) revokedBy(ctx context.Context, n int64, cause string) {
	if n > 0 {
		m.revoked.Add(ctx, n, metric.WithAttributes(attribute.String("cause", cause)))
	}
}

func (m *metrics) cleanedBy(ctx context.Context, n int64, sweep string) {
	if n > 0 {
		m.cleaned.Add(ctx, n, metric.WithAttributes(attribute.String("sweep", sweep)))
	}
}
