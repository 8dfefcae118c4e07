package pilot

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/motion"
)

const instrumentationName = "github.com/tigerbot-team/tigerbot/go-motion/pkg/pilot"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	movesStarted metric.Int64Counter
	movesStopped metric.Int64Counter
	stalls       metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	m := meter()
	var (
		ms  metrics
		err error
	)

	ms.movesStarted, err = m.Int64Counter(
		"pilot.moves.started",
		metric.WithDescription("Moves started"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating moves started counter")
	}

	ms.movesStopped, err = m.Int64Counter(
		"pilot.moves.stopped",
		metric.WithDescription("Moves finalised"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating moves stopped counter")
	}

	ms.stalls, err = m.Int64Counter(
		"pilot.stalls",
		metric.WithDescription("Moves ended by an actuator stall"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating stall counter")
	}
	return &ms, nil
}

func (m *metrics) started(t motion.MoveType) {
	m.movesStarted.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", t.String())))
}

func (m *metrics) stopped(t motion.MoveType) {
	m.movesStopped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", t.String())))
}

func (m *metrics) stall() {
	m.stalls.Add(context.Background(), 1)
}
