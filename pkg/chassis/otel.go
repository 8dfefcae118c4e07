package chassis

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tigerbot-team/tigerbot/go-motion/pkg/chassis"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	dispatches   metric.Int64Counter
	samples      metric.Int64Counter
	interval     metric.Int64ObservableGauge
	registration metric.Registration
}

func newMetrics(o *Odometer) (*metrics, error) {
	m := meter()
	var (
		ms  metrics
		err error
	)

	ms.dispatches, err = m.Int64Counter(
		"chassis.dispatches",
		metric.WithDescription("Command batches sent to the wheel actuators"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating dispatch counter")
	}

	ms.samples, err = m.Int64Counter(
		"odometer.samples",
		metric.WithDescription("Encoder samples integrated by the odometer"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating sample counter")
	}

	ms.interval, err = m.Int64ObservableGauge(
		"odometer.interval",
		metric.WithDescription("Current odometer sampling interval"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating interval gauge")
	}

	ms.registration, err = m.RegisterCallback(
		func(ctx context.Context, obs metric.Observer) error {
			obs.ObserveInt64(ms.interval, o.Interval().Milliseconds())
			return nil
		},
		ms.interval,
	)
	if err != nil {
		return nil, errors.Wrap(err, "registering interval callback")
	}
	return &ms, nil
}

func (m *metrics) dispatched(kind string) {
	m.dispatches.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *metrics) close() {
	if m.registration != nil {
		_ = m.registration.Unregister()
	}
}
