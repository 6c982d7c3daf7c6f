package orders

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type handlerMetrics struct {
	ordersCreated  metric.Int64Counter
	itemsAdded     metric.Int64Counter
	addressesAdded metric.Int64Counter
	rejected       metric.Int64Counter
}

func newHandlerMetrics() (*handlerMetrics, error) {
	meter := otel.Meter("orders")

	ordersCreated, err := meter.Int64Counter("orders.created",
		metric.WithDescription("Orders persisted through the API"))
	if err != nil {
		return nil, err
	}

	itemsAdded, err := meter.Int64Counter("orders.items.added",
		metric.WithDescription("Order items persisted through the API"))
	if err != nil {
		return nil, err
	}

	addressesAdded, err := meter.Int64Counter("orders.addresses.added",
		metric.WithDescription("Shipping addresses persisted through the API"))
	if err != nil {
		return nil, err
	}

	rejected, err := meter.Int64Counter("orders.rejected",
		metric.WithDescription("Requests rejected by order invariants or storage"))
	if err != nil {
		return nil, err
	}

	return &handlerMetrics{
		ordersCreated:  ordersCreated,
		itemsAdded:     itemsAdded,
		addressesAdded: addressesAdded,
		rejected:       rejected,
	}, nil
}

func (m *handlerMetrics) reject(ctx context.Context, reason string) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
