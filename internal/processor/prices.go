// internal/processor/prices.go
package processor

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/k256-xyz/gateway-go/internal/metrics"
	"github.com/k256-xyz/gateway-go/pkg/gateway"
	"github.com/k256-xyz/gateway-go/pkg/kafka"
	"github.com/k256-xyz/gateway-go/pkg/logger"
)

type priceProcessor struct {
	producer kafka.Producer
	topic    string
	log      *logger.Logger
}

// NewPriceProcessor публикует ценовые записи в заданный топик.
// Батчи и снимки раскладываются на отдельные сообщения с ключом-минтом,
// чтобы цены одного токена шли в один раздел.
func NewPriceProcessor(p kafka.Producer, topic string, log *logger.Logger) Processor {
	return &priceProcessor{producer: p, topic: topic, log: log.Named("prices")}
}

func (pp *priceProcessor) Process(ctx context.Context, msg gateway.Message) error {
	var entries []*gateway.PriceEntry
	switch m := msg.(type) {
	case *gateway.PriceEntry:
		entries = []*gateway.PriceEntry{m}
	case *gateway.PriceBatch:
		entries = m.Entries
	case *gateway.PriceSnapshot:
		entries = m.Entries
	default:
		return nil
	}

	ctx, span := otel.Tracer("collector/processor/prices").Start(ctx, "Process")
	defer span.End()

	start := time.Now()
	for _, entry := range entries {
		metrics.LastSlot.Set(float64(entry.Slot))

		bytes, err := json.Marshal(entry)
		if err != nil {
			pp.log.Error("marshal price entry failed", zap.Error(err))
			span.RecordError(err)
			return err
		}
		if err := pp.producer.Publish(ctx, pp.topic, []byte(entry.Mint), bytes); err != nil {
			pp.log.Error("publish price entry failed",
				zap.String("mint", entry.Mint),
				zap.Error(err),
			)
			span.RecordError(err)
			return err
		}
	}
	metrics.PublishLatency.Observe(time.Since(start).Seconds())
	return nil
}
