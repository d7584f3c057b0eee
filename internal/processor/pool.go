// internal/processor/pool.go
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

type poolProcessor struct {
	producer kafka.Producer
	topic    string
	log      *logger.Logger
}

// NewPoolProcessor публикует обновления пулов в заданный топик.
// Ключ сообщения — адрес пула, чтобы обновления одного пула
// попадали в один раздел и сохраняли порядок.
func NewPoolProcessor(p kafka.Producer, topic string, log *logger.Logger) Processor {
	return &poolProcessor{producer: p, topic: topic, log: log.Named("pools")}
}

func (pp *poolProcessor) Process(ctx context.Context, msg gateway.Message) error {
	update, ok := msg.(*gateway.PoolUpdate)
	if !ok {
		return nil
	}

	ctx, span := otel.Tracer("collector/processor/pools").Start(ctx, "Process")
	defer span.End()
	metrics.LastSlot.Set(float64(update.Slot))

	bytes, err := json.Marshal(update)
	if err != nil {
		pp.log.Error("marshal pool update failed", zap.Error(err))
		span.RecordError(err)
		return err
	}

	start := time.Now()
	if err := pp.producer.Publish(ctx, pp.topic, []byte(update.PoolAddress), bytes); err != nil {
		pp.log.Error("publish pool update failed",
			zap.String("pool", update.PoolAddress),
			zap.Error(err),
		)
		span.RecordError(err)
		return err
	}
	metrics.PublishLatency.Observe(time.Since(start).Seconds())
	return nil
}
