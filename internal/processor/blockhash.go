// internal/processor/blockhash.go
package processor

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/k256-xyz/gateway-go/internal/metrics"
	"github.com/k256-xyz/gateway-go/pkg/gateway"
	"github.com/k256-xyz/gateway-go/pkg/kafka"
	"github.com/k256-xyz/gateway-go/pkg/logger"
)

type blockhashProcessor struct {
	producer kafka.Producer
	topic    string
	log      *logger.Logger
}

// NewBlockhashProcessor публикует blockhash-обновления в заданный топик.
func NewBlockhashProcessor(p kafka.Producer, topic string, log *logger.Logger) Processor {
	return &blockhashProcessor{producer: p, topic: topic, log: log.Named("blockhash")}
}

func (bp *blockhashProcessor) Process(ctx context.Context, msg gateway.Message) error {
	bh, ok := msg.(*gateway.Blockhash)
	if !ok {
		return nil
	}

	ctx, span := otel.Tracer("collector/processor/blockhash").Start(ctx, "Process")
	defer span.End()
	metrics.LastSlot.Set(float64(bh.Slot))

	bytes, err := json.Marshal(bh)
	if err != nil {
		bp.log.Error("marshal blockhash failed", zap.Error(err))
		span.RecordError(err)
		return err
	}

	start := time.Now()
	key := []byte(strconv.FormatUint(bh.Slot, 10))
	if err := bp.producer.Publish(ctx, bp.topic, key, bytes); err != nil {
		bp.log.Error("publish blockhash failed", zap.Uint64("slot", bh.Slot), zap.Error(err))
		span.RecordError(err)
		return err
	}
	metrics.PublishLatency.Observe(time.Since(start).Seconds())
	return nil
}
