// internal/processor/fees.go
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

// feeEnvelope различает две раскладки тега priority fees в одном топике.
type feeEnvelope struct {
	Layout string          `json:"layout"` // "priority_fees" | "fee_market"
	Data   gateway.Message `json:"data"`
}

type feeProcessor struct {
	producer kafka.Producer
	topic    string
	log      *logger.Logger
}

// NewFeeProcessor публикует сводки комиссий в заданный топик.
// Ключ сообщения — слот.
func NewFeeProcessor(p kafka.Producer, topic string, log *logger.Logger) Processor {
	return &feeProcessor{producer: p, topic: topic, log: log.Named("fees")}
}

func (fp *feeProcessor) Process(ctx context.Context, msg gateway.Message) error {
	var env feeEnvelope
	var slot uint64

	switch m := msg.(type) {
	case *gateway.PriorityFees:
		env = feeEnvelope{Layout: "priority_fees", Data: m}
		slot = m.Slot
	case *gateway.FeeMarket:
		env = feeEnvelope{Layout: "fee_market", Data: m}
		slot = m.Slot
	default:
		return nil
	}

	ctx, span := otel.Tracer("collector/processor/fees").Start(ctx, "Process")
	defer span.End()
	metrics.LastSlot.Set(float64(slot))

	bytes, err := json.Marshal(env)
	if err != nil {
		fp.log.Error("marshal fee record failed", zap.Error(err))
		span.RecordError(err)
		return err
	}

	start := time.Now()
	key := []byte(strconv.FormatUint(slot, 10))
	if err := fp.producer.Publish(ctx, fp.topic, key, bytes); err != nil {
		fp.log.Error("publish fee record failed", zap.Uint64("slot", slot), zap.Error(err))
		span.RecordError(err)
		return err
	}
	metrics.PublishLatency.Observe(time.Since(start).Seconds())
	return nil
}
