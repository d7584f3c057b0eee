// internal/processor/dispatcher.go
package processor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/k256-xyz/gateway-go/internal/metrics"
	"github.com/k256-xyz/gateway-go/pkg/gateway"
	"github.com/k256-xyz/gateway-go/pkg/logger"
)

var dispatcherTracer = otel.Tracer("collector/processor/dispatcher")

// DispatchRouter маршрутизирует декодированные записи по виду сообщения.
type DispatchRouter struct {
	processors map[gateway.MessageType]Processor
	log        *logger.Logger
}

// NewRouter создаёт маршрутизатор с логгером.
func NewRouter(log *logger.Logger) *DispatchRouter {
	return &DispatchRouter{
		processors: make(map[gateway.MessageType]Processor),
		log:        log.Named("router"),
	}
}

// Register добавляет обработчик для заданного вида сообщений.
func (r *DispatchRouter) Register(kind gateway.MessageType, proc Processor) {
	r.processors[kind] = proc
}

// Run запускает основной цикл маршрутизации. Завершается, когда
// входной канал закрыт.
func (r *DispatchRouter) Run(ctx context.Context, in <-chan gateway.Message) error {
	ctx, span := dispatcherTracer.Start(ctx, "DispatchRouter.Run")
	defer span.End()

	for msg := range in {
		kind := msg.Kind()
		metrics.RecordsTotal.WithLabelValues(kind.String()).Inc()

		proc, ok := r.processors[kind]
		if !ok {
			r.log.Debug("unsupported message kind", zap.String("kind", kind.String()))
			continue
		}

		if err := proc.Process(ctx, msg); err != nil {
			r.log.Error("record processing failed",
				zap.String("kind", kind.String()),
				zap.Error(err),
			)
			metrics.PublishErrors.Inc()
		}
	}

	return nil
}
