package processor

import (
	"context"

	"github.com/k256-xyz/gateway-go/pkg/gateway"
)

// Processor определяет контракт на обработку декодированных записей шлюза.
type Processor interface {
	// Process обрабатывает одну запись и публикует результат в Kafka.
	Process(ctx context.Context, msg gateway.Message) error
}
