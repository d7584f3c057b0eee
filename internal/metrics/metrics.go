package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// RecordsTotal — число декодированных записей по видам сообщений.
	RecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collector",
		Subsystem: "gateway",
		Name:      "records_total",
		Help:      "Total number of decoded gateway records by message kind",
	}, []string{"kind"})

	// DecodeErrors — число кадров, отвергнутых декодером.
	DecodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collector",
		Subsystem: "gateway",
		Name:      "decode_errors_total",
		Help:      "Total number of frames rejected by the decoder",
	})

	// Reconnects — число переподключений к шлюзу.
	Reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collector",
		Subsystem: "gateway",
		Name:      "reconnects_total",
		Help:      "Total number of gateway reconnects",
	})

	// BufferDrops — число записей, отброшенных из-за переполнения буфера.
	BufferDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collector",
		Subsystem: "gateway",
		Name:      "buffer_drops_total",
		Help:      "Number of records dropped because the pipeline buffer was full",
	})

	// PublishErrors — число ошибок публикации записей в Kafka.
	PublishErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collector",
		Subsystem: "kafka",
		Name:      "publish_errors_total",
		Help:      "Total number of errors when publishing to Kafka",
	})

	// PublishLatency — задержка от получения кадра до публикации в Kafka.
	PublishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "collector",
		Subsystem: "pipeline",
		Name:      "publish_latency_seconds",
		Help:      "Latency from receiving a gateway frame to publishing to Kafka (seconds)",
		Buckets:   prometheus.DefBuckets,
	})

	// LastSlot — последний слот, увиденный в потоке.
	LastSlot = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "collector",
		Subsystem: "gateway",
		Name:      "last_slot",
		Help:      "Highest Solana slot observed in the stream",
	})
)

// Register регистрирует все метрики в заданном реестре.
// Можно вызвать без аргументов, чтобы зарегистрировать в DefaultRegisterer.
func Register(registerers ...prometheus.Registerer) {
	once.Do(func() {
		var reg prometheus.Registerer
		if len(registerers) > 0 && registerers[0] != nil {
			reg = registerers[0]
		} else {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(
			RecordsTotal,
			DecodeErrors,
			Reconnects,
			BufferDrops,
			PublishErrors,
			PublishLatency,
			LastSlot,
		)
	})
}
