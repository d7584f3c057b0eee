// internal/app/collector.go
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/k256-xyz/gateway-go/internal/config"
	"github.com/k256-xyz/gateway-go/internal/metrics"
	"github.com/k256-xyz/gateway-go/internal/processor"
	"github.com/k256-xyz/gateway-go/internal/telemetry"
	"github.com/k256-xyz/gateway-go/pkg/gateway"
	"github.com/k256-xyz/gateway-go/pkg/httpserver"
	"github.com/k256-xyz/gateway-go/pkg/kafka"
	"github.com/k256-xyz/gateway-go/pkg/logger"
)

// Run собирает коллектор и блокируется до отмены контекста.
func Run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	metrics.Register()

	// Трассировка
	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.Config{
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Insecure:       cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	// к моменту defer исходный ctx уже отменён, флашим на свежем контексте
	defer shutdownSafe("telemetry", func() error { return shutdownTracer(context.Background()) }, log)

	// 1) Kafka producer
	kafkaProd, err := kafka.New(ctx, kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		RequiredAcks:   cfg.Kafka.Acks,
		Timeout:        cfg.Kafka.Timeout,
		Compression:    cfg.Kafka.Compression,
		FlushFrequency: cfg.Kafka.FlushFrequency,
		FlushMessages:  cfg.Kafka.FlushMessages,
		Backoff:        cfg.Kafka.Backoff,
	}, log)
	if err != nil {
		return fmt.Errorf("kafka producer init: %w", err)
	}
	defer shutdownSafe("kafka-producer", kafkaProd.Close, log)

	// 2) Маршрутизация записей по топикам
	router := processor.NewRouter(log)
	router.Register(gateway.MessageTypePoolUpdate,
		processor.NewPoolProcessor(kafkaProd, cfg.Kafka.PoolsTopic, log))
	// тег 0x05 покрывает обе раскладки комиссий
	router.Register(gateway.MessageTypePriorityFees,
		processor.NewFeeProcessor(kafkaProd, cfg.Kafka.FeesTopic, log))
	router.Register(gateway.MessageTypeBlockhash,
		processor.NewBlockhashProcessor(kafkaProd, cfg.Kafka.BlockhashTopic, log))
	priceProc := processor.NewPriceProcessor(kafkaProd, cfg.Kafka.PricesTopic, log)
	router.Register(gateway.MessageTypePriceUpdate, priceProc)
	router.Register(gateway.MessageTypePriceBatch, priceProc)
	router.Register(gateway.MessageTypePriceSnapshot, priceProc)

	// 3) Клиент шлюза; записи из обработчиков уходят в буферизованный
	// канал, чтобы не блокировать read-loop на публикации в Kafka
	client, err := gateway.New(gateway.Config{
		Endpoint:         cfg.Gateway.Endpoint,
		APIKey:           cfg.Gateway.APIKey,
		Reconnect:        true,
		HandshakeTimeout: cfg.Gateway.HandshakeTimeout,
		PingInterval:     cfg.Gateway.PingInterval,
		ReadTimeout:      cfg.Gateway.ReadTimeout,
		WriteTimeout:     cfg.Gateway.WriteTimeout,
		Backoff:          cfg.Gateway.Backoff,
	}, log)
	if err != nil {
		return fmt.Errorf("gateway client init: %w", err)
	}

	msgCh := make(chan gateway.Message, cfg.Gateway.BufferSize)
	forward := func(msg gateway.Message) {
		select {
		case msgCh <- msg:
		default:
			metrics.BufferDrops.Inc()
			log.Warn("pipeline buffer full, dropping record",
				zap.String("kind", msg.Kind().String()))
		}
	}
	client.OnPoolUpdate(func(m *gateway.PoolUpdate) { forward(m) })
	client.OnPriorityFees(func(m *gateway.PriorityFees) { forward(m) })
	client.OnFeeMarket(func(m *gateway.FeeMarket) { forward(m) })
	client.OnBlockhash(func(m *gateway.Blockhash) { forward(m) })
	client.OnPriceUpdate(func(m *gateway.PriceEntry) { forward(m) })
	client.OnPriceBatch(func(m *gateway.PriceBatch) { forward(m) })
	client.OnPriceSnapshot(func(m *gateway.PriceSnapshot) { forward(m) })
	client.OnError(func(err error) {
		var transportErr *gateway.TransportError
		if !errors.As(err, &transportErr) {
			metrics.DecodeErrors.Inc()
		}
		log.Warn("gateway error", zap.Error(err))
	})
	client.OnDisconnected(func() { metrics.Reconnects.Inc() })

	// 4) Подписки регистрируются до Connect: уйдут после рукопожатия
	if len(cfg.Gateway.Channels) > 0 {
		if err := client.Subscribe(gateway.SubscribeRequest{
			Channels:  cfg.Gateway.Channels,
			Protocols: cfg.Gateway.Protocols,
		}); err != nil {
			return fmt.Errorf("gateway subscribe: %w", err)
		}
	}
	if len(cfg.Gateway.PriceTokens) > 0 {
		if err := client.SubscribePrices(cfg.Gateway.PriceTokens, cfg.Gateway.PriceThresholdBps); err != nil {
			return fmt.Errorf("gateway price subscribe: %w", err)
		}
	}

	// 5) HTTP-сервер: /metrics + readiness по Kafka и состоянию клиента
	readiness := func() error {
		if err := kafkaProd.Ping(ctx); err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		switch s := client.State(); s {
		case gateway.StateConnected, gateway.StateSubscribed:
			return nil
		default:
			return fmt.Errorf("gateway: state %s", s)
		}
	}
	httpSrv, err := httpserver.New(httpserver.Config{
		Addr:            fmt.Sprintf(":%d", cfg.HTTP.Port),
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		IdleTimeout:     cfg.HTTP.IdleTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		MetricsPath:     cfg.HTTP.MetricsPath,
		HealthzPath:     cfg.HTTP.HealthzPath,
		ReadyzPath:      cfg.HTTP.ReadyzPath,
	}, readiness, log)
	if err != nil {
		return fmt.Errorf("httpserver init: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("gateway connect: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpSrv.Start(ctx) })
	g.Go(func() error { return router.Run(ctx, msgCh) })
	g.Go(func() error {
		<-ctx.Done()
		shutdownSafe("gateway-client", client.Close, log)
		if done := client.Done(); done != nil {
			<-done
		}
		close(msgCh)
		return ctx.Err()
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("collector stopped by context")
			return nil
		}
		return err
	}
	return nil
}

// shutdownSafe оборачивает Close()/Shutdown() с логированием.
func shutdownSafe(name string, fn func() error, log *logger.Logger) {
	log.Info(fmt.Sprintf("%s: shutting down", name))
	if err := fn(); err != nil {
		log.Error(fmt.Sprintf("%s shutdown error", name), zap.Error(err))
	} else {
		log.Info(fmt.Sprintf("%s: shutdown complete", name))
	}
}
