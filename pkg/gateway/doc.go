// Package gateway реализует клиент шлюза рыночных данных K256:
// бинарный протокол поверх WebSocket с типизированными записями
// (пулы, комиссии, blockhash, котировки, цены).
//
// Decode работает и без живого соединения: это чистая функция над
// буфером кадра, пригодная для офлайн-разбора записанных потоков.
//
// Пример:
//
//	cfg := gateway.Config{APIKey: "your-api-key", Reconnect: true}
//	client, err := gateway.New(cfg, log)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	client.OnPoolUpdate(func(update *gateway.PoolUpdate) {
//		fmt.Printf("pool %s: slot=%d\n", update.PoolAddress, update.Slot)
//	})
//
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	client.Subscribe(gateway.SubscribeRequest{
//		Channels: []string{"pools", "priority_fees", "blockhash"},
//	})
package gateway

// Version — текущая версия клиента.
const Version = "0.1.0"
