// pkg/gateway/message.go
package gateway

// MessageType — идентификатор типа бинарного сообщения (первый байт кадра).
type MessageType uint8

const (
	// MessageTypePoolUpdate — Server → Client: одиночное обновление пула
	MessageTypePoolUpdate MessageType = 0x01
	// MessageTypeSubscribe — Client → Server: запрос подписки (JSON)
	MessageTypeSubscribe MessageType = 0x02
	// MessageTypeSubscribed — Server → Client: подтверждение подписки (JSON)
	MessageTypeSubscribed MessageType = 0x03
	// MessageTypeUnsubscribe — Client → Server: отписка от всех каналов
	MessageTypeUnsubscribe MessageType = 0x04
	// MessageTypePriorityFees — Server → Client: обновление priority fee
	MessageTypePriorityFees MessageType = 0x05
	// MessageTypeBlockhash — Server → Client: свежий blockhash
	MessageTypeBlockhash MessageType = 0x06
	// MessageTypeQuote — Server → Client: стриминговая котировка
	MessageTypeQuote MessageType = 0x07
	// MessageTypeQuoteSubscribed — Server → Client: подтверждение quote-подписки (JSON)
	MessageTypeQuoteSubscribed MessageType = 0x08
	// MessageTypeSubscribeQuote — Client → Server: подписка на quote-стрим (JSON)
	MessageTypeSubscribeQuote MessageType = 0x09
	// MessageTypeUnsubscribeQuote — Client → Server: отписка от quote-стрима (JSON)
	MessageTypeUnsubscribeQuote MessageType = 0x0A
	// MessageTypePing — Client → Server: ping (keepalive)
	MessageTypePing MessageType = 0x0B
	// MessageTypePong — Server → Client: ответ на ping (u64 timestamp)
	MessageTypePong MessageType = 0x0C
	// MessageTypeHeartbeat — Server → Client: статистика соединения (JSON)
	MessageTypeHeartbeat MessageType = 0x0D
	// MessageTypePoolUpdateBatch — Server → Client: пачка обновлений пулов
	MessageTypePoolUpdateBatch MessageType = 0x0E
	// MessageTypeBlockStats — Server → Client: статистика блоков
	MessageTypeBlockStats MessageType = 0x0F
	// MessageTypeSubscribePrice — Client → Server: подписка на price-фид (JSON)
	MessageTypeSubscribePrice MessageType = 0x10
	// MessageTypePriceUpdate — Server → Client: одиночный price update
	MessageTypePriceUpdate MessageType = 0x11
	// MessageTypePriceBatch — Server → Client: пачка price updates
	MessageTypePriceBatch MessageType = 0x12
	// MessageTypePriceSnapshot — Server → Client: полный снимок цен
	MessageTypePriceSnapshot MessageType = 0x13
	// MessageTypeUnsubscribePrice — Client → Server: отписка от price-фида
	MessageTypeUnsubscribePrice MessageType = 0x14
	// MessageTypeError — Server → Client: текст ошибки (UTF-8)
	MessageTypeError MessageType = 0xFF
)

// messageTypeNames — закрытое множество известных тегов.
var messageTypeNames = map[MessageType]string{
	MessageTypePoolUpdate:       "pool_update",
	MessageTypeSubscribe:        "subscribe",
	MessageTypeSubscribed:       "subscribed",
	MessageTypeUnsubscribe:      "unsubscribe",
	MessageTypePriorityFees:     "priority_fees",
	MessageTypeBlockhash:        "blockhash",
	MessageTypeQuote:            "quote",
	MessageTypeQuoteSubscribed:  "quote_subscribed",
	MessageTypeSubscribeQuote:   "subscribe_quote",
	MessageTypeUnsubscribeQuote: "unsubscribe_quote",
	MessageTypePing:             "ping",
	MessageTypePong:             "pong",
	MessageTypeHeartbeat:        "heartbeat",
	MessageTypePoolUpdateBatch:  "pool_update_batch",
	MessageTypeBlockStats:       "block_stats",
	MessageTypeSubscribePrice:   "subscribe_price",
	MessageTypePriceUpdate:      "price_update",
	MessageTypePriceBatch:       "price_batch",
	MessageTypePriceSnapshot:    "price_snapshot",
	MessageTypeUnsubscribePrice: "unsubscribe_price",
	MessageTypeError:            "error",
}

// Known сообщает, входит ли тег в закрытое множество протокола.
func (t MessageType) Known() bool {
	_, ok := messageTypeNames[t]
	return ok
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// NetworkState — состояние загруженности сети.
type NetworkState uint8

const (
	// NetworkStateLow — низкая загрузка, минимальные комиссии
	NetworkStateLow NetworkState = 0
	// NetworkStateNormal — обычная загрузка
	NetworkStateNormal NetworkState = 1
	// NetworkStateHigh — высокая загрузка, рекомендуются повышенные комиссии
	NetworkStateHigh NetworkState = 2
	// NetworkStateExtreme — экстремальная загрузка, максимальные комиссии
	NetworkStateExtreme NetworkState = 3
)

// networkStateFrom нормализует значение с провода: всё вне 0..3 — Normal.
func networkStateFrom(b byte) NetworkState {
	if b > byte(NetworkStateExtreme) {
		return NetworkStateNormal
	}
	return NetworkState(b)
}

func (s NetworkState) String() string {
	switch s {
	case NetworkStateLow:
		return "low"
	case NetworkStateNormal:
		return "normal"
	case NetworkStateHigh:
		return "high"
	case NetworkStateExtreme:
		return "extreme"
	}
	return "normal"
}

// Message — любой декодированный кадр протокола.
type Message interface {
	// Kind возвращает тип сообщения, из которого кадр был декодирован.
	Kind() MessageType
}
