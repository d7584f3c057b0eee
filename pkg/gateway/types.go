// pkg/gateway/types.go
package gateway

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// OrderLevel — уровень стакана: цена и размер в базовых единицах.
type OrderLevel struct {
	Price uint64 `json:"price"`
	Size  uint64 `json:"size"`
}

// PoolUpdate — обновление состояния DEX-пула в реальном времени.
type PoolUpdate struct {
	// Глобальный sequence для упорядочивания
	Sequence uint64 `json:"sequence"`
	// Номер Solana-слота
	Slot uint64 `json:"slot"`
	// Write version внутри слота
	WriteVersion uint64 `json:"write_version"`
	// Имя DEX-протокола (например, "RaydiumClmm", "Whirlpool")
	ProtocolName string `json:"protocol_name"`
	// Base58-адрес пула
	PoolAddress string `json:"pool_address"`
	// Mint-адреса токенов пула
	TokenMints []string `json:"token_mints"`
	// Балансы токенов (в том же порядке, что и mints)
	TokenBalances []uint64 `json:"token_balances"`
	// Decimals токенов (в том же порядке, что и mints)
	TokenDecimals []int32 `json:"token_decimals"`
	// Лучший bid, если есть
	BestBid *OrderLevel `json:"best_bid,omitempty"`
	// Лучший ask, если есть
	BestAsk *OrderLevel `json:"best_ask,omitempty"`
	// Непрозрачные байты состояния пула
	SerializedState []byte `json:"serialized_state"`
}

func (*PoolUpdate) Kind() MessageType { return MessageTypePoolUpdate }

// PoolUpdateBatch — пачка обновлений пулов из одного кадра.
type PoolUpdateBatch struct {
	Updates []*PoolUpdate `json:"updates"`
}

func (*PoolUpdateBatch) Kind() MessageType { return MessageTypePoolUpdateBatch }

// PriorityFees — плоская сводка priority fee по сети (119-байтный кадр).
// Все поля комиссий — в микролампортах за CU.
type PriorityFees struct {
	// Текущий Solana-слот
	Slot uint64 `json:"slot"`
	// Unix-время в миллисекундах
	TimestampMs uint64 `json:"timestamp_ms"`
	// Рекомендованная комиссия
	Recommended uint64 `json:"recommended"`
	// Состояние загруженности сети
	State NetworkState `json:"state"`
	// Данные могут быть устаревшими
	IsStale bool `json:"is_stale"`
	// Перцентили комиссий swap-транзакций
	SwapP50 uint64 `json:"swap_p50"`
	SwapP75 uint64 `json:"swap_p75"`
	SwapP90 uint64 `json:"swap_p90"`
	SwapP99 uint64 `json:"swap_p99"`
	// Число swap-транзакций в выборке
	SwapSamples uint32 `json:"swap_samples"`
	// Комиссии по вероятности попадания в блок
	LandingP50Fee uint64 `json:"landing_p50_fee"`
	LandingP75Fee uint64 `json:"landing_p75_fee"`
	LandingP90Fee uint64 `json:"landing_p90_fee"`
	LandingP99Fee uint64 `json:"landing_p99_fee"`
	// Средние комиссии верхних 10% и 25% транзакций
	Top10Fee uint64 `json:"top_10_fee"`
	Top25Fee uint64 `json:"top_25_fee"`
	// Обнаружен скачок комиссий
	SpikeDetected bool `json:"spike_detected"`
	// Комиссия на время скачка
	SpikeFee uint64 `json:"spike_fee"`
}

func (*PriorityFees) Kind() MessageType { return MessageTypePriorityFees }

// AccountFee — данные fee-рынка по одному writable-аккаунту.
// Планировщик Solana ограничивает каждый writable-аккаунт 12M CU на блок,
// поэтому комиссия считается per-account: max(p75) по задетым аккаунтам.
type AccountFee struct {
	// Base58-ключ аккаунта
	Pubkey string `json:"pubkey"`
	// Всего транзакций, задевших аккаунт в окне наблюдения
	TotalTxs uint32 `json:"total_txs"`
	// Число слотов, где аккаунт был активен
	ActiveSlots uint32 `json:"active_slots"`
	// Суммарно потреблённые CU
	CuConsumed uint64 `json:"cu_consumed"`
	// Утилизация лимита 12M CU, 0-100
	UtilizationPct float32 `json:"utilization_pct"`
	// Перцентили комиссий в микролампортах/CU
	P25 uint64 `json:"p25"`
	P50 uint64 `json:"p50"`
	P75 uint64 `json:"p75"`
	P90 uint64 `json:"p90"`
	// Минимальная ненулевая комиссия
	MinNonzeroPrice uint64 `json:"min_nonzero_price"`
}

// FeeMarket — обновление fee-рынка (per-writable-account модель).
type FeeMarket struct {
	// Текущий Solana-слот
	Slot uint64 `json:"slot"`
	// Unix-время в миллисекундах
	TimestampMs uint64 `json:"timestamp_ms"`
	// Рекомендованная комиссия в микролампортах/CU
	Recommended uint64 `json:"recommended"`
	// Состояние загруженности сети
	State NetworkState `json:"state"`
	// Данные могут быть устаревшими
	IsStale bool `json:"is_stale"`
	// Утилизация блока, 0-100
	BlockUtilizationPct float32 `json:"block_utilization_pct"`
	// Число блоков в окне наблюдения
	BlocksInWindow uint32 `json:"blocks_in_window"`
	// Per-account данные
	Accounts []AccountFee `json:"accounts"`
}

func (*FeeMarket) Kind() MessageType { return MessageTypePriorityFees }

// Blockhash — свежий blockhash.
type Blockhash struct {
	// Слот блокхэша
	Slot uint64 `json:"slot"`
	// Unix-время в миллисекундах
	TimestampMs uint64 `json:"timestamp_ms"`
	// Base58-представление блокхэша
	Blockhash string `json:"blockhash"`
	// Высота блока
	BlockHeight uint64 `json:"block_height"`
	// Последняя валидная высота для транзакций
	LastValidBlockHeight uint64 `json:"last_valid_block_height"`
	// Данные могут быть устаревшими
	IsStale bool `json:"is_stale"`
}

func (*Blockhash) Kind() MessageType { return MessageTypeBlockhash }

// PriceEntry — цена одного токена (56-байтная запись).
type PriceEntry struct {
	// Mint-адрес токена (base58)
	Mint string `json:"mint"`
	// Сырая цена: u64 с фиксированной точкой 10^12
	UsdPriceRaw uint64 `json:"usd_price_raw"`
	// Слот, на котором цена наблюдалась
	Slot uint64 `json:"slot"`
	// Unix-время в миллисекундах
	TimestampMs uint64 `json:"timestamp_ms"`
}

func (*PriceEntry) Kind() MessageType { return MessageTypePriceUpdate }

// UsdPrice возвращает цену как float64 (удобно, но с потерей точности).
func (p *PriceEntry) UsdPrice() float64 {
	return float64(p.UsdPriceRaw) / 1e12
}

// UsdPriceDecimal возвращает точную десятичную цену без потери точности.
func (p *PriceEntry) UsdPriceDecimal() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(p.UsdPriceRaw), -12)
}

// PriceBatch — пачка инкрементальных price updates.
type PriceBatch struct {
	Entries []*PriceEntry `json:"entries"`
}

func (*PriceBatch) Kind() MessageType { return MessageTypePriceBatch }

// PriceSnapshot — полный снимок цен после подписки.
type PriceSnapshot struct {
	Entries []*PriceEntry `json:"entries"`
}

func (*PriceSnapshot) Kind() MessageType { return MessageTypePriceSnapshot }

// Quote — своп-котировка из бинарного quote-стрима.
type Quote struct {
	// Идентификатор quote-топика
	TopicID string `json:"topic_id"`
	// Unix-время в миллисекундах
	TimestampMs uint64 `json:"timestamp_ms"`
	// Sequence внутри топика
	Sequence uint64 `json:"sequence"`
	// Mint входного токена
	InputMint string `json:"input_mint"`
	// Mint выходного токена
	OutputMint string `json:"output_mint"`
	// Объём входа в базовых единицах
	InAmount uint64 `json:"in_amount"`
	// Объём выхода в базовых единицах
	OutAmount uint64 `json:"out_amount"`
	// Влияние на цену в базисных пунктах
	PriceImpactBps int32 `json:"price_impact_bps"`
	// Слот котировки
	Slot uint64 `json:"slot"`
	// Имя алгоритма маршрутизации
	Algorithm string `json:"algorithm"`
	// Котировка лучше предыдущей
	IsImprovement bool `json:"is_improvement"`
	// Котировка из кэша
	IsCached bool `json:"is_cached"`
	// Котировка может быть устаревшей
	IsStale bool `json:"is_stale"`
	// Шаги маршрута
	RoutePlan []map[string]interface{} `json:"route_plan"`
}

func (*Quote) Kind() MessageType { return MessageTypeQuote }

// PriceImpactPct возвращает влияние на цену в процентах.
func (q *Quote) PriceImpactPct() float64 {
	return float64(q.PriceImpactBps) / 100.0
}

// Heartbeat — периодическая статистика соединения (JSON-кадр).
type Heartbeat struct {
	// Unix-время в миллисекундах
	TimestampMs uint64 `json:"timestamp_ms"`
	// Аптайм соединения в секундах
	UptimeSeconds uint64 `json:"uptime_seconds"`
	// Всего сообщений получено
	MessagesReceived uint64 `json:"messages_received"`
	// Всего сообщений отправлено
	MessagesSent uint64 `json:"messages_sent"`
	// Число активных подписок
	Subscriptions uint32 `json:"subscriptions"`
}

func (*Heartbeat) Kind() MessageType { return MessageTypeHeartbeat }

// Pong — ответ сервера на ping.
type Pong struct {
	// Серверное время в миллисекундах
	TimestampMs uint64 `json:"timestamp_ms"`
}

func (*Pong) Kind() MessageType { return MessageTypePong }

// Subscribed — подтверждение подписки на каналы.
type Subscribed struct {
	Channels []string `json:"channels"`
}

func (*Subscribed) Kind() MessageType { return MessageTypeSubscribed }

// QuoteSubscribed — подтверждение подписки на quote-стрим.
type QuoteSubscribed struct {
	TopicID string `json:"topic_id"`
}

func (*QuoteSubscribed) Kind() MessageType { return MessageTypeQuoteSubscribed }

// BlockStats — статистика блоков. Формат payload не опубликован,
// поэтому он доставляется как есть.
type BlockStats struct {
	Raw []byte `json:"raw"`
}

func (*BlockStats) Kind() MessageType { return MessageTypeBlockStats }

// ServerError — текстовая ошибка сервера (кадр 0xFF).
type ServerError struct {
	Text string `json:"text"`
}

func (*ServerError) Kind() MessageType { return MessageTypeError }

func (e *ServerError) Error() string { return "gateway: server error: " + e.Text }
