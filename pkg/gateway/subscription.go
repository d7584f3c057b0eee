// pkg/gateway/subscription.go
package gateway

import (
	"encoding/json"
	"sync"
)

// SubscribeRequest — запрос подписки на каналы шлюза (текстовый JSON-кадр).
type SubscribeRequest struct {
	Type string `json:"type"`
	// Каналы: "pools", "priority_fees", "blockhash", ...
	Channels []string `json:"channels"`
	// Формат полезной нагрузки; пусто — бинарный по умолчанию
	Format string `json:"format,omitempty"`
	// Фильтр по именам протоколов
	Protocols []string `json:"protocols,omitempty"`
	// Фильтр по адресам пулов (base58)
	Pools []string `json:"pools,omitempty"`
	// Фильтр по парам mint-адресов
	TokenPairs [][]string `json:"token_pairs,omitempty"`
}

// subscribePriceRequest — JSON-тело бинарного кадра 0x10.
type subscribePriceRequest struct {
	Type         string   `json:"type"`
	Tokens       []string `json:"tokens"`
	ThresholdBps int      `json:"threshold_bps"`
}

// слоты регистра: какой вид подписки представляет отложенный кадр.
const (
	slotChannels = iota
	slotPrices
)

// pendingFrame — кадр, отложенный до перехода в Connected.
type pendingFrame struct {
	slot   int
	binary bool
	data   []byte
}

// registry хранит действующие подписки и очередь кадров, выданных
// до завершения рукопожатия. Мутирует из read-пути (reconnect) и из
// вызовов клиента, поэтому всё под одним мьютексом.
type registry struct {
	mu sync.Mutex

	channels *SubscribeRequest
	prices   *subscribePriceRequest

	pending []pendingFrame
}

// setChannels запоминает подписку и, если соединения нет, откладывает кадр.
// Возвращает true, если кадр нужно отправить немедленно.
func (r *registry) setChannels(req *SubscribeRequest, connected bool) ([]byte, bool, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.channels = req
	if connected {
		return data, true, nil
	}
	r.enqueueLocked(pendingFrame{slot: slotChannels, data: data})
	return nil, false, nil
}

func (r *registry) setPrices(req *subscribePriceRequest, connected bool) ([]byte, bool, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, false, err
	}
	frame := append([]byte{byte(MessageTypeSubscribePrice)}, body...)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.prices = req
	if connected {
		return frame, true, nil
	}
	r.enqueueLocked(pendingFrame{slot: slotPrices, binary: true, data: frame})
	return nil, false, nil
}

// enqueueLocked заменяет более ранний отложенный кадр того же слота:
// в очереди живёт только последняя версия подписки.
func (r *registry) enqueueLocked(f pendingFrame) {
	for i := range r.pending {
		if r.pending[i].slot == f.slot {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			break
		}
	}
	r.pending = append(r.pending, f)
}

// clearChannels снимает подписку на каналы вместе с отложенным кадром.
func (r *registry) clearChannels() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = nil
	r.dropPendingLocked(slotChannels)
}

func (r *registry) clearPrices() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prices = nil
	r.dropPendingLocked(slotPrices)
}

func (r *registry) dropPendingLocked(slot int) {
	for i := range r.pending {
		if r.pending[i].slot == slot {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return
		}
	}
}

// flush возвращает кадры для отправки при входе в Connected: сначала
// отложенные в порядке вызовов (ровно один раз), затем повтор действующих
// подписок, не покрытых очередью. Очередь опустошается.
func (r *registry) flush() []pendingFrame {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := r.pending
	r.pending = nil

	covered := make(map[int]bool, len(frames))
	for _, f := range frames {
		covered[f.slot] = true
	}

	if !covered[slotChannels] && r.channels != nil {
		if data, err := json.Marshal(r.channels); err == nil {
			frames = append(frames, pendingFrame{slot: slotChannels, data: data})
		}
	}
	if !covered[slotPrices] && r.prices != nil {
		if body, err := json.Marshal(r.prices); err == nil {
			frame := append([]byte{byte(MessageTypeSubscribePrice)}, body...)
			frames = append(frames, pendingFrame{slot: slotPrices, binary: true, data: frame})
		}
	}
	return frames
}

// handlerSet — обработчики по видам сообщений. Регистрация и снимок
// расходятся по разным сторонам RWMutex: диспетчеризация берёт копию
// среза и зовёт обработчики уже без блокировки.
type handlerSet struct {
	mu sync.RWMutex

	poolUpdate    []func(*PoolUpdate)
	priorityFees  []func(*PriorityFees)
	feeMarket     []func(*FeeMarket)
	blockhash     []func(*Blockhash)
	quote         []func(*Quote)
	priceUpdate   []func(*PriceEntry)
	priceBatch    []func(*PriceBatch)
	priceSnapshot []func(*PriceSnapshot)
	heartbeat     []func(*Heartbeat)
	pong          []func(*Pong)
	blockStats    []func(*BlockStats)
	subscribed    []func(*Subscribed)
	errs          []func(error)
	connected     []func()
	disconnected  []func()
}

func snapshot[T any](mu *sync.RWMutex, src []T) []T {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]T, len(src))
	copy(out, src)
	return out
}
