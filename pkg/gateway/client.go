// pkg/gateway/client.go
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/k256-xyz/gateway-go/pkg/backoff"
	"github.com/k256-xyz/gateway-go/pkg/base58"
	"github.com/k256-xyz/gateway-go/pkg/logger"
)

// Config задаёт параметры подключения к шлюзу.
type Config struct {
	// Адрес WebSocket, например "wss://gateway.k256.xyz/v1/ws"
	Endpoint string
	// API-ключ; передаётся как query-параметр apiKey
	APIKey string
	// Автоматический reconnect при обрыве
	Reconnect bool
	// Лимит на рукопожатие; истечение — восстановимая ошибка подключения
	HandshakeTimeout time.Duration
	// Интервал прикладного ping (0x0B); 0 — выключен
	PingInterval time.Duration
	// ReadDeadline между кадрами
	ReadTimeout time.Duration
	// WriteDeadline на исходящих кадрах
	WriteTimeout time.Duration
	// Настройки экспоненциального бэкоффа переподключения
	Backoff backoff.Config
}

// validate проверяет и заполняет default-значения.
func (c *Config) validate() error {
	var errs []string

	if c.Endpoint == "" {
		c.Endpoint = "wss://gateway.k256.xyz/v1/ws"
	}
	if _, err := url.Parse(c.Endpoint); err != nil {
		errs = append(errs, fmt.Sprintf("invalid Endpoint: %v", err))
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.PingInterval < 0 {
		errs = append(errs, "PingInterval must be >= 0")
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 90 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	c.Backoff.ApplyDefaults()

	if len(errs) > 0 {
		return fmt.Errorf("invalid Config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Client — клиент шлюза рыночных данных поверх WebSocket.
// Читающая горутина одна: кадры декодируются и доставляются обработчикам
// строго в порядке прихода. Обработчики не должны блокировать.
type Client struct {
	cfg Config
	log *logger.Logger

	mu      sync.Mutex // conn, cancel, done и согласованность state/registry
	writeMu sync.Mutex
	conn    *websocket.Conn

	state  atomic.Int32
	closed atomic.Bool

	registry registry
	handlers handlerSet

	cancel context.CancelFunc
	done   chan struct{}
}

// New создаёт клиент. Логгер именуется как "gateway-ws".
func New(cfg Config, log *logger.Logger) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Client{
		cfg: cfg,
		log: log.Named("gateway-ws"),
	}, nil
}

// State возвращает текущее состояние соединения.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Client) setState(next ConnState) {
	prev := ConnState(c.state.Swap(int32(next)))
	if prev != next {
		c.log.Sugar().Debugw("ws: state changed", "from", prev.String(), "to", next.String())
	}
}

// Connect запускает цикл подключения в фоне. Возвращает ошибку, если
// клиент уже запущен или закрыт; сами ошибки транспорта приходят через
// OnError, успех — через OnConnected.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return fmt.Errorf("gateway: connect from state %q", c.State())
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()
	go c.run(runCtx, done)
	return nil
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		// 1) Проверка отмены контекста
		select {
		case <-ctx.Done():
			c.finish()
			return
		default:
		}

		// 2) Подключаемся с бэкоффом; каждая попытка ограничена рукопожатием
		conn, err := c.dial(ctx)
		if err != nil {
			c.log.Sugar().Errorw("ws: failed to connect after retries", "err", err)
			c.emitError(&TransportError{Op: "dial", Err: err})
			c.finish()
			return
		}

		// 3) Переход в Connected и отправка отложенных подписок
		c.mu.Lock()
		c.conn = conn
		c.setState(StateConnected)
		frames := c.registry.flush()
		c.mu.Unlock()

		c.log.Sugar().Infow("ws: connected", "url", c.cfg.Endpoint)
		for _, fn := range snapshot(&c.handlers.mu, c.handlers.connected) {
			fn()
		}
		for _, f := range frames {
			if err := c.sendFrame(f.binary, f.data); err != nil {
				c.log.Sugar().Warnw("ws: subscribe replay failed", "err", err)
				break
			}
		}

		// 4) Ping-горутина на время жизни этого соединения
		connCtx, cancelPing := context.WithCancel(ctx)
		if c.cfg.PingInterval > 0 {
			go c.pingLoop(connCtx)
		}

		// 5) Чтение до обрыва
		readErr := c.readLoop(ctx, conn)
		cancelPing()

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()

		for _, fn := range snapshot(&c.handlers.mu, c.handlers.disconnected) {
			fn()
		}

		if c.closed.Load() || ctx.Err() != nil {
			c.finish()
			return
		}
		if readErr != nil {
			c.emitError(&TransportError{Op: "read", Err: readErr})
		}
		if !c.cfg.Reconnect {
			c.setState(StateDisconnected)
			return
		}
		c.setState(StateReconnecting)
	}
}

// dial устанавливает соединение, добавляя apiKey в query.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	if c.cfg.APIKey != "" {
		q := u.Query()
		q.Set("apiKey", c.cfg.APIKey)
		u.RawQuery = q.Encode()
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}

	var conn *websocket.Conn
	err = backoff.Execute(ctx, c.cfg.Backoff, "gateway-dial", c.log, func(ctxTry context.Context) error {
		c.setState(StateConnecting)
		var dialErr error
		conn, _, dialErr = dialer.DialContext(ctxTry, u.String(), nil)
		if dialErr != nil {
			if c.isHandshakeTimeout(ctx, ctxTry, dialErr) {
				dialErr = &HandshakeTimeoutError{Timeout: c.cfg.HandshakeTimeout}
			}
			c.emitError(&TransportError{Op: "dial", Err: dialErr})
			if c.cfg.Reconnect {
				c.setState(StateReconnecting)
			}
		}
		return dialErr
	})
	return conn, err
}

// isHandshakeTimeout распознаёт истечение рукопожатия: либо сработал
// HandshakeTimeout самого dialer-а (таймаут-ошибка сети), либо истёк
// контекст попытки при живом родительском контексте.
func (c *Client) isHandshakeTimeout(ctx, ctxTry context.Context, dialErr error) bool {
	if ctxTry.Err() != nil && ctx.Err() == nil {
		return true
	}
	var netErr net.Error
	return errors.As(dialErr, &netErr) && netErr.Timeout()
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.sendFrame(true, []byte{byte(MessageTypePing)}); err != nil {
				c.log.Sugar().Warnw("ws: ping failed", "err", err)
			}
		}
	}
}

// readLoop читает кадры до ошибки транспорта. Отмена кооперативная:
// текущий кадр додиспетчеризуется до конца.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		if ctx.Err() != nil || c.closed.Load() {
			return nil
		}
		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
			return err
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		switch msgType {
		case websocket.BinaryMessage:
			c.handleBinary(data)
		case websocket.TextMessage:
			c.handleText(data)
		}
	}
}

// handleBinary декодирует кадр и доставляет запись обработчикам.
// Ошибка декодирования одного кадра не рвёт соединение.
func (c *Client) handleBinary(data []byte) {
	msg, err := Decode(data)
	if err != nil {
		c.emitError(err)
		return
	}

	switch m := msg.(type) {
	case *PoolUpdate:
		for _, fn := range snapshot(&c.handlers.mu, c.handlers.poolUpdate) {
			fn(m)
		}
	case *PoolUpdateBatch:
		handlers := snapshot(&c.handlers.mu, c.handlers.poolUpdate)
		for _, update := range m.Updates {
			for _, fn := range handlers {
				fn(update)
			}
		}
	case *PriorityFees:
		for _, fn := range snapshot(&c.handlers.mu, c.handlers.priorityFees) {
			fn(m)
		}
	case *FeeMarket:
		for _, fn := range snapshot(&c.handlers.mu, c.handlers.feeMarket) {
			fn(m)
		}
	case *Blockhash:
		for _, fn := range snapshot(&c.handlers.mu, c.handlers.blockhash) {
			fn(m)
		}
	case *Quote:
		for _, fn := range snapshot(&c.handlers.mu, c.handlers.quote) {
			fn(m)
		}
	case *PriceEntry:
		for _, fn := range snapshot(&c.handlers.mu, c.handlers.priceUpdate) {
			fn(m)
		}
	case *PriceBatch:
		for _, fn := range snapshot(&c.handlers.mu, c.handlers.priceBatch) {
			fn(m)
		}
	case *PriceSnapshot:
		for _, fn := range snapshot(&c.handlers.mu, c.handlers.priceSnapshot) {
			fn(m)
		}
	case *Heartbeat:
		for _, fn := range snapshot(&c.handlers.mu, c.handlers.heartbeat) {
			fn(m)
		}
	case *Pong:
		for _, fn := range snapshot(&c.handlers.mu, c.handlers.pong) {
			fn(m)
		}
	case *BlockStats:
		for _, fn := range snapshot(&c.handlers.mu, c.handlers.blockStats) {
			fn(m)
		}
	case *Subscribed:
		c.ackSubscribed(m)
	case *QuoteSubscribed:
		c.log.Sugar().Debugw("ws: quote stream subscribed", "topic", m.TopicID)
	case *ServerError:
		c.emitError(m)
	}
}

// handleText разбирает текстовые управляющие сообщения.
func (c *Client) handleText(data []byte) {
	var meta struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		c.log.Sugar().Warnw("ws: malformed text frame", "err", err)
		return
	}

	switch meta.Type {
	case "subscribed":
		var sub Subscribed
		if err := json.Unmarshal(data, &sub); err != nil {
			c.log.Sugar().Warnw("ws: malformed subscribed ack", "err", err)
			return
		}
		c.ackSubscribed(&sub)
	case "heartbeat":
		var hb Heartbeat
		if err := json.Unmarshal(data, &hb); err != nil {
			c.log.Sugar().Warnw("ws: malformed heartbeat", "err", err)
			return
		}
		for _, fn := range snapshot(&c.handlers.mu, c.handlers.heartbeat) {
			fn(&hb)
		}
	case "error":
		var srv struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &srv); err != nil {
			return
		}
		c.emitError(&ServerError{Text: srv.Message})
	}
}

func (c *Client) ackSubscribed(sub *Subscribed) {
	c.state.CompareAndSwap(int32(StateConnected), int32(StateSubscribed))
	c.log.Sugar().Infow("ws: subscription acknowledged", "channels", sub.Channels)
	for _, fn := range snapshot(&c.handlers.mu, c.handlers.subscribed) {
		fn(sub)
	}
}

func (c *Client) emitError(err error) {
	for _, fn := range snapshot(&c.handlers.mu, c.handlers.errs) {
		fn(err)
	}
}

// isLive сообщает, можно ли писать в сокет прямо сейчас.
// Вызывается только под c.mu.
func (c *Client) isLiveLocked() bool {
	s := c.State()
	return c.conn != nil && (s == StateConnected || s == StateSubscribed)
}

func (c *Client) sendFrame(binary bool, data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return &TransportError{Op: "write", Err: ErrClosed}
	}

	kind := websocket.TextMessage
	if binary {
		kind = websocket.BinaryMessage
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(kind, data); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// Subscribe подписывается на каналы шлюза. До завершения рукопожатия
// запрос откладывается и будет отправлен ровно один раз при входе
// в Connected; при reconnect подписка воспроизводится автоматически.
func (c *Client) Subscribe(req SubscribeRequest) error {
	if c.closed.Load() {
		return ErrClosed
	}
	req.Type = "subscribe"

	c.mu.Lock()
	data, sendNow, err := c.registry.setChannels(&req, c.isLiveLocked())
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("gateway: encode subscribe: %w", err)
	}
	if sendNow {
		return c.sendFrame(false, data)
	}
	return nil
}

// Unsubscribe снимает подписку на все каналы.
func (c *Client) Unsubscribe() error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.mu.Lock()
	c.registry.clearChannels()
	live := c.isLiveLocked()
	c.mu.Unlock()

	if !live {
		return nil
	}
	return c.sendFrame(false, []byte(`{"type":"unsubscribe"}`))
}

// SubscribePrices подписывается на обновления цен перечисленных токенов.
// thresholdBps — минимальное изменение цены в базисных пунктах.
func (c *Client) SubscribePrices(tokens []string, thresholdBps int) error {
	if c.closed.Load() {
		return ErrClosed
	}
	for _, mint := range tokens {
		if !base58.IsValidPubkey(mint) {
			return fmt.Errorf("gateway: invalid token mint %q", mint)
		}
	}

	req := &subscribePriceRequest{
		Type:         "subscribe_price",
		Tokens:       tokens,
		ThresholdBps: thresholdBps,
	}

	c.mu.Lock()
	frame, sendNow, err := c.registry.setPrices(req, c.isLiveLocked())
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("gateway: encode price subscribe: %w", err)
	}
	if sendNow {
		return c.sendFrame(true, frame)
	}
	return nil
}

// UnsubscribePrices снимает ценовую подписку (одиночный байт 0x14).
func (c *Client) UnsubscribePrices() error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.mu.Lock()
	c.registry.clearPrices()
	live := c.isLiveLocked()
	c.mu.Unlock()

	if !live {
		return nil
	}
	return c.sendFrame(true, []byte{byte(MessageTypeUnsubscribePrice)})
}

// Ping шлёт прикладной ping (0x0B); ответ приходит кадром Pong.
func (c *Client) Ping() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.sendFrame(true, []byte{byte(MessageTypePing)})
}

// Close закрывает клиент навсегда. Текущий кадр додиспетчеризуется,
// reconnect не возобновляется.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.setState(StateClosed)

	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Done возвращает канал, закрывающийся после остановки цикла
// подключения. До первого Connect возвращает nil.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Client) finish() {
	if c.closed.Load() {
		c.setState(StateClosed)
	} else {
		c.setState(StateDisconnected)
	}
}

// OnPoolUpdate регистрирует обработчик обновлений пулов
// (одиночных и из батчей). Обработчики зовутся в порядке регистрации.
func (c *Client) OnPoolUpdate(fn func(*PoolUpdate)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.poolUpdate = append(c.handlers.poolUpdate, fn)
}

// OnPriorityFees регистрирует обработчик сводки приоритетных комиссий.
func (c *Client) OnPriorityFees(fn func(*PriorityFees)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.priorityFees = append(c.handlers.priorityFees, fn)
}

// OnFeeMarket регистрирует обработчик пер-аккаунтного среза комиссий.
func (c *Client) OnFeeMarket(fn func(*FeeMarket)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.feeMarket = append(c.handlers.feeMarket, fn)
}

// OnBlockhash регистрирует обработчик обновлений blockhash.
func (c *Client) OnBlockhash(fn func(*Blockhash)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.blockhash = append(c.handlers.blockhash, fn)
}

// OnQuote регистрирует обработчик своп-котировок.
func (c *Client) OnQuote(fn func(*Quote)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.quote = append(c.handlers.quote, fn)
}

// OnPriceUpdate регистрирует обработчик одиночных ценовых обновлений.
func (c *Client) OnPriceUpdate(fn func(*PriceEntry)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.priceUpdate = append(c.handlers.priceUpdate, fn)
}

// OnPriceBatch регистрирует обработчик ценовых батчей.
func (c *Client) OnPriceBatch(fn func(*PriceBatch)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.priceBatch = append(c.handlers.priceBatch, fn)
}

// OnPriceSnapshot регистрирует обработчик ценовых снимков.
func (c *Client) OnPriceSnapshot(fn func(*PriceSnapshot)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.priceSnapshot = append(c.handlers.priceSnapshot, fn)
}

// OnHeartbeat регистрирует обработчик heartbeat-сообщений.
func (c *Client) OnHeartbeat(fn func(*Heartbeat)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.heartbeat = append(c.handlers.heartbeat, fn)
}

// OnPong регистрирует обработчик ответов на ping.
func (c *Client) OnPong(fn func(*Pong)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.pong = append(c.handlers.pong, fn)
}

// OnBlockStats регистрирует обработчик статистики блоков.
func (c *Client) OnBlockStats(fn func(*BlockStats)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.blockStats = append(c.handlers.blockStats, fn)
}

// OnSubscribed регистрирует обработчик подтверждений подписки.
func (c *Client) OnSubscribed(fn func(*Subscribed)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.subscribed = append(c.handlers.subscribed, fn)
}

// OnError регистрирует обработчик ошибок: декодирования, транспорта
// и серверных (0xFF).
func (c *Client) OnError(fn func(error)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.errs = append(c.handlers.errs, fn)
}

// OnConnected регистрирует обработчик установки соединения.
func (c *Client) OnConnected(fn func()) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.connected = append(c.handlers.connected, fn)
}

// OnDisconnected регистрирует обработчик потери соединения.
func (c *Client) OnDisconnected(fn func()) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.disconnected = append(c.handlers.disconnected, fn)
}
