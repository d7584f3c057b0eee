// pkg/gateway/client_test.go
package gateway

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/k256-xyz/gateway-go/pkg/backoff"
	"github.com/k256-xyz/gateway-go/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "debug", DevMode: true})
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func fastBackoff() backoff.Config {
	return backoff.Config{
		InitialInterval:     1 * time.Millisecond,
		RandomizationFactor: 0.01,
		Multiplier:          1,
		MaxInterval:         5 * time.Millisecond,
		MaxElapsedTime:      2 * time.Second,
	}
}

// capturedFrame — исходящий кадр, пойманный тестовым сервером.
type capturedFrame struct {
	kind int
	data []byte
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		input   Config
		wantErr bool
	}{
		{"empty gets defaults", Config{}, false},
		{"custom ok", Config{Endpoint: "wss://example.com/ws", APIKey: "k"}, false},
		{"negative ping", Config{PingInterval: -time.Second}, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := c.input
			err := cfg.validate()
			if (err != nil) != c.wantErr {
				t.Fatalf("validate() error = %v; wantErr %v", err, c.wantErr)
			}
			if err != nil {
				return
			}
			if cfg.Endpoint == "" {
				t.Error("Endpoint default not applied")
			}
			if cfg.HandshakeTimeout <= 0 || cfg.ReadTimeout <= 0 || cfg.WriteTimeout <= 0 {
				t.Errorf("timeout defaults not applied: %+v", cfg)
			}
		})
	}
}

// Подписки, выданные до соединения, уходят ровно один раз после
// рукопожатия и в порядке вызовов.
func TestClient_QueuedSubscribeFlushedOnce(t *testing.T) {
	frames := make(chan capturedFrame, 8)
	upg := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upg.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		// ловим всё, что клиент отправит за отведённое окно
		conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- capturedFrame{kind: kind, data: data}
		}
	}))
	defer server.Close()

	cfg := Config{Endpoint: wsURL(server), PingInterval: 0, Backoff: fastBackoff()}
	client, err := New(cfg, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	// обе подписки до Connect: должны встать в очередь
	if err := client.Subscribe(SubscribeRequest{Channels: []string{"pools", "blockhash"}}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := client.SubscribePrices([]string{"So11111111111111111111111111111111111111112"}, 50); err != nil {
		t.Fatalf("SubscribePrices: %v", err)
	}
	if got := client.State(); got != StateDisconnected {
		t.Fatalf("State = %v; want disconnected", got)
	}

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	first := waitFrame(t, frames)
	if first.kind != websocket.TextMessage {
		t.Fatalf("first frame kind = %d; want text", first.kind)
	}
	var sub SubscribeRequest
	if err := json.Unmarshal(first.data, &sub); err != nil {
		t.Fatalf("unmarshal subscribe: %v", err)
	}
	if sub.Type != "subscribe" || len(sub.Channels) != 2 {
		t.Errorf("subscribe = %+v", sub)
	}

	second := waitFrame(t, frames)
	if second.kind != websocket.BinaryMessage || second.data[0] != byte(MessageTypeSubscribePrice) {
		t.Fatalf("second frame = kind %d tag %#x; want binary 0x10", second.kind, second.data[0])
	}

	// больше ничего прийти не должно
	select {
	case extra := <-frames:
		t.Fatalf("unexpected extra frame: kind %d % x", extra.kind, extra.data)
	case <-time.After(400 * time.Millisecond):
	}
}

func waitFrame(t *testing.T, frames <-chan capturedFrame) capturedFrame {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return capturedFrame{}
	}
}

// После обрыва с включённым reconnect действующие подписки
// воспроизводятся на новом соединении без участия вызывающего.
func TestClient_ResubscribeAfterDrop(t *testing.T) {
	subscribes := make(chan []byte, 4)
	connNo := 0
	upg := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upg.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connNo++
		drop := connNo == 1

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return
		}
		subscribes <- data

		if drop {
			conn.Close() // обрыв сразу после первой подписки
			return
		}
		// второе соединение держим открытым
		time.Sleep(500 * time.Millisecond)
		conn.Close()
	}))
	defer server.Close()

	cfg := Config{
		Endpoint:  wsURL(server),
		Reconnect: true,
		Backoff:   fastBackoff(),
	}
	client, err := New(cfg, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	if err := client.Subscribe(SubscribeRequest{Channels: []string{"pools"}}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case data := <-subscribes:
			if !strings.Contains(string(data), `"pools"`) {
				t.Errorf("subscribe %d = %s", i+1, data)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for subscribe #%d", i+1)
		}
	}
}

// Бинарные кадры доставляются обработчикам; ошибка декодирования
// одного кадра не рвёт соединение.
func TestClient_DispatchAndDecodeErrors(t *testing.T) {
	upg := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upg.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		// 1) кадр с неизвестным тегом
		conn.WriteMessage(websocket.BinaryMessage, []byte{0x7A, 0x01})

		// 2) валидный blockhash следом
		frame := make([]byte, 1+blockhashSize)
		frame[0] = byte(MessageTypeBlockhash)
		binary.LittleEndian.PutUint64(frame[1:], 100)
		binary.LittleEndian.PutUint64(frame[9:], 1700000000000)
		binary.LittleEndian.PutUint64(frame[49:], 200)
		binary.LittleEndian.PutUint64(frame[57:], 250)
		conn.WriteMessage(websocket.BinaryMessage, frame)

		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	cfg := Config{Endpoint: wsURL(server), Backoff: fastBackoff()}
	client, err := New(cfg, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	errCh := make(chan error, 1)
	bhCh := make(chan *Blockhash, 1)
	client.OnError(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})
	client.OnBlockhash(func(bh *Blockhash) { bhCh <- bh })

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case err := <-errCh:
		var unknown *UnknownMessageTypeError
		if !errors.As(err, &unknown) {
			t.Errorf("OnError got %v; want UnknownMessageTypeError", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for decode error")
	}

	select {
	case bh := <-bhCh:
		if bh.Slot != 100 || bh.BlockHeight != 200 {
			t.Errorf("Blockhash = %+v", bh)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for blockhash after decode error")
	}
}

// Подтверждение подписки переводит клиента в Subscribed.
func TestClient_SubscribedAck(t *testing.T) {
	upg := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upg.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribed","channels":["pools"]}`))
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	cfg := Config{Endpoint: wsURL(server), Backoff: fastBackoff()}
	client, err := New(cfg, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	acked := make(chan *Subscribed, 1)
	client.OnSubscribed(func(sub *Subscribed) { acked <- sub })

	if err := client.Subscribe(SubscribeRequest{Channels: []string{"pools"}}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case sub := <-acked:
		if len(sub.Channels) != 1 || sub.Channels[0] != "pools" {
			t.Errorf("Subscribed = %+v", sub)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscribed ack")
	}
	if got := client.State(); got != StateSubscribed {
		t.Errorf("State = %v; want subscribed", got)
	}
}

// Ping уходит байтом 0x0B, ответный Pong доставляется обработчику.
func TestClient_PingPong(t *testing.T) {
	upg := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upg.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil || len(data) != 1 || data[0] != byte(MessageTypePing) {
			t.Errorf("ping frame = % x, err %v", data, err)
			return
		}

		pong := make([]byte, 1+pongSize)
		pong[0] = byte(MessageTypePong)
		binary.LittleEndian.PutUint64(pong[1:], 1700000000999)
		conn.WriteMessage(websocket.BinaryMessage, pong)
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	cfg := Config{Endpoint: wsURL(server), Backoff: fastBackoff()}
	client, err := New(cfg, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	connected := make(chan struct{}, 1)
	pongs := make(chan *Pong, 1)
	client.OnConnected(func() { connected <- struct{}{} })
	client.OnPong(func(p *Pong) { pongs <- p })

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connect")
	}
	if err := client.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	select {
	case p := <-pongs:
		if p.TimestampMs != 1700000000999 {
			t.Errorf("Pong = %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pong")
	}
}

// Closed — терминальное состояние: повторный Connect невозможен.
func TestClient_CloseIsTerminal(t *testing.T) {
	cfg := Config{Endpoint: "wss://gateway.invalid/ws", Backoff: fastBackoff()}
	client, err := New(cfg, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := client.State(); got != StateClosed {
		t.Errorf("State = %v; want closed", got)
	}
	if err := client.Connect(context.Background()); err != ErrClosed {
		t.Errorf("Connect after Close = %v; want ErrClosed", err)
	}
	if err := client.Subscribe(SubscribeRequest{Channels: []string{"pools"}}); err != ErrClosed {
		t.Errorf("Subscribe after Close = %v; want ErrClosed", err)
	}
}

// SubscribePrices отклоняет невалидные mint-адреса до любой отправки.
func TestClient_SubscribePricesValidatesMints(t *testing.T) {
	cfg := Config{Backoff: fastBackoff()}
	client, err := New(cfg, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	if err := client.SubscribePrices([]string{"not-a-mint"}, 50); err == nil {
		t.Error("SubscribePrices accepted invalid mint")
	}
}

// Таймаут рукопожатия самого dialer-а должен приходить типизированным.
func TestClient_HandshakeTimeoutTyped(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	// сервер принимает TCP-соединение, но не отвечает на upgrade
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	cfg := Config{
		Endpoint:         "ws://" + ln.Addr().String(),
		HandshakeTimeout: 50 * time.Millisecond,
		Backoff: backoff.Config{
			InitialInterval:     1 * time.Millisecond,
			RandomizationFactor: 0.01,
			Multiplier:          1,
			MaxInterval:         5 * time.Millisecond,
			MaxElapsedTime:      300 * time.Millisecond,
		},
	}
	client, err := New(cfg, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	errCh := make(chan error, 16)
	client.OnError(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case err := <-errCh:
			var hsErr *HandshakeTimeoutError
			if errors.As(err, &hsErr) {
				if hsErr.Timeout != cfg.HandshakeTimeout {
					t.Errorf("Timeout = %v; want %v", hsErr.Timeout, cfg.HandshakeTimeout)
				}
				return
			}
		case <-deadline:
			t.Fatal("no HandshakeTimeoutError observed")
		}
	}
}

// Done должен отдавать канал, закрывающийся после Close, и безопасно
// читаться параллельно с Connect.
func TestClient_DoneAfterClose(t *testing.T) {
	upg := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upg.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	}))
	defer server.Close()

	cfg := Config{Endpoint: wsURL(server), Backoff: fastBackoff()}
	client, err := New(cfg, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if client.Done() != nil {
		t.Error("Done() before Connect must be nil")
	}

	connected := make(chan struct{}, 1)
	client.OnConnected(func() { connected <- struct{}{} })

	go client.Done() // конкурентное чтение во время Connect
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connect")
	}

	done := client.Done()
	if done == nil {
		t.Fatal("Done() after Connect is nil")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("done channel not closed after Close")
	}
	if got := client.State(); got != StateClosed {
		t.Errorf("State = %v; want closed", got)
	}
}
