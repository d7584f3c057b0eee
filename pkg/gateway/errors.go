// pkg/gateway/errors.go
package gateway

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptyFrame возвращается из Decode на пустой буфер.
var ErrEmptyFrame = errors.New("gateway: empty frame")

// ErrClosed возвращается из операций над клиентом после Close.
var ErrClosed = errors.New("gateway: client is closed")

// UnknownMessageTypeError — неизвестный тег типа сообщения.
// Не фатальна: кадр отбрасывается, соединение продолжает работать.
type UnknownMessageTypeError struct {
	Type byte
}

func (e *UnknownMessageTypeError) Error() string {
	return fmt.Sprintf("gateway: unknown message type 0x%02X", e.Type)
}

// TruncatedMessageError — длина payload не совпала с фиксированной раскладкой.
type TruncatedMessageError struct {
	Type     MessageType
	Expected int
	Actual   int
}

func (e *TruncatedMessageError) Error() string {
	return fmt.Sprintf("gateway: truncated %s message: expected %d bytes, got %d",
		e.Type, e.Expected, e.Actual)
}

// MalformedVariableLengthError — заявленная длина переменного поля не
// согласуется с остатком буфера либо хвост не делится на размер записи.
type MalformedVariableLengthError struct {
	Type   MessageType
	Field  string
	Detail string
}

func (e *MalformedVariableLengthError) Error() string {
	return fmt.Sprintf("gateway: malformed %s message: field %q: %s",
		e.Type, e.Field, e.Detail)
}

// TransportError оборачивает ошибку транспорта/сокета.
type TransportError struct {
	Op  string // "dial" | "read" | "write" | "close"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway: transport %s: %v", e.Op, e.Err)
}
func (e *TransportError) Unwrap() error { return e.Err }

// HandshakeTimeoutError — рукопожатие не завершилось за отведённое время.
// Восстановимая ошибка подключения: уходит в reconnect/backoff.
type HandshakeTimeoutError struct {
	Timeout time.Duration
}

func (e *HandshakeTimeoutError) Error() string {
	return fmt.Sprintf("gateway: handshake timed out after %s", e.Timeout)
}
