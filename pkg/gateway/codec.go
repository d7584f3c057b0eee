// pkg/gateway/codec.go
package gateway

import (
	"encoding/binary"
	"math"

	"github.com/k256-xyz/gateway-go/pkg/base58"
)

// payloadReader — последовательное чтение little-endian значений из payload
// с проверкой границ. Любой выход за буфер превращается в
// MalformedVariableLengthError, и декодирование прерывается целиком.
type payloadReader struct {
	typ  MessageType
	data []byte
	off  int
}

func newPayloadReader(typ MessageType, data []byte) *payloadReader {
	return &payloadReader{typ: typ, data: data}
}

func (r *payloadReader) remaining() int { return len(r.data) - r.off }

func (r *payloadReader) fail(field, detail string) error {
	return &MalformedVariableLengthError{Type: r.typ, Field: field, Detail: detail}
}

func (r *payloadReader) need(n int, field string) error {
	if r.remaining() < n {
		return r.fail(field, "insufficient data")
	}
	return nil
}

func (r *payloadReader) u8(field string) (byte, error) {
	if err := r.need(1, field); err != nil {
		return 0, err
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

func (r *payloadReader) bool(field string) (bool, error) {
	b, err := r.u8(field)
	return b != 0, err
}

func (r *payloadReader) u16(field string) (uint16, error) {
	if err := r.need(2, field); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v, nil
}

func (r *payloadReader) u32(field string) (uint32, error) {
	if err := r.need(4, field); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *payloadReader) i32(field string) (int32, error) {
	v, err := r.u32(field)
	return int32(v), err
}

func (r *payloadReader) u64(field string) (uint64, error) {
	if err := r.need(8, field); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v, nil
}

func (r *payloadReader) f32(field string) (float32, error) {
	v, err := r.u32(field)
	return math.Float32frombits(v), err
}

// length читает u64-префикс длины и сверяет его с остатком буфера.
func (r *payloadReader) length(field string) (int, error) {
	v, err := r.u64(field)
	if err != nil {
		return 0, err
	}
	if v > uint64(r.remaining()) {
		return 0, r.fail(field, "claimed length exceeds remaining payload")
	}
	return int(v), nil
}

// bytes возвращает копию следующих n байтов.
func (r *payloadReader) bytes(n int, field string) ([]byte, error) {
	if err := r.need(n, field); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.data[r.off:r.off+n])
	r.off += n
	return out, nil
}

// string читает bincode-строку: u64-длина + UTF-8 байты.
func (r *payloadReader) string(field string) (string, error) {
	n, err := r.length(field)
	if err != nil {
		return "", err
	}
	s := string(r.data[r.off : r.off+n])
	r.off += n
	return s, nil
}

// pubkey читает 32 байта и кодирует их в base58.
func (r *payloadReader) pubkey(field string) (string, error) {
	if err := r.need(32, field); err != nil {
		return "", err
	}
	s := base58.Encode(r.data[r.off : r.off+32])
	r.off += 32
	return s, nil
}

// orderLevel читает Option<OrderLevel>: байт-флаг + при 1 два u64.
func (r *payloadReader) orderLevel(field string) (*OrderLevel, error) {
	flag, err := r.u8(field)
	if err != nil {
		return nil, err
	}
	if flag != 1 {
		return nil, nil
	}
	price, err := r.u64(field + ".price")
	if err != nil {
		return nil, err
	}
	size, err := r.u64(field + ".size")
	if err != nil {
		return nil, err
	}
	return &OrderLevel{Price: price, Size: size}, nil
}
