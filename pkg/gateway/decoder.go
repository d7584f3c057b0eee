// pkg/gateway/decoder.go
package gateway

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/k256-xyz/gateway-go/pkg/base58"
)

// Размеры фиксированных раскладок (см. wire-формат шлюза).
const (
	priorityFeesSize = 119
	blockhashSize    = 65
	pongSize         = 8
	priceEntrySize   = 56
	feeMarketHeader  = 42
	accountFeeSize   = 92
)

// Decode — stateless-вход декодера: классифицирует кадр по первому байту
// и возвращает типизированное сообщение. Работает без живого соединения.
//
// Пустой кадр → ErrEmptyFrame. Неизвестный тег → UnknownMessageTypeError
// (сигнал forward-совместимости, соединение не затрагивается).
func Decode(frame []byte) (Message, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}

	typ := MessageType(frame[0])
	payload := frame[1:]

	switch typ {
	case MessageTypePoolUpdate:
		return DecodePoolUpdate(payload)
	case MessageTypePoolUpdateBatch:
		return DecodePoolUpdateBatch(payload)
	case MessageTypePriorityFees:
		// Тег 0x05 несёт две раскладки разных поколений протокола:
		// ровно 119 байт — плоский PriorityFees, иначе — FeeMarket.
		if len(payload) == priorityFeesSize {
			return DecodePriorityFees(payload)
		}
		return DecodeFeeMarket(payload)
	case MessageTypeBlockhash:
		return DecodeBlockhash(payload)
	case MessageTypeQuote:
		return DecodeQuote(payload)
	case MessageTypePong:
		return DecodePong(payload)
	case MessageTypeHeartbeat:
		return DecodeHeartbeat(payload)
	case MessageTypeSubscribed:
		var sub Subscribed
		if err := json.Unmarshal(payload, &sub); err != nil {
			return nil, fmt.Errorf("gateway: decode subscribed: %w", err)
		}
		return &sub, nil
	case MessageTypeQuoteSubscribed:
		var qs QuoteSubscribed
		if err := json.Unmarshal(payload, &qs); err != nil {
			return nil, fmt.Errorf("gateway: decode quote_subscribed: %w", err)
		}
		return &qs, nil
	case MessageTypePriceUpdate:
		return DecodePriceUpdate(payload)
	case MessageTypePriceBatch:
		entries, err := decodePriceEntries(MessageTypePriceBatch, payload)
		if err != nil {
			return nil, err
		}
		return &PriceBatch{Entries: entries}, nil
	case MessageTypePriceSnapshot:
		entries, err := decodePriceEntries(MessageTypePriceSnapshot, payload)
		if err != nil {
			return nil, err
		}
		return &PriceSnapshot{Entries: entries}, nil
	case MessageTypeBlockStats:
		raw := make([]byte, len(payload))
		copy(raw, payload)
		return &BlockStats{Raw: raw}, nil
	case MessageTypeError:
		return &ServerError{Text: string(payload)}, nil
	case MessageTypeSubscribe, MessageTypeUnsubscribe, MessageTypeSubscribeQuote,
		MessageTypeUnsubscribeQuote, MessageTypePing, MessageTypeSubscribePrice,
		MessageTypeUnsubscribePrice:
		return nil, fmt.Errorf("gateway: client-to-server message type %s in inbound frame", typ)
	default:
		return nil, &UnknownMessageTypeError{Type: frame[0]}
	}
}

// checkFixed сверяет payload с точной длиной фиксированной раскладки.
func checkFixed(typ MessageType, payload []byte, want int) error {
	if len(payload) != want {
		return &TruncatedMessageError{Type: typ, Expected: want, Actual: len(payload)}
	}
	return nil
}

// DecodePriorityFees декодирует плоскую сводку priority fee (119 байт LE).
// Все поля — независимые чтения по фиксированным смещениям.
func DecodePriorityFees(payload []byte) (*PriorityFees, error) {
	if err := checkFixed(MessageTypePriorityFees, payload, priorityFeesSize); err != nil {
		return nil, err
	}

	return &PriorityFees{
		Slot:          binary.LittleEndian.Uint64(payload[0:]),
		TimestampMs:   binary.LittleEndian.Uint64(payload[8:]),
		Recommended:   binary.LittleEndian.Uint64(payload[16:]),
		State:         networkStateFrom(payload[24]),
		IsStale:       payload[25] != 0,
		SwapP50:       binary.LittleEndian.Uint64(payload[26:]),
		SwapP75:       binary.LittleEndian.Uint64(payload[34:]),
		SwapP90:       binary.LittleEndian.Uint64(payload[42:]),
		SwapP99:       binary.LittleEndian.Uint64(payload[50:]),
		SwapSamples:   binary.LittleEndian.Uint32(payload[58:]),
		LandingP50Fee: binary.LittleEndian.Uint64(payload[62:]),
		LandingP75Fee: binary.LittleEndian.Uint64(payload[70:]),
		LandingP90Fee: binary.LittleEndian.Uint64(payload[78:]),
		LandingP99Fee: binary.LittleEndian.Uint64(payload[86:]),
		Top10Fee:      binary.LittleEndian.Uint64(payload[94:]),
		Top25Fee:      binary.LittleEndian.Uint64(payload[102:]),
		SpikeDetected: payload[110] != 0,
		SpikeFee:      binary.LittleEndian.Uint64(payload[111:]),
	}, nil
}

// DecodeBlockhash декодирует blockhash-кадр (65 байт LE).
func DecodeBlockhash(payload []byte) (*Blockhash, error) {
	if err := checkFixed(MessageTypeBlockhash, payload, blockhashSize); err != nil {
		return nil, err
	}

	return &Blockhash{
		Slot:                 binary.LittleEndian.Uint64(payload[0:]),
		TimestampMs:          binary.LittleEndian.Uint64(payload[8:]),
		Blockhash:            base58.Encode(payload[16:48]),
		BlockHeight:          binary.LittleEndian.Uint64(payload[48:]),
		LastValidBlockHeight: binary.LittleEndian.Uint64(payload[56:]),
		IsStale:              payload[64] != 0,
	}, nil
}

// DecodePong декодирует pong-кадр (8 байт: u64 timestamp).
func DecodePong(payload []byte) (*Pong, error) {
	if err := checkFixed(MessageTypePong, payload, pongSize); err != nil {
		return nil, err
	}
	return &Pong{TimestampMs: binary.LittleEndian.Uint64(payload)}, nil
}

// DecodePriceUpdate декодирует одиночный price update (56 байт LE).
func DecodePriceUpdate(payload []byte) (*PriceEntry, error) {
	if err := checkFixed(MessageTypePriceUpdate, payload, priceEntrySize); err != nil {
		return nil, err
	}
	return decodePriceEntry(payload), nil
}

func decodePriceEntry(rec []byte) *PriceEntry {
	return &PriceEntry{
		Mint:        base58.Encode(rec[0:32]),
		UsdPriceRaw: binary.LittleEndian.Uint64(rec[32:]),
		Slot:        binary.LittleEndian.Uint64(rec[40:]),
		TimestampMs: binary.LittleEndian.Uint64(rec[48:]),
	}
}

// decodePriceEntries декодирует пачку/снимок цен:
// [count:u16 LE][entry_1:56B]...[entry_n:56B]. Всё или ничего.
func decodePriceEntries(typ MessageType, payload []byte) ([]*PriceEntry, error) {
	if len(payload) < 2 {
		return nil, &TruncatedMessageError{Type: typ, Expected: 2, Actual: len(payload)}
	}

	count := int(binary.LittleEndian.Uint16(payload))
	body := payload[2:]
	if len(body) != count*priceEntrySize {
		return nil, &MalformedVariableLengthError{
			Type:   typ,
			Field:  "entries",
			Detail: fmt.Sprintf("expected %d entries of %d bytes, got %d bytes", count, priceEntrySize, len(body)),
		}
	}

	entries := make([]*PriceEntry, 0, count)
	for i := 0; i < count; i++ {
		entries = append(entries, decodePriceEntry(body[i*priceEntrySize:]))
	}
	return entries, nil
}

// DecodeFeeMarket декодирует fee-рынок: 42-байтный заголовок + N×92 байт
// на аккаунт. Хвост обязан делиться на 92 нацело и совпадать со счётчиком
// из заголовка, иначе запись не эмитится вовсе.
func DecodeFeeMarket(payload []byte) (*FeeMarket, error) {
	if len(payload) < feeMarketHeader {
		return nil, &TruncatedMessageError{Type: MessageTypePriorityFees, Expected: feeMarketHeader, Actual: len(payload)}
	}

	tail := len(payload) - feeMarketHeader
	if tail%accountFeeSize != 0 {
		return nil, &MalformedVariableLengthError{
			Type:   MessageTypePriorityFees,
			Field:  "accounts",
			Detail: fmt.Sprintf("account payload of %d bytes is not a multiple of %d", tail, accountFeeSize),
		}
	}

	accountCount := binary.LittleEndian.Uint64(payload[34:])
	if accountCount != uint64(tail/accountFeeSize) {
		return nil, &MalformedVariableLengthError{
			Type:   MessageTypePriorityFees,
			Field:  "accounts",
			Detail: fmt.Sprintf("header declares %d accounts, payload carries %d", accountCount, tail/accountFeeSize),
		}
	}

	fm := &FeeMarket{
		Slot:                binary.LittleEndian.Uint64(payload[0:]),
		TimestampMs:         binary.LittleEndian.Uint64(payload[8:]),
		Recommended:         binary.LittleEndian.Uint64(payload[16:]),
		State:               networkStateFrom(payload[24]),
		IsStale:             payload[25] != 0,
		BlockUtilizationPct: math.Float32frombits(binary.LittleEndian.Uint32(payload[26:])),
		BlocksInWindow:      binary.LittleEndian.Uint32(payload[30:]),
		Accounts:            make([]AccountFee, 0, accountCount),
	}

	for off := feeMarketHeader; off < len(payload); off += accountFeeSize {
		rec := payload[off : off+accountFeeSize]
		fm.Accounts = append(fm.Accounts, AccountFee{
			Pubkey:          base58.Encode(rec[0:32]),
			TotalTxs:        binary.LittleEndian.Uint32(rec[32:]),
			ActiveSlots:     binary.LittleEndian.Uint32(rec[36:]),
			CuConsumed:      binary.LittleEndian.Uint64(rec[40:]),
			UtilizationPct:  math.Float32frombits(binary.LittleEndian.Uint32(rec[48:])),
			P25:             binary.LittleEndian.Uint64(rec[52:]),
			P50:             binary.LittleEndian.Uint64(rec[60:]),
			P75:             binary.LittleEndian.Uint64(rec[68:]),
			P90:             binary.LittleEndian.Uint64(rec[76:]),
			MinNonzeroPrice: binary.LittleEndian.Uint64(rec[84:]),
		})
	}

	return fm, nil
}

// DecodeHeartbeat декодирует heartbeat-кадр (JSON).
func DecodeHeartbeat(payload []byte) (*Heartbeat, error) {
	var hb Heartbeat
	if err := json.Unmarshal(payload, &hb); err != nil {
		return nil, fmt.Errorf("gateway: decode heartbeat: %w", err)
	}
	return &hb, nil
}
