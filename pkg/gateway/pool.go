// pkg/gateway/pool.go
package gateway

import "fmt"

// DecodePoolUpdate декодирует одиночное обновление пула из bincode-формата.
// Каждая заявленная длина проверяется против остатка буфера до чтения;
// при любом выходе за границы запись не эмитится вовсе.
func DecodePoolUpdate(payload []byte) (*PoolUpdate, error) {
	r := newPayloadReader(MessageTypePoolUpdate, payload)

	// serialized_state: Bytes (u64 len + bytes)
	stateLen, err := r.length("serialized_state")
	if err != nil {
		return nil, err
	}
	serializedState, err := r.bytes(stateLen, "serialized_state")
	if err != nil {
		return nil, err
	}

	sequence, err := r.u64("sequence")
	if err != nil {
		return nil, err
	}
	slot, err := r.u64("slot")
	if err != nil {
		return nil, err
	}
	writeVersion, err := r.u64("write_version")
	if err != nil {
		return nil, err
	}

	protocolName, err := r.string("protocol_name")
	if err != nil {
		return nil, err
	}
	poolAddress, err := r.pubkey("pool_address")
	if err != nil {
		return nil, err
	}

	// all_token_mints: Vec<[u8; 32]>
	numMints, err := r.length("token_mints")
	if err != nil {
		return nil, err
	}
	if numMints*32 > r.remaining() {
		return nil, r.fail("token_mints", "claimed length exceeds remaining payload")
	}
	tokenMints := make([]string, numMints)
	for i := range tokenMints {
		if tokenMints[i], err = r.pubkey("token_mints"); err != nil {
			return nil, err
		}
	}

	// all_token_balances: Vec<u64>
	numBalances, err := r.length("token_balances")
	if err != nil {
		return nil, err
	}
	if numBalances*8 > r.remaining() {
		return nil, r.fail("token_balances", "claimed length exceeds remaining payload")
	}
	tokenBalances := make([]uint64, numBalances)
	for i := range tokenBalances {
		if tokenBalances[i], err = r.u64("token_balances"); err != nil {
			return nil, err
		}
	}

	// all_token_decimals: Vec<i32>
	numDecimals, err := r.length("token_decimals")
	if err != nil {
		return nil, err
	}
	if numDecimals*4 > r.remaining() {
		return nil, r.fail("token_decimals", "claimed length exceeds remaining payload")
	}
	tokenDecimals := make([]int32, numDecimals)
	for i := range tokenDecimals {
		if tokenDecimals[i], err = r.i32("token_decimals"); err != nil {
			return nil, err
		}
	}

	// Три параллельных массива обязаны иметь одну длину.
	if numBalances != numMints || numDecimals != numMints {
		return nil, r.fail("token_balances",
			fmt.Sprintf("parallel arrays disagree: %d mints, %d balances, %d decimals",
				numMints, numBalances, numDecimals))
	}

	bestBid, err := r.orderLevel("best_bid")
	if err != nil {
		return nil, err
	}
	bestAsk, err := r.orderLevel("best_ask")
	if err != nil {
		return nil, err
	}

	return &PoolUpdate{
		Sequence:        sequence,
		Slot:            slot,
		WriteVersion:    writeVersion,
		ProtocolName:    protocolName,
		PoolAddress:     poolAddress,
		TokenMints:      tokenMints,
		TokenBalances:   tokenBalances,
		TokenDecimals:   tokenDecimals,
		BestBid:         bestBid,
		BestAsk:         bestAsk,
		SerializedState: serializedState,
	}, nil
}

// DecodePoolUpdateBatch декодирует пачку обновлений пулов:
// [count:u16 LE] затем count×([len:u32 LE][payload]).
func DecodePoolUpdateBatch(payload []byte) (*PoolUpdateBatch, error) {
	r := newPayloadReader(MessageTypePoolUpdateBatch, payload)

	count, err := r.u16("count")
	if err != nil {
		return nil, err
	}

	updates := make([]*PoolUpdate, 0, count)
	for i := uint16(0); i < count; i++ {
		field := fmt.Sprintf("updates[%d]", i)

		length, err := r.u32(field)
		if err != nil {
			return nil, err
		}
		if uint64(length) > uint64(r.remaining()) {
			return nil, r.fail(field, "claimed length exceeds remaining payload")
		}

		body, err := r.bytes(int(length), field)
		if err != nil {
			return nil, err
		}
		update, err := DecodePoolUpdate(body)
		if err != nil {
			return nil, fmt.Errorf("gateway: pool update %d of %d: %w", i, count, err)
		}
		updates = append(updates, update)
	}

	return &PoolUpdateBatch{Updates: updates}, nil
}
