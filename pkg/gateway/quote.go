// pkg/gateway/quote.go
package gateway

import "encoding/json"

// DecodeQuote декодирует котировку маршрутизатора из bincode-формата.
func DecodeQuote(payload []byte) (*Quote, error) {
	r := newPayloadReader(MessageTypeQuote, payload)

	topicID, err := r.string("topic_id")
	if err != nil {
		return nil, err
	}
	timestampMs, err := r.u64("timestamp_ms")
	if err != nil {
		return nil, err
	}
	sequence, err := r.u64("sequence")
	if err != nil {
		return nil, err
	}
	inputMint, err := r.pubkey("input_mint")
	if err != nil {
		return nil, err
	}
	outputMint, err := r.pubkey("output_mint")
	if err != nil {
		return nil, err
	}
	inAmount, err := r.u64("in_amount")
	if err != nil {
		return nil, err
	}
	outAmount, err := r.u64("out_amount")
	if err != nil {
		return nil, err
	}
	priceImpactBps, err := r.i32("price_impact_bps")
	if err != nil {
		return nil, err
	}
	slot, err := r.u64("context_slot")
	if err != nil {
		return nil, err
	}
	algorithm, err := r.string("algorithm")
	if err != nil {
		return nil, err
	}
	isImprovement, err := r.bool("is_improvement")
	if err != nil {
		return nil, err
	}
	isCached, err := r.bool("is_cached")
	if err != nil {
		return nil, err
	}
	isStale, err := r.bool("is_stale")
	if err != nil {
		return nil, err
	}
	routePlanJSON, err := r.string("route_plan_json")
	if err != nil {
		return nil, err
	}

	var routePlan []map[string]interface{}
	if routePlanJSON != "" {
		if err := json.Unmarshal([]byte(routePlanJSON), &routePlan); err != nil {
			return nil, r.fail("route_plan_json", "invalid JSON: "+err.Error())
		}
	}

	return &Quote{
		TopicID:        topicID,
		TimestampMs:    timestampMs,
		Sequence:       sequence,
		InputMint:      inputMint,
		OutputMint:     outputMint,
		InAmount:       inAmount,
		OutAmount:      outAmount,
		PriceImpactBps: priceImpactBps,
		Slot:           slot,
		Algorithm:      algorithm,
		IsImprovement:  isImprovement,
		IsCached:       isCached,
		IsStale:        isStale,
		RoutePlan:      routePlan,
	}, nil
}
