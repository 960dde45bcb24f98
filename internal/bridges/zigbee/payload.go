package zigbee

import (
	"encoding/json"
	"fmt"
	"math"
)

// Strict payload access. zigbee2mqtt documents its schemas but firmware
// quirks produce surprising payloads in practice; anything that does not
// match the expected shape is rejected so a misbehaving device can never
// feed garbage into the door logic.

// parsePayload decodes a zigbee2mqtt state document. The payload must be
// a JSON object.
func parsePayload(raw []byte) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if payload == nil {
		return nil, fmt.Errorf("payload is null, want an object")
	}
	return payload, nil
}

// getBool returns the boolean at key, failing on absence or any other type.
func getBool(payload map[string]any, key string) (bool, error) {
	v, ok := payload[key]
	if !ok || v == nil {
		return false, fmt.Errorf("missing field %q", key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("field %q is %T, want bool", key, v)
	}
	return b, nil
}

// getInt returns the integer at key. JSON numbers arrive as float64;
// fractional values fail rather than being silently truncated.
func getInt(payload map[string]any, key string) (int, error) {
	v, ok := payload[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("missing field %q", key)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("field %q is %T, want number", key, v)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("field %q is %v, want integer", key, f)
	}
	return int(f), nil
}

// optionalInt returns the integer at key when present. Absence is fine;
// a present value of the wrong shape is still an error.
func optionalInt(payload map[string]any, key string) (int, bool, error) {
	if v, ok := payload[key]; !ok || v == nil {
		return 0, false, nil
	}
	n, err := getInt(payload, key)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}
