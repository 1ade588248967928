package rosweb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// BatteryTopic is where the robot publishes its battery state.
const BatteryTopic = "/battery_state"

// BatteryState is the subset of the battery message a dashboard needs.
type BatteryState struct {
	EnergyRemaining float64
	EnergyCapacity  float64
}

// Percent returns the remaining energy as a percentage of capacity.
func (b BatteryState) Percent() float64 {
	return b.EnergyRemaining / b.EnergyCapacity * 100.0
}

// looseFloat accepts both JSON numbers and numeric strings.
type looseFloat float64

func (f *looseFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = looseFloat(v)
	return nil
}

// ParseBatteryState decodes a battery message payload.
func ParseBatteryState(payload string) (BatteryState, error) {
	var raw struct {
		EnergyRemaining *looseFloat `json:"energy_remaining"`
		EnergyCapacity  *looseFloat `json:"energy_capacity"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return BatteryState{}, fmt.Errorf("%w: %v", ErrInvalidBatteryState, err)
	}
	if raw.EnergyRemaining == nil || raw.EnergyCapacity == nil {
		return BatteryState{}, fmt.Errorf("%w: missing energy fields", ErrInvalidBatteryState)
	}
	if *raw.EnergyCapacity <= 0 {
		return BatteryState{}, fmt.Errorf("%w: capacity %v", ErrInvalidBatteryState, float64(*raw.EnergyCapacity))
	}

	return BatteryState{
		EnergyRemaining: float64(*raw.EnergyRemaining),
		EnergyCapacity:  float64(*raw.EnergyCapacity),
	}, nil
}

// BatteryHandler adapts fn into a Handler for the battery topic. Failed
// polls and undecodable payloads are passed to onError when it is non-nil.
func BatteryHandler(fn func(BatteryState), onError func(error)) Handler {
	return func(_ context.Context, msg Message) {
		if !msg.OK() {
			if onError != nil {
				onError(msg.Err)
			}
			return
		}

		state, err := ParseBatteryState(msg.Payload)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		fn(state)
	}
}
