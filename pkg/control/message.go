// Package control exposes the engine parameters to remote controllers over
// REST and WebSocket, and streams a JPEG preview of the rendered output.
package control

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-timewarp/pkg/timewarp"
)

// Control addresses. Parameter addresses are "/" + parameter name.
const (
	AddressPreset    = "/preset"
	AddressRandomize = "/randomize"
	AddressRealtime  = "/realtime"
	AddressStatus    = "/status"
	AddressPing      = "/ping"
	AddressPong      = "/pong"
	AddressError     = "/error"
)

// Message is the WebSocket envelope in both directions.
//
// Parameter messages carry a normalized value in [0,1]:
//
//	{"address":"/delay","value":0.42}
//
// Presets are selected by name:
//
//	{"address":"/preset","preset":"rewind"}
type Message struct {
	Address   string           `json:"address"`
	Value     *float64         `json:"value,omitempty"`
	Preset    string           `json:"preset,omitempty"`
	Error     string           `json:"error,omitempty"`
	Status    *timewarp.Status `json:"status,omitempty"`
	Timestamp int64            `json:"ts,omitempty"` // Unix milliseconds
}

// ParseMessage decodes an inbound message.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Address == "" {
		return nil, fmt.Errorf("message has no address")
	}
	return &msg, nil
}

// Bytes returns the JSON-encoded message.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// Param returns the parameter a message addresses, if any.
func (m *Message) Param() (string, bool) {
	return ParamForAddress(m.Address)
}

// NewValueMessage builds the echo for a parameter.
func NewValueMessage(param string, normalized float64) *Message {
	return &Message{
		Address:   AddressForParam(param),
		Value:     &normalized,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewErrorMessage builds an error reply.
func NewErrorMessage(err error) *Message {
	return &Message{
		Address:   AddressError,
		Error:     err.Error(),
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewStatusMessage wraps an engine status.
func NewStatusMessage(st timewarp.Status) *Message {
	return &Message{
		Address:   AddressStatus,
		Status:    &st,
		Timestamp: time.Now().UnixMilli(),
	}
}

// AddressForParam maps a parameter name to its address.
func AddressForParam(param string) string {
	return "/" + param
}

// ParamForAddress maps an address to a known parameter name.
func ParamForAddress(address string) (string, bool) {
	name := strings.TrimPrefix(address, "/")
	for _, p := range timewarp.ParamNames() {
		if p == name {
			return p, true
		}
	}
	return "", false
}
