// Package domain contains core concepts of the relay.
// This file defines the Message exchanged between room members.
// Messages are transient: they are never stored after a broadcast.
package domain

import "encoding/json"

// Message is one decoded inbound frame.
// Body always holds a valid, compact JSON document that is sent verbatim
// to every recipient. Raw reports that the frame could not be parsed and
// Body is the fallback envelope instead of the client's own document.
type Message struct {
	Body json.RawMessage
	Raw  bool
}

// RawEnvelope is the structured form given to frames that are not valid JSON.
type RawEnvelope struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}
