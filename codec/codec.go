// Package codec turns inbound text frames into relay messages and back.
//
// Decoding never fails: a frame that is not a JSON document is wrapped in the
// raw envelope {"type":"raw","payload":"<frame>"} so malformed client input
// degrades instead of dropping the connection.
package codec

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"
	"whiteboard-relay/domain"
)

// RawType is the envelope type of frames that could not be parsed.
const RawType = "raw"

// Decode parses frame as a JSON document. Any valid JSON value is accepted and
// passed through with its fields untouched; whitespace between tokens is
// dropped. Everything else, including frames that are not valid UTF-8,
// becomes a raw envelope carrying the original text.
func Decode(frame []byte) domain.Message {
	if utf8.Valid(frame) && json.Valid(frame) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, frame); err == nil {
			return domain.Message{Body: buf.Bytes()}
		}
	}
	return wrapRaw(frame)
}

// Encode returns the outbound frame for msg. The same slice is handed to every
// recipient of a broadcast, so callers must not modify it.
func Encode(msg domain.Message) []byte {
	return msg.Body
}

func wrapRaw(frame []byte) domain.Message {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// Keep <, > and & readable for clients that display the payload.
	enc.SetEscapeHTML(false)
	// Invalid byte runs become U+FFFD.
	payload := strings.ToValidUTF8(string(frame), "�")
	if err := enc.Encode(domain.RawEnvelope{Type: RawType, Payload: payload}); err != nil {
		// A struct of two strings always encodes.
		panic(err)
	}
	return domain.Message{
		Body: bytes.TrimRight(buf.Bytes(), "\n"),
		Raw:  true,
	}
}
