// File: wire/message.go
package wire

import (
	"encoding/json"
	"math/rand"
	"strings"
)

// Message types that may appear on a player stream.
const (
	TypeResult = "RESULT"
	TypePrint  = "PRINT"
	TypeEnd    = "END"
	TypeNewKey = "NEW_KEY"
)

const envelopeTag = "message"

// Message is one framed line: a tagged JSON envelope carrying a type and an
// opaque payload. Player code shares the stream with the protocol, so
// anything that does not parse as an envelope is reclassified as a PRINT of
// the raw line.
type Message struct {
	Tag  string          `json:"__custom_type"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewPrint wraps raw line text in a PRINT message.
func NewPrint(text string) Message {
	data, _ := json.Marshal(text)
	return Message{Tag: envelopeTag, Type: TypePrint, Data: data}
}

// Text renders the payload for the print buffer. String payloads are
// unquoted, anything else keeps its JSON form.
func (m Message) Text() string {
	var s string
	if err := json.Unmarshal(m.Data, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(m.Data))
}

// Key reads a NEW_KEY payload.
func (m Message) Key() (int64, error) {
	var k int64
	err := json.Unmarshal(m.Data, &k)
	return k, err
}

// NewHandshakeKey draws the random signed 64-bit key announced in a
// NEW_KEY message.
func NewHandshakeKey() int64 {
	return int64(rand.Uint64())
}

func validType(t string) bool {
	switch t {
	case TypeResult, TypePrint, TypeEnd, TypeNewKey:
		return true
	}
	return false
}
