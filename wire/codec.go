// File: wire/codec.go
package wire

import (
	"encoding/json"
	"strings"
)

// EncodeMessage frames a payload as one newline-terminated wire line.
func EncodeMessage(msgType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	line, err := json.Marshal(Message{Tag: envelopeTag, Type: msgType, Data: raw})
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}

// DecodeLine classifies one inbound line. Blank lines report ok=false.
// Anything that is not a well-formed envelope comes back as a PRINT
// carrying the raw text.
func DecodeLine(line []byte) (Message, bool) {
	text := strings.TrimSpace(string(line))
	if text == "" {
		return Message{}, false
	}
	var m Message
	if err := json.Unmarshal([]byte(text), &m); err == nil && m.Tag == envelopeTag && validType(m.Type) {
		return m, true
	}
	return NewPrint(text), true
}
