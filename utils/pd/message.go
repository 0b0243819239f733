// Package pd is the wire codec for protocol messages. Messages are
// gob-encoded; every message type carries a Reset method so buffers
// can be reused by the transport.
package pd

import (
	"bytes"
	"encoding/gob"
	"log"
)

// Message is anything that can travel between cluster members.
type Message interface {
	Reset()
}

// Marshal encodes msg for the wire.
func Marshal(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	encoder := gob.NewEncoder(&buf)
	if err := encoder.Encode(msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MustMarshal encodes msg, panicking on failure. Marshalling a
// well-formed message never fails.
func MustMarshal(msg Message) []byte {
	d, err := Marshal(msg)
	if err != nil {
		log.Panicf("marshal should never fail (%v)", err)
	}
	return d
}

// Unmarshal decodes data into msg.
func Unmarshal(msg Message, data []byte) error {
	buf := bytes.NewBuffer(data)
	decoder := gob.NewDecoder(buf)
	return decoder.Decode(msg)
}

// MustUnmarshal decodes data into msg, panicking on failure.
func MustUnmarshal(msg Message, data []byte) {
	if err := Unmarshal(msg, data); err != nil {
		log.Panicf("unmarshal should never fail (%v)", err)
	}
}
