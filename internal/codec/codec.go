// Package codec encodes job payloads, job answers and analyzer decisions as msgpack.
package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var ErrTaskFailed = errors.New("task failed")

// Ack is the answer written to control jobs once the panel has handled them.
var Ack = mustMarshal(true)

func mustMarshal(v any) []byte {
	b, err := msgpack.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Unmarshal decodes with integers widened to int64 and floats to float64 when
// the target is an interface.
func Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	return dec.Decode(v)
}

// DecodeMap decodes a msgpack map. Empty input yields an empty map.
func DecodeMap(data []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(data) == 0 {
		return out, nil
	}
	var v any
	if err := Unmarshal(data, &v); err != nil {
		return out, err
	}
	if v == nil {
		return out, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return out, fmt.Errorf("expected map, got %T", v)
	}
	return m, nil
}

// Envelope wraps every answer a worker writes so a failed task still
// produces a non-null answer.
type Envelope struct {
	OK    bool               `msgpack:"ok"`
	Error string             `msgpack:"error,omitempty"`
	Data  msgpack.RawMessage `msgpack:"data,omitempty"`
}

func Success(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal answer data: %w", err)
	}
	return msgpack.Marshal(Envelope{OK: true, Data: data})
}

func Failure(cause error) []byte {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return mustMarshal(Envelope{OK: false, Error: msg})
}

func OpenEnvelope(answer []byte) (Envelope, error) {
	var e Envelope
	if err := msgpack.Unmarshal(answer, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return e, nil
}

// Decode unpacks the payload, returning ErrTaskFailed for failed envelopes.
func (e Envelope) Decode(v any) error {
	if !e.OK {
		return fmt.Errorf("%w: %s", ErrTaskFailed, e.Error)
	}
	if len(e.Data) == 0 {
		return nil
	}
	return Unmarshal(e.Data, v)
}
