package protocol

import (
	"encoding/json"
	"fmt"
)

// NewEnvelope wraps payload for routing. From is left for the relay to fill in.
func NewEnvelope(t string, route Route, reliable bool, payload any) (Envelope, error) {
	if t == "" {
		return Envelope{}, fmt.Errorf("envelope type is empty")
	}
	if payload == nil {
		return Envelope{}, fmt.Errorf("nil payload for type %q", t)
	}
	pb, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Envelope{T: t, Route: route, Reliable: reliable, P: pb}, nil
}

func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, fmt.Errorf("decode envelope: empty frame")
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if e.T == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return e, nil
}

func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.P) == 0 {
		return out, fmt.Errorf("empty payload for type %q", env.T)
	}
	err := json.Unmarshal(env.P, &out)
	return out, err
}
