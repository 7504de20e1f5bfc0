package engine

import (
	"fmt"
	"strconv"
	"strings"
)

func NewSession(expected int, rules Rules) (*Session, error) {
	if expected <= 0 {
		return nil, ErrInvalidPlayerCount
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &Session{
		ExpectedPlayerCount: expected,
		Rules:               rules,
		Phase:               PhaseWaiting,
	}, nil
}

func (r Rules) Validate() error {
	if r.TimeToWin <= 0 {
		return ErrInvalidTimeToWin
	}
	if r.InvincibleDuration < 0 {
		return ErrInvalidInvincibility
	}
	return nil
}

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// UnmarshalText parses "x,y,z".
func (v *Vec3) UnmarshalText(b []byte) error {
	parts := strings.Split(strings.TrimSpace(string(b)), ",")
	if len(parts) != 3 {
		return fmt.Errorf("vec3 %q: want x,y,z", string(b))
	}
	var out [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return fmt.Errorf("vec3 %q: %w", string(b), err)
		}
		out[i] = f
	}
	*v = Vec3{X: out[0], Y: out[1], Z: out[2]}
	return nil
}

func (v Vec3) String() string {
	return fmt.Sprintf("%g,%g,%g", v.X, v.Y, v.Z)
}
