package exam

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedPayload is returned when a payload has no usable questions array.
var ErrMalformedPayload = errors.New("malformed payload")

// Payload is the JSON document a test is loaded from.
type Payload struct {
	Config    *Config    `json:"config,omitempty"`
	Questions []Question `json:"questions" validate:"min=1,dive"`
}

// DecodePayload parses a payload. It fails when questions is missing or is not
// an array; config and field-level rules are checked by the caller.
func DecodePayload(data []byte) (*Payload, error) {
	var head struct {
		Questions json.RawMessage `json:"questions"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	raw := bytes.TrimSpace(head.Questions)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, fmt.Errorf("%w: questions must be an array", ErrMalformedPayload)
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &p, nil
}

// EffectiveConfig returns the payload config, or the default derived from the
// question count when the payload has none.
func (p *Payload) EffectiveConfig() Config {
	if p.Config != nil {
		return *p.Config
	}
	return DefaultConfig(len(p.Questions))
}
