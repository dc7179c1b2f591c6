package storage

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Values are JSON: blocks carry free-form attestation metadata that must
// round-trip byte-for-byte into the canonical form the signature covers.
func encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return b, nil
}

func decode(b []byte, v any) error {
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}
