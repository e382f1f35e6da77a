package signing

import (
	"encoding/json"
	"fmt"

	"github.com/ruteri/splitkey-pep/cryptoutils"
)

// Signed binds a serialized payload to a signature over exactly those bytes.
// The payload is only deserialized after the signature validates.
type Signed[T any] struct {
	Data      []byte    `json:"data"`
	Signature Signature `json:"signature"`
}

// Sign serializes payload and signs the resulting bytes.
func Sign[T any](payload T, identity *cryptoutils.Identity) (Signed[T], error) {
	return sign(payload, identity, false)
}

// SignLogCopy is Sign producing a log copy signature.
func SignLogCopy[T any](payload T, identity *cryptoutils.Identity) (Signed[T], error) {
	return sign(payload, identity, true)
}

func sign[T any](payload T, identity *cryptoutils.Identity, isLogCopy bool) (Signed[T], error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Signed[T]{}, fmt.Errorf("could not serialize payload: %w", err)
	}
	sig, err := Make(data, identity, isLogCopy)
	if err != nil {
		return Signed[T]{}, err
	}
	return Signed[T]{Data: data, Signature: sig}, nil
}

// Validate checks the signature over the stored bytes.
func (s Signed[T]) Validate(opts ValidateOptions) (Signatory, error) {
	return s.Signature.Validate(s.Data, opts)
}

// Open validates the signature and then deserializes the payload.
func (s Signed[T]) Open(opts ValidateOptions) (T, Signatory, error) {
	var payload T
	signatory, err := s.Validate(opts)
	if err != nil {
		return payload, Signatory{}, err
	}
	if err := json.Unmarshal(s.Data, &payload); err != nil {
		return payload, Signatory{}, fmt.Errorf("could not deserialize payload: %w", err)
	}
	return payload, signatory, nil
}

// OpenWithoutValidation deserializes the payload without checking the
// signature. Only for payloads whose authenticity does not matter.
func (s Signed[T]) OpenWithoutValidation() (T, error) {
	var payload T
	if err := json.Unmarshal(s.Data, &payload); err != nil {
		return payload, fmt.Errorf("could not deserialize payload: %w", err)
	}
	return payload, nil
}
