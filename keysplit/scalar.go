package keysplit

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwesterb/go-ristretto"
)

// ScalarSize is the width of an encoded scalar.
const ScalarSize = 32

// Scalar is an element of the ristretto255 scalar field. Encodings are
// fixed-width big-endian.
type Scalar struct {
	s ristretto.Scalar
}

// ScalarFromUniformBytes reduces 64 uniformly random bytes to a scalar.
func ScalarFromUniformBytes(wide *[64]byte) Scalar {
	var out Scalar
	out.s.SetReduced(wide)
	return out
}

// ErrNonCanonicalScalar is returned for encodings of values not below the
// group order.
var ErrNonCanonicalScalar = errors.New("non-canonical scalar encoding")

// ScalarFromBytes decodes a 32-byte big-endian scalar. The value must be
// below the group order.
func ScalarFromBytes(b []byte) (Scalar, error) {
	if len(b) != ScalarSize {
		return Scalar{}, fmt.Errorf("scalar must be %d bytes, got %d", ScalarSize, len(b))
	}
	var le [ScalarSize]byte
	for i := range b {
		le[ScalarSize-1-i] = b[i]
	}
	var out Scalar
	out.s.SetBytes(&le)
	var reencoded [ScalarSize]byte
	out.s.BytesInto(&reencoded)
	if reencoded != le {
		return Scalar{}, ErrNonCanonicalScalar
	}
	return out, nil
}

// RandomScalar returns a uniformly random scalar.
func RandomScalar() Scalar {
	var out Scalar
	out.s.Rand()
	return out
}

// OneScalar returns the multiplicative identity.
func OneScalar() Scalar {
	var out Scalar
	out.s.SetOne()
	return out
}

// Bytes returns the 32-byte big-endian encoding.
func (x Scalar) Bytes() []byte {
	var le [ScalarSize]byte
	x.s.BytesInto(&le)
	be := make([]byte, ScalarSize)
	for i := range le {
		be[ScalarSize-1-i] = le[i]
	}
	return be
}

// Mul returns x·y.
func (x Scalar) Mul(y Scalar) Scalar {
	var out Scalar
	out.s.Mul(&x.s, &y.s)
	return out
}

// Add returns x+y.
func (x Scalar) Add(y Scalar) Scalar {
	var out Scalar
	out.s.Add(&x.s, &y.s)
	return out
}

// IsZero runs in constant time.
func (x Scalar) IsZero() bool {
	return x.s.IsNonZeroI() == 0
}

// Equal compares two scalars.
func (x Scalar) Equal(y Scalar) bool {
	return x.s.Equals(&y.s)
}

// MarshalText encodes the scalar as hex.
func (x Scalar) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(x.Bytes())), nil
}

// UnmarshalText decodes a hex scalar.
func (x *Scalar) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("invalid scalar encoding: %w", err)
	}
	decoded, err := ScalarFromBytes(raw)
	if err != nil {
		return err
	}
	*x = decoded
	return nil
}

// LogValue keeps scalars out of logs; they are key material.
func (x Scalar) LogValue() slog.Value {
	return slog.StringValue("REDACTED")
}

var errEmptyComponents = errors.New("no key components to combine")

// CombineKeyComponents multiplies the components contributed by every
// authority into the effective key of the recipient.
func CombineKeyComponents(components ...Scalar) (Scalar, error) {
	if len(components) == 0 {
		return Scalar{}, errEmptyComponents
	}
	combined := components[0]
	for _, component := range components[1:] {
		combined = combined.Mul(component)
	}
	return combined, nil
}
