package signing

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha512"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/interfaces"
)

// Scheme identifies how the signed digest is computed.
type Scheme uint32

const (
	// SchemeV3 digests scheme, timestamp and data.
	SchemeV3 Scheme = 3
	// SchemeV4 additionally binds the log copy flag.
	SchemeV4 Scheme = 4

	CurrentScheme = SchemeV4
)

var (
	// ErrValidityPeriod is returned when a signature timestamp is outside the
	// accepted leeway. It wraps interfaces.ErrAuthentication.
	ErrValidityPeriod = fmt.Errorf("%w: signature timestamp outside validity period", interfaces.ErrAuthentication)

	errUnsupportedScheme = errors.New("unsupported signature scheme")
)

// Signature is a proof of authorship over a byte string.
type Signature struct {
	Signature        []byte   `json:"signature"`
	CertificateChain [][]byte `json:"certificateChain"`
	Scheme           Scheme   `json:"scheme"`
	// Timestamp is in milliseconds since the Unix epoch.
	Timestamp uint64 `json:"timestamp"`
	IsLogCopy bool   `json:"isLogCopy"`
}

// Make signs data with identity at the current time.
func Make(data []byte, identity *cryptoutils.Identity, isLogCopy bool) (Signature, error) {
	return MakeAt(data, identity, isLogCopy, time.Now())
}

// MakeAt signs data with identity, recording at as the signing time.
func MakeAt(data []byte, identity *cryptoutils.Identity, isLogCopy bool, at time.Time) (Signature, error) {
	if identity == nil || identity.Key == nil || len(identity.Chain) == 0 {
		return Signature{}, errors.New("signing identity is incomplete")
	}

	sig := Signature{
		CertificateChain: identity.Chain.DER(),
		Scheme:           CurrentScheme,
		Timestamp:        uint64(at.UnixMilli()),
		IsLogCopy:        isLogCopy,
	}

	digest, err := sig.digest(data)
	if err != nil {
		return Signature{}, err
	}

	sig.Signature, err = ecdsa.SignASN1(rand.Reader, identity.Key, digest)
	if err != nil {
		return Signature{}, fmt.Errorf("could not sign: %w", err)
	}
	return sig, nil
}

// Time returns the signing time.
func (s Signature) Time() time.Time {
	return time.UnixMilli(int64(s.Timestamp))
}

// digest returns the first 32 bytes of the SHA-512 over the scheme prefix and data.
func (s Signature) digest(data []byte) ([]byte, error) {
	h := sha512.New()
	var prefix [13]byte
	binary.BigEndian.PutUint32(prefix[0:4], uint32(s.Scheme))
	binary.BigEndian.PutUint64(prefix[4:12], s.Timestamp)

	switch s.Scheme {
	case SchemeV3:
		h.Write(prefix[:12])
	case SchemeV4:
		if s.IsLogCopy {
			prefix[12] = 1
		}
		h.Write(prefix[:13])
	default:
		return nil, fmt.Errorf("%w: %d", errUnsupportedScheme, s.Scheme)
	}
	h.Write(data)
	return h.Sum(nil)[:32], nil
}

// ValidateOptions is the trust policy of one call site.
type ValidateOptions struct {
	Roots *x509.CertPool
	// ExpectedCommonName is checked against the leaf certificate when set.
	ExpectedCommonName string
	// Leeway bounds the distance between the signature timestamp and now.
	Leeway time.Duration
	// ExpectLogCopy requires a V4 log copy signature; otherwise log copies are rejected.
	ExpectLogCopy bool
	// Now defaults to time.Now.
	Now func() time.Time
}

func (o ValidateOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Validate checks the signature over data and returns its signatory.
// Every failure wraps interfaces.ErrAuthentication.
func (s Signature) Validate(data []byte, opts ValidateOptions) (Signatory, error) {
	if len(s.CertificateChain) == 0 {
		return Signatory{}, fmt.Errorf("%w: empty certificate chain", interfaces.ErrAuthentication)
	}
	chain, err := cryptoutils.ParseCertificateChainDER(s.CertificateChain)
	if err != nil {
		return Signatory{}, fmt.Errorf("%w: %v", interfaces.ErrAuthentication, err)
	}

	now := opts.now()
	if err := chain.Verify(opts.Roots, now); err != nil {
		return Signatory{}, fmt.Errorf("%w: certificate chain not trusted: %v", interfaces.ErrAuthentication, err)
	}

	leaf := chain.Leaf()
	if !cryptoutils.IsSigningCertificate(leaf) {
		return Signatory{}, fmt.Errorf("%w: not a signing certificate", interfaces.ErrAuthentication)
	}

	if opts.ExpectedCommonName != "" && leaf.Subject.CommonName != opts.ExpectedCommonName {
		return Signatory{}, fmt.Errorf("%w: expected signer %q, got %q", interfaces.ErrAuthentication, opts.ExpectedCommonName, leaf.Subject.CommonName)
	}

	signedAt := s.Time()
	if signedAt.Before(now.Add(-opts.Leeway)) || signedAt.After(now.Add(opts.Leeway)) {
		return Signatory{}, ErrValidityPeriod
	}

	if opts.ExpectLogCopy && s.Scheme != SchemeV4 {
		return Signatory{}, fmt.Errorf("%w: log copy requires scheme %d", interfaces.ErrAuthentication, SchemeV4)
	}
	if s.IsLogCopy != opts.ExpectLogCopy {
		return Signatory{}, fmt.Errorf("%w: unexpected log copy flag %t", interfaces.ErrAuthentication, s.IsLogCopy)
	}

	digest, err := s.digest(data)
	if err != nil {
		return Signatory{}, fmt.Errorf("%w: %v", interfaces.ErrAuthentication, err)
	}
	publicKey, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return Signatory{}, fmt.Errorf("%w: unsupported key type %T", interfaces.ErrAuthentication, leaf.PublicKey)
	}
	if !ecdsa.VerifyASN1(publicKey, digest, s.Signature) {
		return Signatory{}, fmt.Errorf("%w: invalid signature", interfaces.ErrAuthentication)
	}

	return Signatory{Chain: chain}, nil
}

// AssertValid is Validate for callers that do not need the signatory.
func (s Signature) AssertValid(data []byte, opts ValidateOptions) error {
	_, err := s.Validate(data, opts)
	return err
}

// Signatory is the validated signer of a message.
type Signatory struct {
	Chain cryptoutils.CertificateChain
}

// Leaf returns the signer's certificate.
func (s Signatory) Leaf() *x509.Certificate {
	return s.Chain.Leaf()
}

func (s Signatory) CommonName() string {
	return s.Chain.CommonName()
}

func (s Signatory) OrganizationalUnit() string {
	return s.Chain.OrganizationalUnit()
}

// EnrolledParty infers the signer's role.
func (s Signatory) EnrolledParty() interfaces.EnrolledParty {
	return cryptoutils.GetEnrolledParty(s.Chain)
}
