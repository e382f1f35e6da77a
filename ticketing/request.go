package ticketing

import (
	"crypto/x509"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/interfaces"
	"github.com/ruteri/splitkey-pep/signing"
)

const (
	// RequestLeeway bounds the age of ticket requests.
	RequestLeeway = time.Hour
	// maxSignatureSkew bounds the distance between a request's two signatures.
	maxSignatureSkew = time.Minute
)

// TicketRequest2 asks the access manager for a ticket.
type TicketRequest2 struct {
	Modes                 []string `json:"modes"`
	ParticipantGroups     []string `json:"participantGroups,omitempty"`
	PolymorphicPseudonyms [][]byte `json:"polymorphicPseudonyms,omitempty"`
	ColumnGroups          []string `json:"columnGroups,omitempty"`
	Columns               []string `json:"columns,omitempty"`
}

// SignedTicketRequest2 carries a request signed twice: once for the access
// manager and once as a log copy for the transcryptor.
type SignedTicketRequest2 struct {
	Data         []byte             `json:"data"`
	Signature    *signing.Signature `json:"signature,omitempty"`
	LogSignature *signing.Signature `json:"logSignature,omitempty"`
}

// SignRequest serializes request and signs it normally and as a log copy.
func SignRequest(request TicketRequest2, identity *cryptoutils.Identity) (SignedTicketRequest2, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return SignedTicketRequest2{}, err
	}
	sig, err := signing.Make(data, identity, false)
	if err != nil {
		return SignedTicketRequest2{}, err
	}
	logSig, err := signing.Make(data, identity, true)
	if err != nil {
		return SignedTicketRequest2{}, err
	}
	return SignedTicketRequest2{Data: data, Signature: &sig, LogSignature: &logSig}, nil
}

// Certified is a request whose signatures validated.
type Certified struct {
	Signatory signing.Signatory
	Request   TicketRequest2
}

// CertifyForAccessManager validates both signatures. They must be close in
// time and come from the same organizational unit.
func (r SignedTicketRequest2) CertifyForAccessManager(roots *x509.CertPool, now func() time.Time) (Certified, error) {
	if r.Signature == nil {
		return Certified{}, fmt.Errorf("%w: missing signature", interfaces.ErrAuthentication)
	}
	if r.LogSignature == nil {
		return Certified{}, fmt.Errorf("%w: missing log signature", interfaces.ErrAuthentication)
	}

	opts := signing.ValidateOptions{Roots: roots, Leeway: RequestLeeway, Now: now}
	signatory, err := r.Signature.Validate(r.Data, opts)
	if err != nil {
		return Certified{}, err
	}
	opts.ExpectLogCopy = true
	logSignatory, err := r.LogSignature.Validate(r.Data, opts)
	if err != nil {
		return Certified{}, err
	}

	skew := r.Signature.Time().Sub(r.LogSignature.Time())
	if skew < 0 {
		skew = -skew
	}
	if skew > maxSignatureSkew {
		return Certified{}, fmt.Errorf("%w: signature timestamps too far apart", interfaces.ErrAuthentication)
	}
	if signatory.OrganizationalUnit() != logSignatory.OrganizationalUnit() {
		return Certified{}, fmt.Errorf("%w: organizational units of signatures do not match", interfaces.ErrAuthentication)
	}

	return r.certified(signatory)
}

// ForTranscryptor strips the access manager signature, leaving the log copy.
func (r SignedTicketRequest2) ForTranscryptor() SignedTicketRequest2 {
	return SignedTicketRequest2{Data: r.Data, LogSignature: r.LogSignature}
}

// CertifyForTranscryptor validates the log copy of a request that was
// forwarded without its access manager signature.
func (r SignedTicketRequest2) CertifyForTranscryptor(roots *x509.CertPool, now func() time.Time) (Certified, error) {
	if r.Signature != nil {
		return Certified{}, fmt.Errorf("%w: access manager signature should not be set", interfaces.ErrAuthentication)
	}
	if r.LogSignature == nil {
		return Certified{}, fmt.Errorf("%w: missing log signature", interfaces.ErrAuthentication)
	}
	signatory, err := r.LogSignature.Validate(r.Data, signing.ValidateOptions{
		Roots:         roots,
		Leeway:        RequestLeeway,
		ExpectLogCopy: true,
		Now:           now,
	})
	if err != nil {
		return Certified{}, err
	}
	return r.certified(signatory)
}

func (r SignedTicketRequest2) certified(signatory signing.Signatory) (Certified, error) {
	var request TicketRequest2
	if err := json.Unmarshal(r.Data, &request); err != nil {
		return Certified{}, fmt.Errorf("could not deserialize ticket request: %w", err)
	}
	return Certified{Signatory: signatory, Request: request}, nil
}
