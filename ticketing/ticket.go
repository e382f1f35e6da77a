package ticketing

import (
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/interfaces"
	"github.com/ruteri/splitkey-pep/signing"
)

// Access modes.
const (
	ModeRead      = "read"
	ModeReadMeta  = "read-meta"
	ModeWrite     = "write"
	ModeWriteMeta = "write-meta"
)

// OpenLeeway is the signature leeway when tickets are used. It is longer than
// the request leeway so that long transfers can keep using their ticket.
const OpenLeeway = 24 * time.Hour

// LocalPseudonyms are the pseudonyms of one participant. The values are
// opaque encoded curve points.
type LocalPseudonyms struct {
	AccessManager   []byte `json:"accessManager,omitempty"`
	StorageFacility []byte `json:"storageFacility,omitempty"`
	Polymorphic     []byte `json:"polymorphic"`
	AccessGroup     []byte `json:"accessGroup,omitempty"`
}

// Ticket2 grants a user group access to columns of a set of participants.
type Ticket2 struct {
	// Timestamp and ExpiresAt are in milliseconds since the Unix epoch.
	Timestamp  int64             `json:"timestamp"`
	ExpiresAt  int64             `json:"expiresAt"`
	Modes      []string          `json:"modes"`
	Pseudonyms []LocalPseudonyms `json:"pseudonyms"`
	Columns    []string          `json:"columns"`
	UserGroup  string            `json:"userGroup"`
}

// HasMode reports whether the ticket grants mode. Read access implies
// read-meta and write-meta access implies write.
func (t Ticket2) HasMode(mode string) bool {
	if slices.Contains(t.Modes, mode) {
		return true
	}
	switch mode {
	case ModeReadMeta:
		return t.HasMode(ModeRead)
	case ModeWrite:
		return t.HasMode(ModeWriteMeta)
	}
	return false
}

// HasColumn reports whether the ticket covers column.
func (t Ticket2) HasColumn(column string) bool {
	return slices.Contains(t.Columns, column)
}

// Expired reports whether the ticket is no longer valid at now.
func (t Ticket2) Expired(now time.Time) bool {
	return t.ExpiresAt != 0 && now.UnixMilli() >= t.ExpiresAt
}

// SignedTicket2 is a ticket signed by the access manager and countersigned by
// the transcryptor.
type SignedTicket2 struct {
	Data                  []byte             `json:"data"`
	Signature             *signing.Signature `json:"signature,omitempty"`
	TranscryptorSignature *signing.Signature `json:"transcryptorSignature,omitempty"`
}

// Sign serializes and signs ticket as the access manager.
func Sign(ticket Ticket2, identity *cryptoutils.Identity) (SignedTicket2, error) {
	data, err := json.Marshal(ticket)
	if err != nil {
		return SignedTicket2{}, err
	}
	sig, err := signing.Make(data, identity, false)
	if err != nil {
		return SignedTicket2{}, err
	}
	return SignedTicket2{Data: data, Signature: &sig}, nil
}

// validateServerSignature checks that sig was made by the given server's
// signing certificate.
func validateServerSignature(sig *signing.Signature, data []byte, server interfaces.ServerTraits, roots *x509.CertPool, leeway time.Duration, now func() time.Time) error {
	signatory, err := sig.Validate(data, signing.ValidateOptions{
		Roots:              roots,
		ExpectedCommonName: server.CertificateSubject(),
		Leeway:             leeway,
		Now:                now,
	})
	if err != nil {
		return err
	}
	if signatory.EnrolledParty() != server.EnrollsAs {
		return fmt.Errorf("%w: %s is not a %s certificate", interfaces.ErrAuthentication, signatory.CommonName(), server.Description)
	}
	return nil
}

// Countersign validates the access manager signature and adds the
// transcryptor's own.
func (s *SignedTicket2) Countersign(roots *x509.CertPool, identity *cryptoutils.Identity) error {
	if s.Signature == nil {
		return fmt.Errorf("%w: access manager signature is missing", interfaces.ErrTicketDenied)
	}
	if s.TranscryptorSignature != nil {
		return fmt.Errorf("%w: ticket is already countersigned", interfaces.ErrTicketDenied)
	}
	if err := validateServerSignature(s.Signature, s.Data, interfaces.AccessManagerTraits, roots, RequestLeeway, nil); err != nil {
		return err
	}
	sig, err := signing.Make(s.Data, identity, false)
	if err != nil {
		return err
	}
	s.TranscryptorSignature = &sig
	return nil
}

// OpenOptions select what Open checks beyond the signatures.
type OpenOptions struct {
	Roots     *x509.CertPool
	UserGroup string
	// Mode is checked when set.
	Mode string
	Now  func() time.Time
}

// Open validates both signatures and returns the ticket if it was issued to
// the user group and grants the mode. Signature timestamp failures and expired
// tickets are interfaces.ErrTicketExpired.
func (s SignedTicket2) Open(opts OpenOptions) (Ticket2, error) {
	if s.Signature == nil {
		return Ticket2{}, fmt.Errorf("%w: access manager signature is missing", interfaces.ErrTicketDenied)
	}
	if s.TranscryptorSignature == nil {
		return Ticket2{}, fmt.Errorf("%w: transcryptor signature is missing", interfaces.ErrTicketDenied)
	}

	for _, check := range []struct {
		sig    *signing.Signature
		server interfaces.ServerTraits
	}{
		{s.Signature, interfaces.AccessManagerTraits},
		{s.TranscryptorSignature, interfaces.TranscryptorTraits},
	} {
		if err := validateServerSignature(check.sig, s.Data, check.server, opts.Roots, OpenLeeway, opts.Now); err != nil {
			if errors.Is(err, signing.ErrValidityPeriod) {
				return Ticket2{}, fmt.Errorf("%w: %v", interfaces.ErrTicketExpired, err)
			}
			return Ticket2{}, err
		}
	}

	ticket, err := s.OpenWithoutValidation()
	if err != nil {
		return Ticket2{}, err
	}

	now := time.Now()
	if opts.Now != nil {
		now = opts.Now()
	}
	if ticket.Expired(now) {
		return Ticket2{}, interfaces.ErrTicketExpired
	}
	if ticket.UserGroup != opts.UserGroup {
		return Ticket2{}, fmt.Errorf("%w: ticket issued for a different user group", interfaces.ErrTicketDenied)
	}
	if opts.Mode != "" && !ticket.HasMode(opts.Mode) {
		return Ticket2{}, fmt.Errorf("%w: ticket does not grant %s access", interfaces.ErrTicketDenied, opts.Mode)
	}
	return ticket, nil
}

// OpenForLogging validates the access manager signature of a ticket that has
// not been countersigned yet.
func (s SignedTicket2) OpenForLogging(roots *x509.CertPool) (Ticket2, error) {
	if s.Signature == nil {
		return Ticket2{}, fmt.Errorf("%w: access manager signature is missing", interfaces.ErrTicketDenied)
	}
	if s.TranscryptorSignature != nil {
		return Ticket2{}, fmt.Errorf("%w: transcryptor signature should not be set", interfaces.ErrTicketDenied)
	}
	if err := validateServerSignature(s.Signature, s.Data, interfaces.AccessManagerTraits, roots, OpenLeeway, nil); err != nil {
		return Ticket2{}, err
	}
	return s.OpenWithoutValidation()
}

// OpenWithoutValidation parses the ticket without checking signatures.
func (s SignedTicket2) OpenWithoutValidation() (Ticket2, error) {
	var ticket Ticket2
	if err := json.Unmarshal(s.Data, &ticket); err != nil {
		return Ticket2{}, fmt.Errorf("could not deserialize ticket: %w", err)
	}
	return ticket, nil
}
