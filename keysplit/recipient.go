package keysplit

import (
	"bytes"
	"fmt"

	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/interfaces"
)

// RecipientBase addresses the target of a key factor. Type is the recipient's
// EnrolledParty and Payload identifies it within that type.
type RecipientBase struct {
	Type    interfaces.EnrolledParty `json:"type"`
	Payload []byte                   `json:"payload"`
}

func newRecipientBase(recipientType interfaces.EnrolledParty, payload []byte) (RecipientBase, error) {
	if recipientType == interfaces.PartyNone {
		return RecipientBase{}, fmt.Errorf("%w: zero recipient type", interfaces.ErrInvalidRecipient)
	}
	if len(payload) == 0 {
		return RecipientBase{}, fmt.Errorf("%w: empty recipient payload", interfaces.ErrInvalidRecipient)
	}
	return RecipientBase{Type: recipientType, Payload: payload}, nil
}

// Equal compares type and payload.
func (r RecipientBase) Equal(other RecipientBase) bool {
	return r.Type == other.Type && bytes.Equal(r.Payload, other.Payload)
}

// ReshuffleRecipient addresses a pseudonym space.
type ReshuffleRecipient struct {
	RecipientBase
}

// NewReshuffleRecipient validates and builds a reshuffle recipient.
func NewReshuffleRecipient(recipientType interfaces.EnrolledParty, payload []byte) (ReshuffleRecipient, error) {
	base, err := newRecipientBase(recipientType, payload)
	return ReshuffleRecipient{base}, err
}

// RekeyRecipient addresses an encryption key.
type RekeyRecipient struct {
	RecipientBase
}

// NewRekeyRecipient validates and builds a rekey recipient.
func NewRekeyRecipient(recipientType interfaces.EnrolledParty, payload []byte) (RekeyRecipient, error) {
	base, err := newRecipientBase(recipientType, payload)
	return RekeyRecipient{base}, err
}

// SkRecipient addresses a principal that needs both a pseudonym space and an
// encryption key. Both halves always carry the same type.
type SkRecipient struct {
	Reshuffle ReshuffleRecipient `json:"reshuffle"`
	Rekey     RekeyRecipient     `json:"rekey"`
}

// NewSkRecipient fails if the halves disagree on type.
func NewSkRecipient(reshuffle ReshuffleRecipient, rekey RekeyRecipient) (SkRecipient, error) {
	if reshuffle.Type != rekey.Type {
		return SkRecipient{}, fmt.Errorf("%w: reshuffle type %s differs from rekey type %s", interfaces.ErrInvalidRecipient, reshuffle.Type, rekey.Type)
	}
	return SkRecipient{Reshuffle: reshuffle, Rekey: rekey}, nil
}

// Type of both halves.
func (r SkRecipient) Type() interfaces.EnrolledParty {
	return r.Rekey.Type
}

func enrolledParty(chain cryptoutils.CertificateChain) (interfaces.EnrolledParty, error) {
	party := cryptoutils.GetEnrolledParty(chain)
	if party == interfaces.PartyNone {
		return party, fmt.Errorf("%w: enrolled party is unknown", interfaces.ErrInvalidRecipient)
	}
	return party, nil
}

// reshufflePayload is the user group for users; pseudonymization is per group.
func reshufflePayload(chain cryptoutils.CertificateChain) ([]byte, error) {
	ou := chain.OrganizationalUnit()
	if ou == "" {
		return nil, fmt.Errorf("%w: missing organizational unit in the certificate", interfaces.ErrInvalidRecipient)
	}
	return []byte(ou), nil
}

// rekeyPayload is the certificate for users; rekeying is per user.
func rekeyPayload(chain cryptoutils.CertificateChain, party interfaces.EnrolledParty) ([]byte, error) {
	if party == interfaces.PartyUser {
		return chain.Leaf().Raw, nil
	}
	return reshufflePayload(chain)
}

func serverSubject(server interfaces.EnrolledParty) ([]byte, error) {
	subject, err := interfaces.ServerCertificateSubject(server)
	if err != nil {
		return nil, err
	}
	return []byte(subject), nil
}

// PseudonymRecipientForCertificate addresses the pseudonym space of the
// certificate holder's group or server.
func PseudonymRecipientForCertificate(chain cryptoutils.CertificateChain) (ReshuffleRecipient, error) {
	party, err := enrolledParty(chain)
	if err != nil {
		return ReshuffleRecipient{}, err
	}
	payload, err := reshufflePayload(chain)
	if err != nil {
		return ReshuffleRecipient{}, err
	}
	return NewReshuffleRecipient(party, payload)
}

// PseudonymRecipientForUserGroup addresses the pseudonym space of a user group.
func PseudonymRecipientForUserGroup(userGroup string) (ReshuffleRecipient, error) {
	return NewReshuffleRecipient(interfaces.PartyUser, []byte(userGroup))
}

// PseudonymRecipientForServer addresses the pseudonym space of a server role.
func PseudonymRecipientForServer(server interfaces.EnrolledParty) (ReshuffleRecipient, error) {
	payload, err := serverSubject(server)
	if err != nil {
		return ReshuffleRecipient{}, err
	}
	return NewReshuffleRecipient(server, payload)
}

// RekeyRecipientForCertificate addresses the certificate holder's encryption key.
func RekeyRecipientForCertificate(chain cryptoutils.CertificateChain) (RekeyRecipient, error) {
	party, err := enrolledParty(chain)
	if err != nil {
		return RekeyRecipient{}, err
	}
	payload, err := rekeyPayload(chain, party)
	if err != nil {
		return RekeyRecipient{}, err
	}
	return NewRekeyRecipient(party, payload)
}

// RekeyRecipientForServer addresses the encryption key of a server role.
func RekeyRecipientForServer(server interfaces.EnrolledParty) (RekeyRecipient, error) {
	payload, err := serverSubject(server)
	if err != nil {
		return RekeyRecipient{}, err
	}
	return NewRekeyRecipient(server, payload)
}

// RecipientForCertificate addresses both key spaces of the certificate holder.
func RecipientForCertificate(chain cryptoutils.CertificateChain) (SkRecipient, error) {
	reshuffle, err := PseudonymRecipientForCertificate(chain)
	if err != nil {
		return SkRecipient{}, err
	}
	rekey, err := RekeyRecipientForCertificate(chain)
	if err != nil {
		return SkRecipient{}, err
	}
	return NewSkRecipient(reshuffle, rekey)
}

// RecipientForServer addresses both key spaces of a server role.
func RecipientForServer(server interfaces.EnrolledParty) (SkRecipient, error) {
	reshuffle, err := PseudonymRecipientForServer(server)
	if err != nil {
		return SkRecipient{}, err
	}
	rekey, err := RekeyRecipientForServer(server)
	if err != nil {
		return SkRecipient{}, err
	}
	return NewSkRecipient(reshuffle, rekey)
}
