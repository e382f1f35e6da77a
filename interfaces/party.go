package interfaces

import (
	"fmt"
	"strings"
)

// EnrolledParty is a role recognized by the system. The zero value means no
// role could be inferred.
type EnrolledParty uint32

const (
	PartyNone EnrolledParty = iota
	PartyUser
	PartyStorageFacility
	PartyAccessManager
	PartyTranscryptor
	PartyRegistrationServer
)

// String returns the role name.
func (p EnrolledParty) String() string {
	switch p {
	case PartyUser:
		return "User"
	case PartyStorageFacility:
		return "StorageFacility"
	case PartyAccessManager:
		return "AccessManager"
	case PartyTranscryptor:
		return "Transcryptor"
	case PartyRegistrationServer:
		return "RegistrationServer"
	default:
		return "None"
	}
}

// Valid reports whether p names a known role.
func (p EnrolledParty) Valid() bool {
	return p >= PartyUser && p <= PartyRegistrationServer
}

// IsServer reports whether p is one of the enrollable server roles.
func (p EnrolledParty) IsServer() bool {
	return p.Valid() && p != PartyUser
}

// HasDataAccess reports whether the party may receive data key components.
// Users always may; among servers only the data handling roles do.
func HasDataAccess(p EnrolledParty) bool {
	if p == PartyUser {
		return true
	}
	return p.IsServer() && ServerTraitsFor(p).DataAccess
}

// ServerTraits describes a server in the constellation.
type ServerTraits struct {
	Abbreviation string
	Description  string
	// CustomID overrides the id derived from the description.
	CustomID string
	// EnrollsAs is PartyNone for servers that cannot enroll.
	EnrollsAs  EnrolledParty
	DataAccess bool
}

// DefaultID is the description with all whitespace removed.
func (t ServerTraits) DefaultID() string {
	return strings.Join(strings.Fields(t.Description), "")
}

// ID returns the custom id if set, the default id otherwise.
func (t ServerTraits) ID() string {
	if t.CustomID != "" {
		return t.CustomID
	}
	return t.DefaultID()
}

// CertificateSubject is the CN and OU carried by the server's signing certificate.
func (t ServerTraits) CertificateSubject() string {
	return t.ID()
}

// IsEnrollable reports whether the server can request key components.
func (t ServerTraits) IsEnrollable() bool {
	return t.EnrollsAs != PartyNone
}

// HasSigningIdentity reports whether the server signs messages with a
// certificate of its own.
func (t ServerTraits) HasSigningIdentity() bool {
	return t.IsEnrollable() || t.CustomID != ""
}

// MetricsID is the lowercase abbreviation used in metric names.
func (t ServerTraits) MetricsID() string {
	return strings.ToLower(t.Abbreviation)
}

// SigningIdentityMatches reports whether subject is one of the subjects the
// server signs with.
func (t ServerTraits) SigningIdentityMatches(subject string) bool {
	if !t.HasSigningIdentity() {
		return false
	}
	return subject == t.CertificateSubject() || subject == t.DefaultID()
}

var (
	AccessManagerTraits      = ServerTraits{Abbreviation: "AM", Description: "Access Manager", EnrollsAs: PartyAccessManager}
	AuthServerTraits         = ServerTraits{Abbreviation: "AS", Description: "Auth Server", CustomID: "Authserver"}
	KeyServerTraits          = ServerTraits{Abbreviation: "KS", Description: "Key Server"}
	RegistrationServerTraits = ServerTraits{Abbreviation: "RS", Description: "Registration Server", EnrollsAs: PartyRegistrationServer}
	StorageFacilityTraits    = ServerTraits{Abbreviation: "SF", Description: "Storage Facility", EnrollsAs: PartyStorageFacility, DataAccess: true}
	TranscryptorTraits       = ServerTraits{Abbreviation: "TS", Description: "Transcryptor", EnrollsAs: PartyTranscryptor, DataAccess: true}
)

// AllServerTraits lists every server in the constellation.
func AllServerTraits() []ServerTraits {
	return []ServerTraits{
		AccessManagerTraits,
		AuthServerTraits,
		KeyServerTraits,
		RegistrationServerTraits,
		StorageFacilityTraits,
		TranscryptorTraits,
	}
}

// ServerTraitsFor returns the traits of the server enrolling as p, or the zero
// value if p is not a server role.
func ServerTraitsFor(p EnrolledParty) ServerTraits {
	for _, traits := range AllServerTraits() {
		if traits.EnrollsAs == p && p != PartyNone {
			return traits
		}
	}
	return ServerTraits{}
}

// ServerCertificateSubject returns the certificate subject of server role p.
func ServerCertificateSubject(p EnrolledParty) (string, error) {
	if !p.IsServer() {
		return "", fmt.Errorf("%w: %s is not a server", ErrInvalidRecipient, p)
	}
	return ServerTraitsFor(p).CertificateSubject(), nil
}

// ServerTraitsForSubject finds the server whose signing identity matches subject.
func ServerTraitsForSubject(subject string) (ServerTraits, bool) {
	for _, traits := range AllServerTraits() {
		if traits.SigningIdentityMatches(subject) {
			return traits, true
		}
	}
	return ServerTraits{}, false
}

// User groups with special privileges.
const (
	UserGroupAccessAdministrator = "Access Administrator"
	UserGroupDataAdministrator   = "Data Administrator"
)
