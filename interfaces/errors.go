package interfaces

import "errors"

var (
	// ErrAuthentication is returned when a signature, certificate chain or
	// timestamp does not validate.
	ErrAuthentication = errors.New("authentication failed")

	// ErrEnrollmentDenied is returned when a validated signer is not entitled
	// to key components. The message intentionally carries no detail.
	ErrEnrollmentDenied = errors.New("enrollment denied")

	// ErrInvalidSecret is returned when a key factor secret or master private
	// key share is malformed or all-zero.
	ErrInvalidSecret = errors.New("invalid secret")

	// ErrInvalidRecipient is returned for zero-typed, empty or inconsistent recipients.
	ErrInvalidRecipient = errors.New("invalid recipient")

	// ErrPageIntegrity is returned when a data page fails authentication on decryption.
	ErrPageIntegrity = errors.New("page integrity check failed")

	// ErrFileOutOfOrder is returned when a page stream regresses to an earlier file index.
	ErrFileOutOfOrder = errors.New("file index out of order")

	// ErrPageOutOfOrder is returned when a page number skips or repeats within a file.
	ErrPageOutOfOrder = errors.New("page number out of order")

	// ErrTicketDenied is returned when a ticket request is not authorized or a
	// ticket does not grant the requested access.
	ErrTicketDenied = errors.New("ticket denied")

	// ErrTicketExpired is returned when a ticket is used outside its validity period.
	ErrTicketExpired = errors.New("ticket expired")

	// ErrInvalidToken is returned for malformed, forged or expired enrollment tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenBlocked is returned when an enrollment token matches a blocklist entry.
	ErrTokenBlocked = errors.New("token blocked")

	// ErrBlocklistEntryNotFound is returned when no blocklist entry has the requested id.
	ErrBlocklistEntryNotFound = errors.New("blocklist entry not found")

	// ErrLocked is returned while escrowed system keys have not been recovered.
	ErrLocked = errors.New("system keys are locked")

	// ErrContentNotFound is returned when no backend holds the requested content.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned for a storage backend that cannot be reached.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned for malformed or unsupported storage
	// location URIs.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)
