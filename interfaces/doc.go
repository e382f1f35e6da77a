// Package interfaces defines the shared contracts and value types of the
// split-key pseudonymization services, separating interface definitions from
// implementations.
//
// # Parties
//
// EnrolledParty is the closed set of roles a certificate can be recognized as
// (User, StorageFacility, AccessManager, Transcryptor, RegistrationServer).
// ServerTraits describes every server of the constellation, including servers
// such as the Key Server that never enroll. HasDataAccess decides whether a
// party may receive data key components.
//
// # Token blocking
//
// Blocklist stores administrative block rules. A BlocklistEntry blocks every
// token whose TokenIdentifier is superseded by the entry's target: same
// subject and user group, issued at or before the target's issue time.
//
// # Storage
//
// StorageBackend provides content-addressed storage of serialized encrypted
// pages and entry manifests (file, S3, Vault). StorageBackendFactory creates
// backends from location URIs.
//
// # Errors
//
// Sentinel errors are wrapped with fmt.Errorf("...: %w", err) throughout the
// module and tested with errors.Is:
//
//   - ErrAuthentication, ErrEnrollmentDenied: signature and enrollment failures
//   - ErrInvalidSecret, ErrInvalidRecipient: construction failures of key material
//   - ErrPageIntegrity, ErrFileOutOfOrder, ErrPageOutOfOrder: page stream failures
//   - ErrTicketDenied, ErrTicketExpired: ticket issuance and use
//   - ErrInvalidToken, ErrTokenBlocked: enrollment tokens
//   - ErrContentNotFound, ErrBackendUnavailable, ErrInvalidLocationURI: storage
package interfaces
