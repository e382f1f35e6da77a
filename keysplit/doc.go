// Package keysplit holds the data model of split keys: scalars, per
// authority secrets, recipients and the secret bundles of the pseudonym and
// data domains.
//
// A recipient addresses who a key factor is derived for. Reshuffle recipients
// address a pseudonym space (the user group for users), rekey recipients
// address an encryption key (the certificate for users). Servers are
// addressed by their certificate subject. SkRecipient composes both halves
// and requires them to carry the same type.
//
// Secrets never appear in logs: they implement slog.LogValuer and
// fmt.Stringer with redacted output.
package keysplit
