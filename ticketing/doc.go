// Package ticketing implements tickets: signed, time-bounded grants of access
// modes on columns of a set of participants.
//
// A user signs a TicketRequest2 twice, normally and as a log copy. The access
// manager validates both signatures, checks the request against its static
// AccessPolicy and signs a Ticket2. The transcryptor receives the log copy of
// the request with the ticket and countersigns it. Storage servers accept a
// ticket only if both signatures validate, it has not expired, and it was
// issued to the caller's user group for the requested mode.
package ticketing
