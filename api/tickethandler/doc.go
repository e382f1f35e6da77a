// Package tickethandler serves ticket issuance. The access manager validates
// and authorizes a user's signed request, signs the ticket and has the
// transcryptor countersign it before returning it to the user.
package tickethandler
