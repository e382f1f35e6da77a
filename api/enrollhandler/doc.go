// Package enrollhandler implements the key server's user enrollment.
//
// A user presents a CSR whose subject is their name (CN) and user group (OU)
// together with an OAuth token issued for that subject. The key server checks
// the token's MAC, subject, group and validity period, rejects tokens matched
// by the blocklist, and signs the CSR with the client CA. The resulting
// certificate is the user's signing identity for all other requests.
package enrollhandler
