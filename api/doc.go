// Package api holds what the HTTP clients of the PEP servers share: the
// JSONClient with retrying transport and the mapping of error responses back
// to the domain sentinels.
//
// The handlers and their clients live in the subpackages:
//   - keycomponenthandler: key components for enrolled parties (all authorities)
//   - enrollhandler: user enrollment with OAuth tokens (key server)
//   - blocklisthandler: administration of the token blocklist (key server)
//   - tickethandler: ticket issuance (access manager) and countersigning (transcryptor)
//   - pagehandler: page upload and download (storage facility)
package api
