// Package blocklisthandler exposes the key server's token blocklist to
// access administrators. All requests are signed; listing and removal require
// the "Access Administrator" user group, while entries may also be created by
// the access manager.
package blocklisthandler
