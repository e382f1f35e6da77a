// Package httpserver runs the HTTP API of a PEP server role.
//
// Server wires the role's handlers into one chi router next to the health
// endpoints (/livez, /readyz, /drain, /undrain), optional pprof routes and a
// separate Prometheus metrics listener. Every request is logged through
// httplogger.
//
// Handlers share the error mapping in this package: authentication failures
// answer 401, denials 403, missing content 404, integrity and ordering
// failures 400, and locked system keys 503.
//
// AdminHandler serves the escrow of the system keys. Administrators decrypt
// their Shamir share offline, sign it and submit it to /admin/share until the
// threshold is reached.
package httpserver
