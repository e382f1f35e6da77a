// Package oauth implements the enrollment tokens handed to users by the auth
// server: base64url(JSON claims) "." base64url(HMAC-SHA256(secret, claims)).
package oauth
