// Package enrollment implements the key component protocol through which an
// authenticated party obtains its keys.
//
// A party signs an empty KeyComponentRequest and sends it to every authority
// (access manager and transcryptor). Each authority validates the signature,
// infers the party from the certificate chain, and answers with its pseudonym
// key component and, only for parties with data access, its data key
// component. The party multiplies the components of all authorities into its
// keys; no authority ever holds them.
package enrollment
