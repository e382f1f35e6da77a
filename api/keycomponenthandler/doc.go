// Package keycomponenthandler serves key components to enrolled parties and
// provides the matching client.
//
// Every key authority (access manager and transcryptor) runs this handler on
// top of its system keys. A party signs an empty request with its signing
// identity; the response carries the pseudonym key component and, for roles
// with data access, the data key component. Combining the responses of all
// authorities with enrollment.Enroll yields the party's keys.
package keycomponenthandler
