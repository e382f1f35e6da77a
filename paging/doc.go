// Package paging splits file contents into encrypted pages and checks their
// integrity and order in transit.
//
// Each page is sealed with AES-256-GCM under a 16 byte nonce. Scheme V1
// authenticates the file's metadata as associated data; V2 and V3 bind the
// page number instead. A StreamOrder enforces that within one transfer file
// indices never decrease (whole files may be skipped) and pages of a file are
// numbered 0, 1, 2, ... without gaps.
package paging
