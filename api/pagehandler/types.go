package pagehandler

import (
	"github.com/ruteri/splitkey-pep/paging"
	"github.com/ruteri/splitkey-pep/signing"
	"github.com/ruteri/splitkey-pep/ticketing"
)

// UploadHeader opens an upload. It is the first frame of the request body and
// is followed by one frame per serialized page.
type UploadHeader struct {
	Ticket ticketing.SignedTicket2 `json:"ticket"`
	// Pseudonym is the polymorphic pseudonym of the participant, as listed in the ticket.
	Pseudonym []byte          `json:"pseudonym"`
	Column    string          `json:"column"`
	Metadata  paging.Metadata `json:"metadata"`
}

type UploadResponse struct {
	// ID is the hex content id of the entry's manifest.
	ID        string `json:"id"`
	Digest    uint64 `json:"digest"`
	PageCount int    `json:"pageCount"`
}

// DownloadRequest asks for the pages of a stored entry.
type DownloadRequest struct {
	Ticket ticketing.SignedTicket2 `json:"ticket"`
	ID     string                  `json:"id"`
}

// DownloadHeader is the first frame of a download response and is followed
// by PageCount page frames.
type DownloadHeader struct {
	Pseudonym []byte          `json:"pseudonym"`
	Column    string          `json:"column"`
	Metadata  paging.Metadata `json:"metadata"`
	PageCount int             `json:"pageCount"`
	Digest    uint64          `json:"digest"`
}

type (
	SignedUploadHeader    = signing.Signed[UploadHeader]
	SignedDownloadRequest = signing.Signed[DownloadRequest]
)
