package blocklisthandler

import (
	"github.com/ruteri/splitkey-pep/interfaces"
	"github.com/ruteri/splitkey-pep/signing"
)

// Every request payload carries a client generated id that both sides log.

type CreateRequest struct {
	RequestID string                     `json:"requestId"`
	Target    interfaces.TokenIdentifier `json:"target"`
	Note      string                     `json:"note"`
}

type CreateResponse struct {
	ID int64 `json:"id"`
}

type ListRequest struct {
	RequestID string `json:"requestId"`
}

type ListResponse struct {
	Entries []interfaces.BlocklistEntry `json:"entries"`
}

type RemoveRequest struct {
	RequestID string `json:"requestId"`
	ID        int64  `json:"id"`
}

type RemoveResponse struct {
	Entry interfaces.BlocklistEntry `json:"entry"`
}

type (
	SignedCreateRequest = signing.Signed[CreateRequest]
	SignedListRequest   = signing.Signed[ListRequest]
	SignedRemoveRequest = signing.Signed[RemoveRequest]
)
