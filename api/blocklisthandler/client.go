package blocklisthandler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/ruteri/splitkey-pep/api"
	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/interfaces"
	"github.com/ruteri/splitkey-pep/signing"
)

// Client signs blocklist administration requests with identity.
type Client struct {
	api.JSONClient
	identity *cryptoutils.Identity
}

func NewClient(baseURL string, httpClient *http.Client, identity *cryptoutils.Identity) *Client {
	return &Client{
		JSONClient: api.JSONClient{BaseURL: baseURL, Client: httpClient},
		identity:   identity,
	}
}

// Create blocks target and every earlier token of the same subject and group.
func (c *Client) Create(ctx context.Context, target interfaces.TokenIdentifier, note string) (int64, error) {
	signed, err := signing.Sign(CreateRequest{RequestID: uuid.NewString(), Target: target, Note: note}, c.identity)
	if err != nil {
		return 0, err
	}
	var response CreateResponse
	if err := c.Post(ctx, "/api/blocklist/create", signed, &response); err != nil {
		return 0, err
	}
	return response.ID, nil
}

func (c *Client) List(ctx context.Context) ([]interfaces.BlocklistEntry, error) {
	signed, err := signing.Sign(ListRequest{RequestID: uuid.NewString()}, c.identity)
	if err != nil {
		return nil, err
	}
	var response ListResponse
	if err := c.Post(ctx, "/api/blocklist/list", signed, &response); err != nil {
		return nil, err
	}
	return response.Entries, nil
}

func (c *Client) Remove(ctx context.Context, id int64) (interfaces.BlocklistEntry, error) {
	signed, err := signing.Sign(RemoveRequest{RequestID: uuid.NewString(), ID: id}, c.identity)
	if err != nil {
		return interfaces.BlocklistEntry{}, err
	}
	var response RemoveResponse
	if err := c.Post(ctx, "/api/blocklist/remove", signed, &response); err != nil {
		return interfaces.BlocklistEntry{}, err
	}
	return response.Entry, nil
}
