package keycomponenthandler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ruteri/splitkey-pep/api"
	"github.com/ruteri/splitkey-pep/enrollment"
)

// Client requests key components from one authority. It implements
// enrollment.KeyComponentRequester.
type Client struct {
	api.JSONClient
	name string
}

// NewClient creates a client for the authority at baseURL. A nil httpClient
// uses http.DefaultClient.
func NewClient(name, baseURL string, httpClient *http.Client) *Client {
	return &Client{
		JSONClient: api.JSONClient{BaseURL: baseURL, Client: httpClient},
		name:       name,
	}
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) RequestKeyComponent(ctx context.Context, request enrollment.SignedKeyComponentRequest) (enrollment.KeyComponentResponse, error) {
	var response enrollment.KeyComponentResponse
	if err := c.Post(ctx, "/api/keycomponent", request, &response); err != nil {
		return enrollment.KeyComponentResponse{}, fmt.Errorf("key component request failed: %w", err)
	}
	return response, nil
}
