package tickethandler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ruteri/splitkey-pep/api"
	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/ticketing"
)

// Client requests tickets from the access manager.
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

// RequestTicket signs request and returns the issued ticket.
func (c *Client) RequestTicket(ctx context.Context, request ticketing.TicketRequest2) (ticketing.SignedTicket2, error) {
	signed, err := ticketing.SignRequest(request, c.identity)
	if err != nil {
		return ticketing.SignedTicket2{}, fmt.Errorf("could not sign ticket request: %w", err)
	}
	var ticket ticketing.SignedTicket2
	if err := c.Post(ctx, "/api/ticket", signed, &ticket); err != nil {
		return ticketing.SignedTicket2{}, err
	}
	return ticket, nil
}

// CountersignClient forwards tickets to the transcryptor. It implements
// ticketing.Countersigner for the access manager.
type CountersignClient struct {
	api.JSONClient
}

func NewCountersignClient(baseURL string, httpClient *http.Client) *CountersignClient {
	return &CountersignClient{JSONClient: api.JSONClient{BaseURL: baseURL, Client: httpClient}}
}

func (c *CountersignClient) Countersign(ctx context.Context, request ticketing.SignedTicketRequest2, ticket ticketing.SignedTicket2) (ticketing.SignedTicket2, error) {
	var countersigned ticketing.SignedTicket2
	if err := c.Post(ctx, "/api/ticket/countersign", CountersignRequest{Request: request, Ticket: ticket}, &countersigned); err != nil {
		return ticketing.SignedTicket2{}, err
	}
	return countersigned, nil
}
