package enrollhandler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ruteri/splitkey-pep/api"
	"github.com/ruteri/splitkey-pep/cryptoutils"
)

// Client enrolls users with the key server.
type Client struct {
	api.JSONClient
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{JSONClient: api.JSONClient{BaseURL: baseURL, Client: httpClient}}
}

// Enroll generates a signing key for user in group and has the key server
// certify it with token.
func (c *Client) Enroll(ctx context.Context, user, group, token string) (*cryptoutils.Identity, error) {
	keyPEM, csrPEM, err := cryptoutils.CreateCSR(user, group)
	if err != nil {
		return nil, fmt.Errorf("could not create CSR: %w", err)
	}

	var response EnrollmentResponse
	err = c.Post(ctx, "/api/enroll", EnrollmentRequest{
		CertificateSigningRequest: string(csrPEM),
		OAuthToken:                token,
	}, &response)
	if err != nil {
		return nil, fmt.Errorf("enrollment failed: %w", err)
	}

	return cryptoutils.NewIdentity([]byte(response.CertificateChain), keyPEM)
}
