package ticketing

import (
	"context"
	"crypto/x509"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/interfaces"
)

// DefaultTicketValidity is how long issued tickets can be used.
const DefaultTicketValidity = 12 * time.Hour

// Countersigner obtains the transcryptor's signature on a ticket. The request
// is passed without its access manager signature.
type Countersigner interface {
	Countersign(ctx context.Context, request SignedTicketRequest2, ticket SignedTicket2) (SignedTicket2, error)
}

// IssuerConfig configures the access manager side of ticket issuance.
type IssuerConfig struct {
	Identity *cryptoutils.Identity
	Roots    *x509.CertPool
	Policy   *AccessPolicy
	Validity time.Duration
	Now      func() time.Time
}

// Issuer authorizes ticket requests and issues countersigned tickets.
type Issuer struct {
	config        IssuerConfig
	countersigner Countersigner
	log           *slog.Logger
}

// NewIssuer creates an issuer. A zero validity uses DefaultTicketValidity.
func NewIssuer(config IssuerConfig, countersigner Countersigner, log *slog.Logger) (*Issuer, error) {
	if config.Identity == nil || config.Roots == nil || config.Policy == nil {
		return nil, fmt.Errorf("ticket issuer requires identity, roots and policy")
	}
	if config.Validity == 0 {
		config.Validity = DefaultTicketValidity
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Issuer{config: config, countersigner: countersigner, log: log}, nil
}

// Issue validates request, checks it against the access policy and returns
// the ticket countersigned by the transcryptor.
func (i *Issuer) Issue(ctx context.Context, request SignedTicketRequest2) (SignedTicket2, error) {
	certified, err := request.CertifyForAccessManager(i.config.Roots, i.config.Now)
	if err != nil {
		return SignedTicket2{}, err
	}
	if certified.Signatory.EnrolledParty() == interfaces.PartyNone {
		return SignedTicket2{}, fmt.Errorf("%w: signer is not an enrolled party", interfaces.ErrTicketDenied)
	}

	userGroup := certified.Signatory.OrganizationalUnit()
	columns, err := i.config.Policy.Authorize(userGroup, certified.Request)
	if err != nil {
		i.log.Info("ticket request denied", "signer", certified.Signatory.CommonName(), "userGroup", userGroup, "err", err)
		return SignedTicket2{}, err
	}

	now := i.config.Now()
	pseudonyms := make([]LocalPseudonyms, 0, len(certified.Request.PolymorphicPseudonyms))
	for _, pp := range certified.Request.PolymorphicPseudonyms {
		pseudonyms = append(pseudonyms, LocalPseudonyms{Polymorphic: pp})
	}
	ticket := Ticket2{
		Timestamp:  now.UnixMilli(),
		ExpiresAt:  now.Add(i.config.Validity).UnixMilli(),
		Modes:      certified.Request.Modes,
		Pseudonyms: pseudonyms,
		Columns:    columns,
		UserGroup:  userGroup,
	}

	signed, err := Sign(ticket, i.config.Identity)
	if err != nil {
		return SignedTicket2{}, fmt.Errorf("could not sign ticket: %w", err)
	}
	countersigned, err := i.countersigner.Countersign(ctx, request.ForTranscryptor(), signed)
	if err != nil {
		return SignedTicket2{}, fmt.Errorf("transcryptor did not countersign: %w", err)
	}

	i.log.Info("issued ticket",
		"signer", certified.Signatory.CommonName(),
		"userGroup", userGroup,
		"modes", ticket.Modes,
		"columns", len(columns),
		"pseudonyms", len(pseudonyms),
	)
	return countersigned, nil
}

// TicketCountersigner is the transcryptor side: it logs the request and
// countersigns tickets that match it.
type TicketCountersigner struct {
	identity *cryptoutils.Identity
	roots    *x509.CertPool
	now      func() time.Time
	log      *slog.Logger
}

// NewTicketCountersigner creates the transcryptor's countersigner.
func NewTicketCountersigner(identity *cryptoutils.Identity, roots *x509.CertPool, log *slog.Logger) *TicketCountersigner {
	return &TicketCountersigner{identity: identity, roots: roots, now: time.Now, log: log}
}

// Countersign implements Countersigner.
func (c *TicketCountersigner) Countersign(_ context.Context, request SignedTicketRequest2, ticket SignedTicket2) (SignedTicket2, error) {
	certified, err := request.CertifyForTranscryptor(c.roots, c.now)
	if err != nil {
		return SignedTicket2{}, err
	}
	opened, err := ticket.OpenForLogging(c.roots)
	if err != nil {
		return SignedTicket2{}, err
	}

	if opened.UserGroup != certified.Signatory.OrganizationalUnit() {
		return SignedTicket2{}, fmt.Errorf("%w: ticket user group does not match request", interfaces.ErrTicketDenied)
	}
	for _, mode := range opened.Modes {
		if !slices.Contains(certified.Request.Modes, mode) {
			return SignedTicket2{}, fmt.Errorf("%w: ticket grants unrequested %s access", interfaces.ErrTicketDenied, mode)
		}
	}

	if err := ticket.Countersign(c.roots, c.identity); err != nil {
		return SignedTicket2{}, err
	}

	c.log.Info("countersigned ticket",
		"signer", certified.Signatory.CommonName(),
		"userGroup", opened.UserGroup,
		"modes", opened.Modes,
		"pseudonyms", len(opened.Pseudonyms),
	)
	return ticket, nil
}
