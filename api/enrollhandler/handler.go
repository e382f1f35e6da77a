package enrollhandler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/httpserver"
	"github.com/ruteri/splitkey-pep/interfaces"
	"github.com/ruteri/splitkey-pep/kms"
	"github.com/ruteri/splitkey-pep/metrics"
	"github.com/ruteri/splitkey-pep/oauth"
	"github.com/ruteri/splitkey-pep/tokenblocking"
)

// EnrollmentRequest asks the key server for a user signing certificate.
type EnrollmentRequest struct {
	// CertificateSigningRequest is a PEM CSR with CN = user and OU = user group.
	CertificateSigningRequest string `json:"certificateSigningRequest"`
	OAuthToken                string `json:"oauthToken"`
}

// EnrollmentResponse carries the issued certificate followed by its issuers.
type EnrollmentResponse struct {
	CertificateChain string `json:"certificateChain"`
}

// Handler is the key server's user enrollment endpoint.
type Handler struct {
	ca          *kms.ClientCA
	tokenSecret []byte
	blocklist   interfaces.Blocklist
	metrics     *metrics.Metrics
	log         *slog.Logger
	now         func() time.Time
}

// NewHandler creates the enrollment handler. blocklist and metrics may be nil.
func NewHandler(ca *kms.ClientCA, tokenSecret []byte, blocklist interfaces.Blocklist, m *metrics.Metrics, log *slog.Logger) *Handler {
	return &Handler{
		ca:          ca,
		tokenSecret: tokenSecret,
		blocklist:   blocklist,
		metrics:     m,
		log:         log,
		now:         time.Now,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/enroll", h.HandleEnroll)
}

// HandleEnroll issues a user signing certificate for a CSR accompanied by a
// valid, unblocked OAuth token for the CSR's subject.
//
// URL format: POST /api/enroll
// Request body: EnrollmentRequest
// Response: EnrollmentResponse
func (h *Handler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	var request EnrollmentRequest
	if err := httpserver.DecodeJSON(w, r, &request); err != nil {
		httpserver.WriteError(w, err)
		return
	}

	chain, err := h.enroll(request)
	if err != nil {
		httpserver.WriteError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.EnrollmentsIssued.Inc()
	}
	h.log.Info("enrolled user",
		slog.String("user", chain.CommonName()),
		slog.String("group", chain.OrganizationalUnit()))

	httpserver.WriteJSON(w, http.StatusOK, EnrollmentResponse{CertificateChain: string(chain.PEM())})
}

func (h *Handler) enroll(request EnrollmentRequest) (cryptoutils.CertificateChain, error) {
	csrPEM, err := cryptoutils.NewCSRPEM([]byte(request.CertificateSigningRequest))
	if err != nil {
		return nil, &httpserver.RequestError{StatusCode: http.StatusBadRequest, Err: err}
	}
	csr, err := csrPEM.GetX509CSR()
	if err != nil {
		return nil, &httpserver.RequestError{StatusCode: http.StatusBadRequest, Err: err}
	}

	cn := csr.Subject.CommonName
	if cn == "" || len(csr.Subject.OrganizationalUnit) != 1 {
		return nil, &httpserver.RequestError{StatusCode: http.StatusBadRequest, Err: errors.New("CSR must carry a common name and one organizational unit")}
	}
	ou := csr.Subject.OrganizationalUnit[0]
	if _, isServer := interfaces.ServerTraitsForSubject(ou); isServer || cn == ou {
		return nil, &httpserver.RequestError{StatusCode: http.StatusBadRequest, Err: errors.New("invalid certificate subject for user enrollment")}
	}

	token, err := oauth.Parse(request.OAuthToken)
	if err == nil {
		err = token.Verify(h.tokenSecret, cn, ou, h.now())
	}
	if err != nil {
		h.log.Info("rejected enrollment token", slog.String("user", cn), slog.String("group", ou), "err", err)
		return nil, interfaces.ErrInvalidToken
	}

	if h.blocklist != nil {
		if err := tokenblocking.CheckToken(h.blocklist, token.Identifier()); err != nil {
			h.log.Info("enrollment token is blocked", slog.String("user", cn), slog.String("group", ou))
			return nil, err
		}
	}

	chain, err := h.ca.SignCSR(csrPEM)
	if err != nil {
		return nil, fmt.Errorf("could not issue certificate: %w", err)
	}
	return chain, nil
}
