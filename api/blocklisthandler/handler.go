package blocklisthandler

import (
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ruteri/splitkey-pep/httpserver"
	"github.com/ruteri/splitkey-pep/interfaces"
	"github.com/ruteri/splitkey-pep/signing"
)

// RequestLeeway bounds the age of signed administration requests.
const RequestLeeway = time.Hour

var (
	administrators = []string{interfaces.UserGroupAccessAdministrator}
	creators       = []string{interfaces.UserGroupAccessAdministrator, interfaces.AccessManagerTraits.CertificateSubject()}
)

// Handler administers the key server's token blocklist.
type Handler struct {
	blocklist interfaces.Blocklist
	roots     *x509.CertPool
	log       *slog.Logger
	now       func() time.Time
}

func NewHandler(blocklist interfaces.Blocklist, roots *x509.CertPool, log *slog.Logger) *Handler {
	return &Handler{blocklist: blocklist, roots: roots, log: log, now: time.Now}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/blocklist", func(r chi.Router) {
		r.Post("/create", h.HandleCreate)
		r.Post("/list", h.HandleList)
		r.Post("/remove", h.HandleRemove)
	})
}

// open validates a signed request and checks that its signer belongs to one
// of the allowed organizational units.
func open[T any](h *Handler, signed signing.Signed[T], allowed []string) (T, signing.Signatory, error) {
	payload, signatory, err := signed.Open(signing.ValidateOptions{
		Roots:  h.roots,
		Leeway: RequestLeeway,
		Now:    h.now,
	})
	if err != nil {
		return payload, signatory, err
	}

	ou := signatory.OrganizationalUnit()
	if !slices.Contains(allowed, ou) {
		return payload, signatory, &httpserver.RequestError{
			StatusCode: http.StatusForbidden,
			Err:        fmt.Errorf("%q may not administer the token blocklist", ou),
		}
	}
	if ou == interfaces.AccessManagerTraits.CertificateSubject() && signatory.EnrolledParty() != interfaces.PartyAccessManager {
		return payload, signatory, fmt.Errorf("%w: %q is not the access manager", interfaces.ErrAuthentication, signatory.CommonName())
	}
	return payload, signatory, nil
}

// HandleCreate adds a blocklist entry. The issuer and creation time are set
// from the request signature, never from the payload.
//
// URL format: POST /api/blocklist/create
// Request body: SignedCreateRequest
// Response: CreateResponse
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var signed SignedCreateRequest
	if err := httpserver.DecodeJSON(w, r, &signed); err != nil {
		httpserver.WriteError(w, err)
		return
	}

	request, signatory, err := open(h, signed, creators)
	if err != nil {
		h.log.Info("rejected blocklist request", "err", err)
		httpserver.WriteError(w, err)
		return
	}
	if request.Target.Subject == "" || request.Target.UserGroup == "" {
		httpserver.WriteError(w, &httpserver.RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("target requires subject and user group")})
		return
	}

	id, err := h.blocklist.Add(request.Target, interfaces.BlocklistEntryMetadata{
		Note:             request.Note,
		Issuer:           signatory.CommonName(),
		CreationDateTime: h.now().UTC().Truncate(time.Second),
	})
	if err != nil {
		h.log.Error("could not add blocklist entry", "requestId", request.RequestID, "err", err)
		httpserver.WriteError(w, err)
		return
	}

	h.log.Info("blocked tokens",
		"requestId", request.RequestID,
		"id", id,
		"issuer", signatory.CommonName(),
		"subject", request.Target.Subject,
		"userGroup", request.Target.UserGroup)
	httpserver.WriteJSON(w, http.StatusOK, CreateResponse{ID: id})
}

// HandleList returns every blocklist entry.
//
// URL format: POST /api/blocklist/list
// Request body: SignedListRequest
// Response: ListResponse
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var signed SignedListRequest
	if err := httpserver.DecodeJSON(w, r, &signed); err != nil {
		httpserver.WriteError(w, err)
		return
	}
	if _, _, err := open(h, signed, administrators); err != nil {
		h.log.Info("rejected blocklist request", "err", err)
		httpserver.WriteError(w, err)
		return
	}

	entries, err := h.blocklist.AllEntries()
	if err != nil {
		httpserver.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []interfaces.BlocklistEntry{}
	}
	httpserver.WriteJSON(w, http.StatusOK, ListResponse{Entries: entries})
}

// HandleRemove deletes an entry, answering 404 for unknown ids.
//
// URL format: POST /api/blocklist/remove
// Request body: SignedRemoveRequest
// Response: RemoveResponse
func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	var signed SignedRemoveRequest
	if err := httpserver.DecodeJSON(w, r, &signed); err != nil {
		httpserver.WriteError(w, err)
		return
	}
	request, signatory, err := open(h, signed, administrators)
	if err != nil {
		h.log.Info("rejected blocklist request", "err", err)
		httpserver.WriteError(w, err)
		return
	}

	entry, err := h.blocklist.RemoveByID(request.ID)
	if err != nil {
		httpserver.WriteError(w, err)
		return
	}

	h.log.Info("removed blocklist entry", "requestId", request.RequestID, "id", entry.ID, "by", signatory.CommonName())
	httpserver.WriteJSON(w, http.StatusOK, RemoveResponse{Entry: entry})
}
