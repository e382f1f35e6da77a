package tickethandler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ruteri/splitkey-pep/httpserver"
	"github.com/ruteri/splitkey-pep/interfaces"
	"github.com/ruteri/splitkey-pep/metrics"
	"github.com/ruteri/splitkey-pep/ticketing"
)

// CountersignRequest is what the access manager sends the transcryptor: the
// user's request stripped to its log copy and the ticket it issued for it.
type CountersignRequest struct {
	Request ticketing.SignedTicketRequest2 `json:"request"`
	Ticket  ticketing.SignedTicket2        `json:"ticket"`
}

// IssueHandler is the access manager's ticket endpoint.
type IssueHandler struct {
	issuer  *ticketing.Issuer
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewIssueHandler(issuer *ticketing.Issuer, m *metrics.Metrics, log *slog.Logger) *IssueHandler {
	return &IssueHandler{issuer: issuer, metrics: m, log: log}
}

func (h *IssueHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/ticket", h.HandleIssue)
}

// HandleIssue issues a countersigned ticket.
//
// URL format: POST /api/ticket
// Request body: ticketing.SignedTicketRequest2
// Response: ticketing.SignedTicket2
func (h *IssueHandler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	var request ticketing.SignedTicketRequest2
	if err := httpserver.DecodeJSON(w, r, &request); err != nil {
		httpserver.WriteError(w, err)
		return
	}

	ticket, err := h.issuer.Issue(r.Context(), request)
	if err != nil {
		if h.metrics != nil && errors.Is(err, interfaces.ErrTicketDenied) {
			h.metrics.TicketsDenied.Inc()
		}
		h.log.Info("ticket request failed", "err", err)
		httpserver.WriteError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.TicketsIssued.Inc()
	}
	httpserver.WriteJSON(w, http.StatusOK, ticket)
}

// CountersignHandler is the transcryptor's ticket endpoint.
type CountersignHandler struct {
	countersigner ticketing.Countersigner
	metrics       *metrics.Metrics
	log           *slog.Logger
}

func NewCountersignHandler(countersigner ticketing.Countersigner, m *metrics.Metrics, log *slog.Logger) *CountersignHandler {
	return &CountersignHandler{countersigner: countersigner, metrics: m, log: log}
}

func (h *CountersignHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/ticket/countersign", h.HandleCountersign)
}

// HandleCountersign adds the transcryptor signature to a ticket.
//
// URL format: POST /api/ticket/countersign
// Request body: CountersignRequest
// Response: ticketing.SignedTicket2
func (h *CountersignHandler) HandleCountersign(w http.ResponseWriter, r *http.Request) {
	var request CountersignRequest
	if err := httpserver.DecodeJSON(w, r, &request); err != nil {
		httpserver.WriteError(w, err)
		return
	}

	ticket, err := h.countersigner.Countersign(r.Context(), request.Request, request.Ticket)
	if err != nil {
		if h.metrics != nil && errors.Is(err, interfaces.ErrTicketDenied) {
			h.metrics.TicketsDenied.Inc()
		}
		h.log.Info("countersign request failed", "err", err)
		httpserver.WriteError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.TicketsIssued.Inc()
	}
	httpserver.WriteJSON(w, http.StatusOK, ticket)
}
