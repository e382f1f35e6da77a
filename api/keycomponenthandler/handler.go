package keycomponenthandler

import (
	"crypto/x509"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ruteri/splitkey-pep/enrollment"
	"github.com/ruteri/splitkey-pep/httpserver"
	"github.com/ruteri/splitkey-pep/kms"
	"github.com/ruteri/splitkey-pep/metrics"
	"github.com/ruteri/splitkey-pep/signing"
)

// Handler answers key component requests of enrolled parties.
type Handler struct {
	translators kms.TranslatorSource
	roots       *x509.CertPool
	metrics     *metrics.Metrics
	log         *slog.Logger
}

// NewHandler creates a key component handler. metrics may be nil.
func NewHandler(translators kms.TranslatorSource, roots *x509.CertPool, m *metrics.Metrics, log *slog.Logger) *Handler {
	return &Handler{
		translators: translators,
		roots:       roots,
		metrics:     m,
		log:         log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/keycomponent", h.HandleKeyComponent)
}

// HandleKeyComponent returns the signer's key components.
//
// URL format: POST /api/keycomponent
// Request body: enrollment.SignedKeyComponentRequest
// Response: enrollment.KeyComponentResponse
//
// Answers 503 while the system keys are locked, 401 when the request does
// not authenticate and 403 with no detail when the signer may not enroll.
func (h *Handler) HandleKeyComponent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var request enrollment.SignedKeyComponentRequest
	if err := httpserver.DecodeJSON(w, r, &request); err != nil {
		httpserver.WriteError(w, err)
		return
	}

	translators, err := h.translators.Translators()
	if err != nil {
		httpserver.WriteError(w, err)
		return
	}

	response, err := enrollment.HandleRequest(request, translators, signing.ValidateOptions{
		Roots:  h.roots,
		Leeway: enrollment.DefaultLeeway,
	})
	if err != nil {
		h.log.Info("key component request rejected", "err", err)
		httpserver.WriteError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.ObserveSince(start)
	}
	httpserver.WriteJSON(w, http.StatusOK, response)
}
