package pagehandler

import (
	"bufio"
	"bytes"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ruteri/splitkey-pep/httpserver"
	"github.com/ruteri/splitkey-pep/interfaces"
	"github.com/ruteri/splitkey-pep/metrics"
	"github.com/ruteri/splitkey-pep/paging"
	"github.com/ruteri/splitkey-pep/signing"
	"github.com/ruteri/splitkey-pep/storage"
	"github.com/ruteri/splitkey-pep/ticketing"
)

// Handler is the storage facility's page transfer endpoint.
type Handler struct {
	store   *storage.PageStore
	roots   *x509.CertPool
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

func NewHandler(store *storage.PageStore, roots *x509.CertPool, m *metrics.Metrics, log *slog.Logger) *Handler {
	return &Handler{store: store, roots: roots, metrics: m, log: log, now: time.Now}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/pages", h.HandleUpload)
	r.Post("/api/pages/download", h.HandleDownload)
}

// authorize opens ticket for the signer's user group and checks that it
// covers the participant and column.
func (h *Handler) authorize(ticket ticketing.SignedTicket2, signatory signing.Signatory, mode string, pseudonym []byte, column string) error {
	opened, err := ticket.Open(ticketing.OpenOptions{
		Roots:     h.roots,
		UserGroup: signatory.OrganizationalUnit(),
		Mode:      mode,
		Now:       h.now,
	})
	if err != nil {
		return err
	}
	if !opened.HasColumn(column) {
		return fmt.Errorf("%w: column %q not covered", interfaces.ErrTicketDenied, column)
	}
	covered := slices.ContainsFunc(opened.Pseudonyms, func(p ticketing.LocalPseudonyms) bool {
		return bytes.Equal(p.Polymorphic, pseudonym)
	})
	if !covered {
		return fmt.Errorf("%w: participant not covered", interfaces.ErrTicketDenied)
	}
	return nil
}

func (h *Handler) validateOptions() signing.ValidateOptions {
	return signing.ValidateOptions{Roots: h.roots, Leeway: ticketing.RequestLeeway, Now: h.now}
}

// HandleUpload stores the pages of one file.
//
// URL format: POST /api/pages
// Request body: frame(SignedUploadHeader JSON) frame(page)...
// Response: UploadResponse
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	body := bufio.NewReader(r.Body)

	headerData, err := readFrame(body, MaxHeaderSize)
	if err != nil {
		httpserver.WriteError(w, &httpserver.RequestError{StatusCode: http.StatusBadRequest, Err: err})
		return
	}
	var signed SignedUploadHeader
	if err := json.Unmarshal(headerData, &signed); err != nil {
		httpserver.WriteError(w, &httpserver.RequestError{StatusCode: http.StatusBadRequest, Err: err})
		return
	}
	header, signatory, err := signed.Open(h.validateOptions())
	if err != nil {
		h.log.Info("rejected upload", "err", err)
		httpserver.WriteError(w, err)
		return
	}
	if header.Metadata.Tag != header.Column {
		httpserver.WriteError(w, &httpserver.RequestError{StatusCode: http.StatusBadRequest, Err: errors.New("metadata tag does not match column")})
		return
	}
	if err := h.authorize(header.Ticket, signatory, ticketing.ModeWrite, header.Pseudonym, header.Column); err != nil {
		h.log.Info("rejected upload", "signer", signatory.CommonName(), "column", header.Column, "err", err)
		httpserver.WriteError(w, err)
		return
	}

	stream := paging.NewPageStream(func() (*paging.DataPayloadPage, error) {
		data, err := readFrame(body, MaxPageFrameSize)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, err
			}
			return nil, &httpserver.RequestError{StatusCode: http.StatusBadRequest, Err: err}
		}
		page := &paging.DataPayloadPage{}
		if err := page.UnmarshalBinary(data); err != nil {
			return nil, &httpserver.RequestError{StatusCode: http.StatusBadRequest, Err: err}
		}
		return page, nil
	})

	entry, err := h.store.StorePages(r.Context(), header.Pseudonym, header.Column, header.Metadata, stream)
	if errors.Is(err, storage.ErrNoPages) {
		err = &httpserver.RequestError{StatusCode: http.StatusBadRequest, Err: err}
	}
	if err != nil {
		h.log.Info("upload failed", "signer", signatory.CommonName(), "column", header.Column, "err", err)
		httpserver.WriteError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.PagesStored.Add(float64(entry.PageCount))
	}
	httpserver.WriteJSON(w, http.StatusOK, UploadResponse{
		ID:        entry.ManifestID.String(),
		Digest:    entry.Digest,
		PageCount: entry.PageCount,
	})
}

// HandleDownload streams the pages of a stored entry.
//
// URL format: POST /api/pages/download
// Request body: SignedDownloadRequest
// Response: frame(DownloadHeader JSON) frame(page)...
//
// Errors after the header frame end the response early; clients detect the
// missing pages.
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	var signed SignedDownloadRequest
	if err := httpserver.DecodeJSON(w, r, &signed); err != nil {
		httpserver.WriteError(w, err)
		return
	}
	request, signatory, err := signed.Open(h.validateOptions())
	if err != nil {
		h.log.Info("rejected download", "err", err)
		httpserver.WriteError(w, err)
		return
	}

	id, err := interfaces.NewContentIDFromHex(request.ID)
	if err != nil {
		httpserver.WriteError(w, &httpserver.RequestError{StatusCode: http.StatusBadRequest, Err: err})
		return
	}
	manifest, err := h.store.LoadManifest(r.Context(), id)
	if err != nil {
		httpserver.WriteError(w, err)
		return
	}
	if err := h.authorize(request.Ticket, signatory, ticketing.ModeRead, manifest.Pseudonym, manifest.Column); err != nil {
		h.log.Info("rejected download", "signer", signatory.CommonName(), "id", request.ID, "err", err)
		httpserver.WriteError(w, err)
		return
	}

	pages := h.store.Pages(r.Context(), manifest)
	headerData, err := json.Marshal(DownloadHeader{
		Pseudonym: manifest.Pseudonym,
		Column:    manifest.Column,
		Metadata:  manifest.Metadata,
		PageCount: len(manifest.Pages),
		Digest:    manifest.Digest,
	})
	if err != nil {
		httpserver.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	out := bufio.NewWriter(w)
	if err := writeFrame(out, headerData); err != nil {
		return
	}

	sent := 0
	for page, err := range pages.All() {
		if err == nil {
			var data []byte
			if data, err = page.MarshalBinary(); err == nil {
				err = writeFrame(out, data)
			}
		}
		if err != nil {
			h.log.Warn("download aborted", "id", request.ID, "sent", sent, "err", err)
			break
		}
		sent++
	}
	out.Flush()

	if h.metrics != nil {
		h.metrics.PagesRetrieved.Add(float64(sent))
	}
}
