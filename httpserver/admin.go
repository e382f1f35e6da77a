package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/kms"
)

// ShareSubmission is one administrator's decrypted Shamir share of the
// system keys, signed with the administrator's key.
type ShareSubmission struct {
	ShareIndex  int    `json:"shareIndex"`
	Share       []byte `json:"share"`
	Signature   []byte `json:"signature"`
	AdminPubKey string `json:"adminPubKey"`
}

// EscrowStatus reports whether the system keys were recovered.
type EscrowStatus struct {
	Unlocked bool `json:"unlocked"`
}

// AdminHandler exposes the escrow of the system keys. Administrators submit
// their shares until the threshold is met and the key component routes
// start answering.
type AdminHandler struct {
	escrow *kms.ShamirEscrow
	log    *slog.Logger
}

func NewAdminHandler(escrow *kms.ShamirEscrow, log *slog.Logger) *AdminHandler {
	return &AdminHandler{escrow: escrow, log: log}
}

// RegisterRoutes mounts the admin API under /admin.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Get("/status", h.handleStatus)
		r.Post("/share", h.handleSubmitShare)
	})
}

// Endpoint: GET /admin/status
func (h *AdminHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, EscrowStatus{Unlocked: h.escrow.IsUnlocked()})
}

// handleSubmitShare takes a signed share. The escrow verifies the signature
// against the registered admin keys.
//
// Endpoint: POST /admin/share
func (h *AdminHandler) handleSubmitShare(w http.ResponseWriter, r *http.Request) {
	var submission ShareSubmission
	if err := DecodeJSON(w, r, &submission); err != nil {
		WriteError(w, err)
		return
	}

	adminID := kms.AdminFingerprint([]byte(submission.AdminPubKey))
	err := h.escrow.SubmitShare(submission.ShareIndex, submission.Share, submission.Signature, []byte(submission.AdminPubKey))
	if err != nil {
		h.log.Warn("Share submission failed", "err", err, slog.String("adminID", adminID))
		http.Error(w, fmt.Errorf("share submission failed: %w", err).Error(), http.StatusBadRequest)
		return
	}

	h.log.Info("Share accepted", slog.String("adminID", adminID), slog.Int("shareIndex", submission.ShareIndex))
	WriteJSON(w, http.StatusOK, EscrowStatus{Unlocked: h.escrow.IsUnlocked()})
}

// LoadAdminKeys loads admin public keys from a JSON file of the form
// {"admins": [{"id": "...", "pubkey": "-----BEGIN PUBLIC KEY-----..."}]}.
func LoadAdminKeys(r io.Reader) (map[string][]byte, error) {
	var data struct {
		Admins []struct {
			ID     string `json:"id"`
			PubKey string `json:"pubkey"`
		} `json:"admins"`
	}

	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode admin keys JSON: %w", err)
	}

	result := make(map[string][]byte, len(data.Admins))
	for _, admin := range data.Admins {
		if _, err := cryptoutils.NewPublicKeyPEM([]byte(admin.PubKey)); err != nil {
			return nil, fmt.Errorf("invalid public key for admin %s: %w", admin.ID, err)
		}
		result[admin.ID] = []byte(admin.PubKey)
	}
	if len(result) == 0 {
		return nil, errors.New("no admin keys")
	}
	return result, nil
}

// LoadAdminKeysFile is LoadAdminKeys on a file.
func LoadAdminKeysFile(path string) (map[string][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadAdminKeys(f)
}

// AdminClient submits shares to a server's admin API.
type AdminClient struct {
	BaseURL string
	Client  *http.Client
}

// SubmitShare decrypts encrypted with the admin key, signs the share and
// submits it.
func (c *AdminClient) SubmitShare(ctx context.Context, encrypted kms.EncryptedShare, adminKey cryptoutils.PrivateKeyPEM) (*EscrowStatus, error) {
	share, err := cryptoutils.DecryptWithPrivateKey(adminKey, encrypted.EncryptedShare)
	if err != nil {
		return nil, fmt.Errorf("could not decrypt share: %w", err)
	}
	key, err := adminKey.GetPrivateKey()
	if err != nil {
		return nil, err
	}
	signature, err := kms.SignShare(encrypted.Index, share, key)
	if err != nil {
		return nil, err
	}
	pubKey, err := cryptoutils.EncodePublicKeyPEM(&key.PublicKey)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(ShareSubmission{
		ShareIndex:  encrypted.Index,
		Share:       share,
		Signature:   signature,
		AdminPubKey: string(pubKey),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/admin/share", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("share submission failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var status EscrowStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}
