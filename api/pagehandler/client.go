package pagehandler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ruteri/splitkey-pep/api"
	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/interfaces"
	"github.com/ruteri/splitkey-pep/paging"
	"github.com/ruteri/splitkey-pep/signing"
	"github.com/ruteri/splitkey-pep/ticketing"
)

// Client transfers pages to and from the storage facility. Transfers are
// streamed and never retried.
type Client struct {
	BaseURL  string
	Client   *http.Client
	identity *cryptoutils.Identity
}

func NewClient(baseURL string, httpClient *http.Client, identity *cryptoutils.Identity) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{BaseURL: strings.TrimSuffix(baseURL, "/"), Client: httpClient, identity: identity}
}

// Upload sends the pages of stream and checks the storage facility's digest
// against the one computed locally.
func (c *Client) Upload(ctx context.Context, ticket ticketing.SignedTicket2, pseudonym []byte, metadata paging.Metadata, stream *paging.PageStream) (*UploadResponse, error) {
	signed, err := signing.Sign(UploadHeader{
		Ticket:    ticket,
		Pseudonym: pseudonym,
		Column:    metadata.Tag,
		Metadata:  metadata,
	}, c.identity)
	if err != nil {
		return nil, fmt.Errorf("could not sign upload header: %w", err)
	}
	headerData, err := json.Marshal(signed)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	defer pr.Close()

	type result struct {
		digest uint64
		pages  int
		err    error
	}
	done := make(chan result, 1)
	go func() {
		digest := paging.NewDigest()
		pages := 0
		out := bufio.NewWriter(pw)
		err := writeFrame(out, headerData)
		for page, streamErr := range stream.All() {
			if err != nil {
				break
			}
			if streamErr != nil {
				err = streamErr
				break
			}
			var data []byte
			if data, err = page.MarshalBinary(); err != nil {
				break
			}
			digest.AddSerialized(data)
			err = writeFrame(out, data)
			pages++
		}
		if err == nil {
			err = out.Flush()
		}
		pw.CloseWithError(err)
		done <- result{digest: digest.Sum64(), pages: pages, err: err}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/pages", pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.Client.Do(req)
	if err != nil {
		pr.Close()
		local := <-done
		if local.err != nil && !errors.Is(local.err, io.ErrClosedPipe) {
			return nil, local.err
		}
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		pr.Close()
		<-done
		return nil, api.ReadStatusError(resp)
	}

	var response UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("could not parse upload response: %w", err)
	}

	local := <-done
	if local.err != nil {
		return nil, local.err
	}
	if response.Digest != local.digest || response.PageCount != local.pages {
		return nil, fmt.Errorf("%w: storage facility stored %d pages with digest %x, sent %d with digest %x",
			interfaces.ErrPageIntegrity, response.PageCount, response.Digest, local.pages, local.digest)
	}
	return &response, nil
}

// Download is an open page stream of a stored entry. The stream fails with
// interfaces.ErrPageIntegrity if pages are missing or do not match the
// entry's digest.
type Download struct {
	Header DownloadHeader
	Pages  *paging.PageStream
	body   io.ReadCloser
}

func (d *Download) Close() error {
	return d.body.Close()
}

// Download opens the entry with manifest id.
func (c *Client) Download(ctx context.Context, ticket ticketing.SignedTicket2, id string) (*Download, error) {
	signed, err := signing.Sign(DownloadRequest{Ticket: ticket, ID: id}, c.identity)
	if err != nil {
		return nil, fmt.Errorf("could not sign download request: %w", err)
	}
	body, err := json.Marshal(signed)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/pages/download", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, api.ReadStatusError(resp)
	}

	in := bufio.NewReader(resp.Body)
	headerData, err := readFrame(in, MaxHeaderSize)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("could not read download header: %w", err)
	}
	var header DownloadHeader
	if err := json.Unmarshal(headerData, &header); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("invalid download header: %w", err)
	}

	digest := paging.NewDigest()
	received := 0
	pages := paging.NewPageStream(func() (*paging.DataPayloadPage, error) {
		data, err := readFrame(in, MaxPageFrameSize)
		if errors.Is(err, io.EOF) {
			if received != header.PageCount || digest.Sum64() != header.Digest {
				return nil, fmt.Errorf("%w: received %d of %d pages", interfaces.ErrPageIntegrity, received, header.PageCount)
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
		page := &paging.DataPayloadPage{}
		if err := page.UnmarshalBinary(data); err != nil {
			return nil, err
		}
		digest.AddSerialized(data)
		received++
		return page, nil
	})

	return &Download{Header: header, Pages: pages, body: resp.Body}, nil
}

// DownloadFile downloads and decrypts a whole entry.
func (c *Client) DownloadFile(ctx context.Context, ticket ticketing.SignedTicket2, id string, key []byte) ([]byte, *DownloadHeader, error) {
	download, err := c.Download(ctx, ticket, id)
	if err != nil {
		return nil, nil, err
	}
	defer download.Close()

	plaintext, err := paging.Assemble(download.Pages, key, download.Header.Metadata)
	if err != nil {
		return nil, nil, err
	}
	return plaintext, &download.Header, nil
}
