package escrow

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dpalmer/rvault/vaulterr"
)

// HTTPClient is a thin net/http-based Client. The Client interface only
// specifies the contract, not the bytes on the wire, so the protocol here
// is this implementation's own choice: JSON request/response bodies over
// HTTPS.
type HTTPClient struct {
	baseURL string
	hc      *http.Client
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient overrides the underlying *http.Client, e.g. to set a
// custom transport or timeout in tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.hc = hc }
}

// NewHTTPClient builds a Client bound to baseURL, which must be an https
// URL: transport is TLS-only per the escrow server contract.
func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.MissingServer, "escrow.NewHTTPClient", err)
	}
	if u.Scheme != "https" {
		return nil, vaulterr.New(vaulterr.MissingServer, "escrow.NewHTTPClient", "server URL must use https")
	}
	c := &HTTPClient{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type registerRequest struct {
	UID        string `json:"uid"`
	TOTPSecret string `json:"totp_secret"`
	KS         []byte `json:"k_s"`
}

type fetchRequest struct {
	UID       string `json:"uid"`
	TOTPToken string `json:"totp_token"`
}

type fetchResponse struct {
	KS []byte `json:"k_s"`
}

// Register implements Client.
func (c *HTTPClient) Register(ctx context.Context, uid [16]byte, setup AuthSetup, ks []byte) error {
	body, err := json.Marshal(registerRequest{
		UID:        hex.EncodeToString(uid[:]),
		TOTPSecret: setup.TOTPSecret,
		KS:         ks,
	})
	if err != nil {
		return vaulterr.Wrap(vaulterr.NetworkError, "escrow.Register", err)
	}
	resp, err := c.post(ctx, "/v1/register", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusToError("escrow.Register", resp.StatusCode)
}

// Fetch implements Client.
func (c *HTTPClient) Fetch(ctx context.Context, uid [16]byte, totpToken string) ([]byte, error) {
	body, err := json.Marshal(fetchRequest{
		UID:       hex.EncodeToString(uid[:]),
		TOTPToken: totpToken,
	})
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.NetworkError, "escrow.Fetch", err)
	}
	resp, err := c.post(ctx, "/v1/fetch", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := statusToError("escrow.Fetch", resp.StatusCode); err != nil {
		return nil, err
	}
	var fr fetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, vaulterr.Wrap(vaulterr.NetworkError, "escrow.Fetch", err)
	}
	return fr.KS, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.NetworkError, "escrow.post", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.NetworkError, "escrow.post", err)
	}
	return resp, nil
}

func statusToError(op string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return vaulterr.New(vaulterr.AuthFailed, op, fmt.Sprintf("server rejected authentication (status %d)", status))
	default:
		return vaulterr.New(vaulterr.NetworkError, op, fmt.Sprintf("unexpected status %d", status))
	}
}
