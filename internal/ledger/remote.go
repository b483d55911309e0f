package ledger

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-klinik/internal/resilience"
)

// HTTPPoster forwards sales to an external accounting service.
type HTTPPoster struct {
	URL    string
	Secret string
	Client resilience.HTTPClient
	Now    func() time.Time
}

type remoteSale struct {
	Sale  Sale   `json:"sale"`
	Lines []Line `json:"lines"`
}

// NewHTTPClient returns an instrumented client with the given timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// Signature is HMAC-SHA256 over "<ts>.<reference>.<body>".
func Signature(secret string, ts int64, reference string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(reference))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// RecordSale implements Poster. A 409 from the remote side means the bill was already posted.
func (p *HTTPPoster) RecordSale(ctx context.Context, s Sale) error {
	if p == nil || p.URL == "" {
		return errors.New("ledger: remote poster not configured")
	}
	lines, err := Entries(s)
	if err != nil {
		return err
	}
	body, err := json.Marshal(remoteSale{Sale: s, Lines: lines})
	if err != nil {
		return err
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	ts := now().Unix()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "klinik-ledger/1.0")
	req.Header.Set("X-Idempotency-Key", string(s.Domain)+":"+strconv.FormatInt(s.BillID, 10))
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	if p.Secret != "" {
		req.Header.Set("X-Signature", Signature(p.Secret, ts, s.Reference, body))
	}
	resp, err := p.Client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("ledger: remote post %s: %w", s.Reference, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)
	switch {
	case resp.StatusCode == http.StatusConflict:
		return ErrAlreadyPosted
	case resp.StatusCode >= 300:
		return fmt.Errorf("ledger: remote post %s: status %d", s.Reference, resp.StatusCode)
	}
	return nil
}
