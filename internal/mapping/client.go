// Package mapping fetches detection element envelopes from the muon chamber
// mapping service, one element per request.
package mapping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/banshee-data/mchgeo/internal/deid"
	"github.com/banshee-data/mchgeo/internal/httputil"
	"github.com/banshee-data/mchgeo/internal/monitoring"
)

// DefaultBaseURL is the address of a locally running mapping service.
const DefaultBaseURL = "http://localhost:8080"

// envelopePath is the mapping service endpoint serving one envelope.
const envelopePath = "/v2/degeo"

// maxBodyBytes bounds a single envelope response.
const maxBodyBytes = 4 << 20

// ErrRemoteFetch is returned when the mapping service does not answer 200
// or the request cannot be completed.
var ErrRemoteFetch = errors.New("envelope query failed")

// FetchError describes a failed envelope query.
type FetchError struct {
	DEID       int
	Bending    bool
	StatusCode int // zero when the request never got a response
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v for deid %d (bending=%t): status %d", ErrRemoteFetch, e.DEID, e.Bending, e.StatusCode)
	}
	return fmt.Sprintf("%v for deid %d (bending=%t): %v", ErrRemoteFetch, e.DEID, e.Bending, e.Err)
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRemoteFetch}
	}
	return []error{ErrRemoteFetch, e.Err}
}

// Config configures a Client.
type Config struct {
	BaseURL string
	// RequestsPerSecond paces queries; zero or less disables pacing.
	RequestsPerSecond float64
}

// Client queries the mapping service.
type Client struct {
	http    httputil.HTTPClient
	baseURL string
	limiter *rate.Limiter
}

// NewClient creates a client. An empty BaseURL selects DefaultBaseURL.
func NewClient(c httputil.HTTPClient, cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid mapping base URL %q", cfg.BaseURL)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{http: c, baseURL: base, limiter: limiter}, nil
}

// EnvelopeURL returns the query URL for one detection element.
func (c *Client) EnvelopeURL(id int, bending bool) string {
	q := url.Values{}
	q.Set("deid", strconv.Itoa(id))
	q.Set("bending", strconv.FormatBool(bending))
	return c.baseURL + envelopePath + "?" + q.Encode()
}

// FetchEnvelope returns the raw JSON envelope of one detection element.
// Any status other than 200 is a FetchError.
func (c *Client) FetchEnvelope(ctx context.Context, id int, bending bool) (json.RawMessage, error) {
	if !deid.IsValid(id) {
		return nil, fmt.Errorf("%d is not a valid detection element ID", id)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{DEID: id, Bending: bending, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.EnvelopeURL(id, bending), nil)
	if err != nil {
		return nil, &FetchError{DEID: id, Bending: bending, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{DEID: id, Bending: bending, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{DEID: id, Bending: bending, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{DEID: id, Bending: bending, Err: err}
	}
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return nil, &FetchError{DEID: id, Bending: bending, Err: fmt.Errorf("response is not valid JSON")}
	}
	return json.RawMessage(body), nil
}

// FetchAll queries every id in order. The first failure aborts the run and
// no partial result is returned.
func (c *Client) FetchAll(ctx context.Context, ids []int, bending bool) ([]json.RawMessage, error) {
	fragments := make([]json.RawMessage, 0, len(ids))
	for i, id := range ids {
		frag, err := c.FetchEnvelope(ctx, id, bending)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, frag)
		if (i+1)%25 == 0 {
			monitoring.Logf("fetched %d/%d envelopes", i+1, len(ids))
		}
	}
	monitoring.Logf("fetched %d envelopes from %s", len(fragments), c.baseURL)
	return fragments, nil
}

// EnvelopeDocument joins fragments into an envelope document (a JSON array).
func EnvelopeDocument(fragments []json.RawMessage) ([]byte, error) {
	if fragments == nil {
		fragments = []json.RawMessage{}
	}
	data, err := json.Marshal(fragments)
	if err != nil {
		return nil, fmt.Errorf("failed to build envelope document: %w", err)
	}
	return data, nil
}
