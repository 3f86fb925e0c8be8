// Package directory implements the resilient client for the remote pharmacy
// directory: phone-key lookup with bounded exponential backoff and defensive
// parsing of partial or malformed records.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/biancassilva/pharmacy-sales-chatbot/agent/contract"
)

const maxResponseSizeBytes = 2 << 20

type Config struct {
	BaseURL     string        `envconfig:"BASE_URL" split_words:"true" default:"https://67e14fb758cc6bf785254550.mockapi.io/pharmacies"`
	Timeout     time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	MaxAttempts int           `envconfig:"MAX_ATTEMPTS" split_words:"true" default:"3"`
	BaseDelay   time.Duration `envconfig:"BASE_DELAY" split_words:"true" default:"500ms"`
	MaxElapsed  time.Duration `envconfig:"MAX_ELAPSED" split_words:"true" default:"15s"`
}

// Option customizes a Client.
type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// Client talks to the pharmacy directory over HTTP. Safe for concurrent use.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
	maxElapsed  time.Duration
}

var _ contractx.Directory = (*Client)(nil)

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("directory base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid directory base url: %w", err)
	}
	if cfg.MaxAttempts <= 0 {
		return nil, errors.New("max attempts must be positive")
	}
	if cfg.BaseDelay <= 0 {
		return nil, errors.New("base delay must be positive")
	}
	if cfg.MaxElapsed <= 0 {
		return nil, errors.New("max elapsed must be positive")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: timeout},
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxElapsed:  cfg.MaxElapsed,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// NormalizePhone strips formatting punctuation from a phone key, keeping
// digits and a leading plus sign. Keys differing only by formatting
// normalize identically.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for i, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Lookup finds the caller record whose phone matches the given key.
// Returns ErrNotFound when no record matches, ErrTransient when retries are
// exhausted and ErrMalformedResponse when the matching record cannot be
// coerced. Only transient failures retry.
func (c *Client) Lookup(ctx context.Context, phoneKey string) (*contractx.CallerRecord, error) {
	key := NormalizePhone(phoneKey)
	if key == "" {
		return nil, fmt.Errorf("%w: empty phone key", contractx.ErrValidation)
	}

	start := time.Now()
	var raws []rawRecord
	attempts, err := c.withRetry(ctx, "lookup", func(ctx context.Context) error {
		var fetchErr error
		raws, fetchErr = c.fetchAll(ctx)
		return fetchErr
	})
	elapsed := time.Since(start)
	if err != nil {
		log.Error().Str("op", "lookup").Int("attempts", attempts).Dur("elapsed", elapsed).Err(err).
			Msg("directory lookup failed")
		return nil, err
	}

	for _, raw := range raws {
		if NormalizePhone(raw.Phone) != key {
			continue
		}
		rec, coerceErr := coerceRecord(raw)
		if coerceErr != nil {
			log.Error().Str("op", "lookup").Int("attempts", attempts).Dur("elapsed", elapsed).Err(coerceErr).
				Msg("directory record malformed")
			return nil, coerceErr
		}
		log.Info().Str("op", "lookup").Int("attempts", attempts).Dur("elapsed", elapsed).
			Str("pharmacy_id", rec.ID).Msg("directory lookup matched")
		return &rec, nil
	}

	log.Info().Str("op", "lookup").Int("attempts", attempts).Dur("elapsed", elapsed).
		Msg("directory lookup found no match")
	return nil, contractx.ErrNotFound
}

// ListAll fetches every directory record. Individual malformed entries are
// skipped after logging rather than failing the listing.
func (c *Client) ListAll(ctx context.Context) ([]contractx.CallerRecord, error) {
	var raws []rawRecord
	attempts, err := c.withRetry(ctx, "list_all", func(ctx context.Context) error {
		var fetchErr error
		raws, fetchErr = c.fetchAll(ctx)
		return fetchErr
	})
	if err != nil {
		log.Error().Str("op", "list_all").Int("attempts", attempts).Err(err).Msg("directory listing failed")
		return nil, err
	}

	records := make([]contractx.CallerRecord, 0, len(raws))
	for _, raw := range raws {
		rec, coerceErr := coerceRecord(raw)
		if coerceErr != nil {
			log.Warn().Str("op", "list_all").Err(coerceErr).Msg("skipping malformed directory record")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// HighVolume lists records at or above the volume threshold. A non-positive
// threshold uses the standard high-volume cutoff.
func (c *Client) HighVolume(ctx context.Context, threshold int) ([]contractx.CallerRecord, error) {
	if threshold <= 0 {
		threshold = contractx.HighVolumeThreshold
	}
	all, err := c.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	high := make([]contractx.CallerRecord, 0, len(all))
	for _, rec := range all {
		if rec.RxVolume >= threshold {
			high = append(high, rec)
		}
	}
	return high, nil
}

// Create posts a new record to the directory and returns the stored copy.
func (c *Client) Create(ctx context.Context, rec contractx.CallerRecord) (*contractx.CallerRecord, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal directory record: %w", err)
	}

	var created rawRecord
	attempts, err := c.withRetry(ctx, "create", func(ctx context.Context) error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
		if reqErr != nil {
			return fmt.Errorf("build directory request: %w", reqErr)
		}
		req.Header.Set("Content-Type", "application/json")

		body, doErr := c.do(req)
		if doErr != nil {
			return doErr
		}
		return decodeBody(body, &created)
	})
	if err != nil {
		log.Error().Str("op", "create").Int("attempts", attempts).Err(err).Msg("directory create failed")
		return nil, err
	}

	stored, err := coerceRecord(created)
	if err != nil {
		return nil, err
	}
	log.Info().Str("op", "create").Int("attempts", attempts).Str("pharmacy_id", stored.ID).
		Msg("directory record created")
	return &stored, nil
}

// Available probes the directory with a single request and no retries.
func (c *Client) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("directory availability probe failed")
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSizeBytes))
	return resp.StatusCode == http.StatusOK
}

// withRetry runs fn with bounded exponential backoff. Only errors wrapping
// ErrTransient retry; the delay doubles per attempt and the total elapsed
// time never exceeds maxElapsed, so the caller's latency stays bounded even
// under persistent failure.
func (c *Client) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) (int, error) {
	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, lastErr
		}
		if !errors.Is(lastErr, contractx.ErrTransient) {
			return attempt, lastErr
		}
		if attempt == c.maxAttempts {
			return attempt, lastErr
		}

		delay := backoffDelay(c.baseDelay, attempt, c.maxElapsed)
		if time.Since(start)+delay > c.maxElapsed {
			return attempt, lastErr
		}

		log.Warn().Str("op", op).Int("attempt", attempt).Dur("delay", delay).Err(lastErr).
			Msg("transient directory failure, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, lastErr
		case <-timer.C:
		}
	}
	return c.maxAttempts, lastErr
}

// backoffDelay doubles base per attempt, clamped at max so the shift never
// overflows for large attempt counts.
func backoffDelay(base time.Duration, attempt int, max time.Duration) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= max {
			return max
		}
		delay <<= 1
	}
	if delay > max {
		return max
	}
	return delay
}

func (c *Client) fetchAll(ctx context.Context) ([]rawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build directory request: %w", err)
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var raws []rawRecord
	if err := decodeBody(body, &raws); err != nil {
		return nil, err
	}
	return raws, nil
}

// do executes the request and classifies the outcome: network errors,
// timeouts, 429 and 5xx are transient; other non-2xx statuses are malformed.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", contractx.ErrTransient, err)
	}

	switch {
	case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: directory status=%d", contractx.ErrTransient, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: directory status=%d", contractx.ErrMalformedResponse, resp.StatusCode)
	}
}

func decodeBody(body []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: decode payload: %v", contractx.ErrMalformedResponse, err)
	}
	return nil
}

// rawRecord tolerates the loose shapes the directory emits: numeric or
// string ids, rx_volume as number or numeric string, unknown extra fields.
type rawRecord struct {
	ID            any    `json:"id"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Location      string `json:"location"`
	RxVolume      any    `json:"rx_volume"`
	ContactPerson string `json:"contact_person"`
	Email         string `json:"email"`
	Notes         string `json:"notes"`
}

// coerceRecord validates mandatory fields and applies documented defaults
// for the rest: volume defaults to 0, contact fields default to empty.
func coerceRecord(raw rawRecord) (contractx.CallerRecord, error) {
	id := coerceString(raw.ID)
	phone := strings.TrimSpace(raw.Phone)
	if id == "" || phone == "" {
		return contractx.CallerRecord{}, fmt.Errorf("%w: missing mandatory id/phone", contractx.ErrMalformedResponse)
	}

	volume, ok := coerceVolume(raw.RxVolume)
	if !ok {
		log.Warn().Str("pharmacy_id", id).Any("rx_volume", raw.RxVolume).
			Msg("unparseable rx_volume, defaulting to 0")
		volume = 0
	}

	return contractx.CallerRecord{
		ID:            id,
		Name:          strings.TrimSpace(raw.Name),
		Phone:         phone,
		Location:      strings.TrimSpace(raw.Location),
		RxVolume:      volume,
		ContactPerson: strings.TrimSpace(raw.ContactPerson),
		Email:         strings.TrimSpace(raw.Email),
		Notes:         strings.TrimSpace(raw.Notes),
	}, nil
}

func coerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func coerceVolume(v any) (int, bool) {
	switch val := v.(type) {
	case nil:
		return 0, true
	case json.Number:
		n, err := val.Int64()
		if err != nil || n < 0 {
			return 0, false
		}
		return int(n), true
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return 0, true
		}
		var n int
		if _, err := fmt.Sscanf(trimmed, "%d", &n); err != nil || n < 0 {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
