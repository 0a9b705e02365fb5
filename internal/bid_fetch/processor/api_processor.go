package processor

import (
	"bid-fetch/internal/bid_fetch/model"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	listOperation      = "getBidPblancListInfoThng"
	defaultMaxAttempts = 5
	defaultBackoffStep = time.Second
	defaultCallTimeout = 30 * time.Second
)

var (
	// ErrRetriesExhausted is returned once every attempt failed.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrResultCode is returned when the API answered with a non-success resultCode.
	ErrResultCode = errors.New("api result code")
)

// APIError is the tagged failure of a search call.
type APIError struct {
	Attempts   int
	ResultCode string
	ResultMsg  string
	Err        error // ErrRetriesExhausted or ErrResultCode
	Last       error // last transport/decode failure, if any
}

func (e *APIError) Error() string {
	if errors.Is(e.Err, ErrResultCode) {
		return fmt.Sprintf("API returned result code %s: %s", e.ResultCode, e.ResultMsg)
	}
	return fmt.Sprintf("API request failed after %d consecutive attempts", e.Attempts)
}

func (e *APIError) Unwrap() error { return e.Err }

// SearchClient calls the G2B bid notice list operation.
type SearchClient struct {
	Log        *zap.Logger
	HTTPClient *http.Client
	BaseURL    string
	ServiceKey string

	MaxAttempts int           // default 5
	BackoffStep time.Duration // wait before attempt n+1 is n*BackoffStep
	Timeout     time.Duration // per call

	// Sleep waits between attempts; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewSearchClient creates a client with the default retry policy.
func NewSearchClient(log *zap.Logger, httpClient *http.Client, baseURL, serviceKey string) *SearchClient {
	return &SearchClient{
		Log:         log,
		HTTPClient:  httpClient,
		BaseURL:     baseURL,
		ServiceKey:  serviceKey,
		MaxAttempts: defaultMaxAttempts,
		BackoffStep: defaultBackoffStep,
		Timeout:     defaultCallTimeout,
	}
}

// Search runs one list query, retrying network errors, timeouts, non-200 statuses and bodies
// that are not a JSON envelope. The wait between attempts grows linearly (1s, 2s, 3s, ...).
// A well-formed envelope with a non-00 resultCode is returned as an *APIError right away.
func (c *SearchClient) Search(ctx context.Context, params model.SearchParams) (*model.Envelope, error) {
	params = params.WithDefaults()
	maxAttempts := c.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		env, err := c.fetchOnce(ctx, params, attempt)
		if err == nil {
			if !env.OK() {
				h := env.Response.Header
				c.Log.Warn("API returned error result code",
					zap.String("resultCode", h.ResultCode),
					zap.String("resultMsg", h.ResultMsg),
					zap.Int("attempt", attempt),
				)
				return nil, &APIError{Attempts: attempt, ResultCode: h.ResultCode, ResultMsg: h.ResultMsg, Err: ErrResultCode}
			}
			return env, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == maxAttempts {
			break
		}

		delay := c.backoff(attempt)
		c.Log.Info("Retry scheduled",
			zap.String("keyword", params.Keyword),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", maxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	c.Log.Error("API retry max attempts exceeded, giving up",
		zap.String("keyword", params.Keyword),
		zap.Int("maxAttempts", maxAttempts),
		zap.Error(lastErr),
	)
	return nil, &APIError{Attempts: maxAttempts, Err: ErrRetriesExhausted, Last: lastErr}
}

func (c *SearchClient) backoff(attempt int) time.Duration {
	step := c.BackoffStep
	if step <= 0 {
		step = defaultBackoffStep
	}
	return time.Duration(attempt) * step
}

func (c *SearchClient) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}

// fetchOnce performs a single attempt. Every error it returns is retryable.
func (c *SearchClient) fetchOnce(ctx context.Context, params model.SearchParams, attempt int) (*model.Envelope, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := c.buildHTTPRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Log.Error("Failed to fetch API",
			zap.String("url", req.URL.Host+req.URL.Path),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.Log.Warn("Failed to close response body", zap.Error(err))
		}
	}(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.Log.Error("Failed to read response body", zap.Int("attempt", attempt), zap.Error(err))
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.Log.Warn("API request failed",
			zap.Int("status", resp.StatusCode),
			zap.Int("attempt", attempt),
		)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	c.Log.Debug("Fetched API response",
		zap.Int("attempt", attempt),
		zap.Int("bodySize", len(body)),
	)

	env, err := model.DecodeEnvelope(body)
	if err != nil {
		c.Log.Warn("Invalid API envelope",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return nil, err
	}
	return env, nil
}

// buildHTTPRequest builds the list query. Dates are widened to whole days (YYYYMMDDHHMM).
func (c *SearchClient) buildHTTPRequest(ctx context.Context, params model.SearchParams) (*http.Request, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	u = u.JoinPath(listOperation)

	q := u.Query()
	q.Set("serviceKey", c.ServiceKey)
	q.Set("type", "json")
	q.Set("numOfRows", strconv.Itoa(params.NumRows))
	q.Set("pageNo", strconv.Itoa(params.PageNo))
	q.Set("inqryDiv", "1")
	q.Set("inqryBgnDt", params.StartDate+"0000")
	q.Set("inqryEndDt", params.EndDate+"2359")
	q.Set("bidNtceNm", params.Keyword)
	if params.Institution != "" {
		q.Set("ntceInsttNm", params.Institution)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
