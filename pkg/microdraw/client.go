// Package microdraw retrieves annotated datasets from a MicroDraw server and
// caches them as JSON.
package microdraw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"microdraw3d/internal/models"
)

// DefaultBaseURL is the public MicroDraw server.
const DefaultBaseURL = "http://microdraw.pasteur.fr"

// Options configures a Client.
type Options struct {
	// BaseURL is the server root, without a trailing slash
	BaseURL string

	// Token authenticates requests
	Token string

	// Concurrency is the number of slices fetched at once
	Concurrency int

	// RequestsPerSecond limits the request rate; zero or less disables the limit
	RequestsPerSecond float64

	// MaxRetries is the number of additional attempts on transient failures
	MaxRetries int

	// Timeout bounds each request
	Timeout time.Duration

	// HTTPClient overrides the default client
	HTTPClient *http.Client
}

// DefaultOptions returns options for the public server.
func DefaultOptions() Options {
	return Options{
		BaseURL:           DefaultBaseURL,
		Concurrency:       4,
		RequestsPerSecond: 10,
		MaxRetries:        3,
		Timeout:           30 * time.Second,
	}
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Client downloads projects, datasets and slice annotations.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a client. A nil logger discards diagnostics.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), max(1, opts.Concurrency))
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{opts: opts, http: hc, limiter: limiter, logger: logger}
}

// ProjectURL returns the definition URL of a project.
func (c *Client) ProjectURL(project string) string {
	q := url.Values{}
	q.Set("token", c.opts.Token)
	return c.opts.BaseURL + "/project/json/" + url.PathEscape(project) + "?" + q.Encode()
}

// SliceURL returns the annotation URL of one slice of a source.
func (c *Client) SliceURL(source, project string, slice int) string {
	q := url.Values{}
	q.Set("source", source)
	q.Set("project", project)
	q.Set("slice", strconv.Itoa(slice))
	q.Set("token", c.opts.Token)
	return c.opts.BaseURL + "/api?" + q.Encode()
}

// DownloadProject fetches the definition of a project, which may list
// several datasets.
func (c *Client) DownloadProject(ctx context.Context, project string) (json.RawMessage, error) {
	body, err := c.get(ctx, c.ProjectURL(project))
	if err != nil {
		return nil, fmt.Errorf("failed to download project %s: %w", project, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("failed to download project %s: response is not JSON", project)
	}
	return body, nil
}

// DownloadDataset fetches a dataset definition from its source URL. The
// returned dataset has no slices yet.
func (c *Client) DownloadDataset(ctx context.Context, source string) (*models.Dataset, error) {
	body, err := c.get(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("failed to download dataset %s: %w", source, err)
	}

	var def struct {
		PixelsPerMeter float64           `json:"pixelsPerMeter"`
		TileSources    []json.RawMessage `json:"tileSources"`
	}
	if err := json.Unmarshal(body, &def); err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s: %w", source, err)
	}

	return &models.Dataset{
		PixelsPerMeter: def.PixelsPerMeter,
		NumSlices:      len(def.TileSources),
		Slices:         []models.SliceAnnotation{},
		Project:        body,
	}, nil
}

// DownloadSlice fetches every region record drawn on one slice.
func (c *Client) DownloadSlice(ctx context.Context, source, project string, slice int) (models.SliceAnnotation, error) {
	body, err := c.get(ctx, c.SliceURL(source, project, slice))
	if err != nil {
		return nil, fmt.Errorf("failed to download slice %d: %w", slice, err)
	}

	var regions models.SliceAnnotation
	if err := json.Unmarshal(body, &regions); err != nil {
		return nil, fmt.Errorf("failed to parse slice %d: %w", slice, err)
	}
	if regions == nil {
		regions = models.SliceAnnotation{}
	}
	return regions, nil
}

// DownloadAll fetches a dataset definition and the regions of all its
// slices. Slices are fetched concurrently and stored in slice order.
func (c *Client) DownloadAll(ctx context.Context, source, project string) (*models.Dataset, error) {
	ds, err := c.DownloadDataset(ctx, source)
	if err != nil {
		return nil, err
	}

	slices := make([]models.SliceAnnotation, ds.NumSlices)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for s := range slices {
		g.Go(func() error {
			regions, err := c.DownloadSlice(gctx, source, project, s)
			if err != nil {
				return err
			}
			slices[s] = regions
			c.logger.Debug("downloaded slice", zap.Int("slice", s), zap.Int("regions", len(regions)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ds.Slices = slices
	c.logger.Info("downloaded dataset", zap.String("source", source), zap.Int("slices", ds.NumSlices))
	return ds, nil
}

// get performs a rate-limited GET, retrying transport errors and 5xx
// responses with exponential backoff.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	operation := func() ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			var urlErr *url.Error
			if errors.As(err, &urlErr) {
				err = fmt.Errorf("GET %s: %w", redact(rawURL), urlErr.Err)
			}
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			io.Copy(io.Discard, resp.Body)
			statusErr := &StatusError{URL: redact(rawURL), StatusCode: resp.StatusCode}
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return nil, statusErr
			}
			return nil, backoff.Permanent(statusErr)
		}

		return io.ReadAll(resp.Body)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.opts.MaxRetries+1)),
		backoff.WithNotify(func(err error, d time.Duration) {
			c.logger.Debug("retrying request", zap.String("url", redact(rawURL)), zap.Duration("delay", d), zap.Error(err))
		}),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Unwrap()
		}
		return nil, err
	}
	return body, nil
}

// redact hides the token of a URL in logs and errors.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "xxx")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
