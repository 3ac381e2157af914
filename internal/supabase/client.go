// Package supabase pulls complete tables from a Supabase (PostgREST) REST
// endpoint, paging with Range headers.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/italolelis/asset_harvester/internal/harvest"
	"github.com/italolelis/asset_harvester/internal/logctx"
	"github.com/italolelis/asset_harvester/internal/telemetry"
)

const bodyExcerptSize = 200

// Options configures the client.
type Options struct {
	// BaseURL is the project URL, e.g. https://<ref>.supabase.co.
	BaseURL string

	// APIKey is sent as the apikey header and as the bearer token.
	APIKey string

	// CollectionPath is the REST prefix in front of resource names.
	// Default: /rest/v1
	CollectionPath string

	// Select is the PostgREST column selection.
	// Default: *
	Select string

	// PageSize is used when FetchAll is called with a non-positive page size.
	// Default: 1000
	PageSize int

	// Timeout for individual page requests.
	// Default: 30s
	Timeout time.Duration

	// Transport is the base round tripper. Default: http.DefaultTransport.
	Transport http.RoundTripper

	// Telemetry receives page metrics. Optional.
	Telemetry *telemetry.Telemetry
}

// Client pages through remote resources.
type Client struct {
	httpClient *http.Client
	opts       Options
}

var _ harvest.Fetcher = (*Client)(nil)

func NewClient(opts Options) *Client {
	if opts.CollectionPath == "" {
		opts.CollectionPath = "/rest/v1"
	}

	if opts.Select == "" {
		opts.Select = "*"
	}

	if opts.PageSize <= 0 {
		opts.PageSize = 1000
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.APIKey})

	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &oauth2.Transport{
				Source: tokenSource,
				Base:   telemetry.Transport(opts.Transport),
			},
		},
		opts: opts,
	}
}

// FetchAll requests [offset, offset+pageSize) until a page comes back with
// fewer than pageSize rows. A server-advertised total is never consulted.
func (c *Client) FetchAll(ctx context.Context, resource string, pageSize int) (harvest.RecordSet, error) {
	if pageSize <= 0 {
		pageSize = c.opts.PageSize
	}

	logger := logctx.LoggerFromContext(ctx).With("table", resource)

	records := make(harvest.RecordSet, 0, pageSize)
	offset := 0

	for {
		page, err := c.fetchPage(ctx, resource, offset, pageSize)
		if err != nil {
			return nil, err
		}

		logger.Debug("fetched page", "offset", offset, "rows", len(page))

		records = append(records, page...)

		if len(page) < pageSize {
			return records, nil
		}

		offset += pageSize
	}
}

func (c *Client) fetchPage(ctx context.Context, resource string, offset, pageSize int) (harvest.RecordSet, error) {
	query := url.Values{"select": {c.opts.Select}}

	req, err := c.newRequest(ctx, resource, query)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Range-Unit", "items")
	req.Header.Set("Range", fmt.Sprintf("%d-%d", offset, offset+pageSize-1))

	page, _, err := c.do(req, resource, http.StatusOK, http.StatusPartialContent)

	result := "success"
	if err != nil {
		result = "error"
	}

	c.opts.Telemetry.RecordPage(ctx, result, len(page))

	return page, err
}

// Probe requests up to limit rows of each candidate in order and returns the
// first one that answers 200 together with its rows.
func (c *Client) Probe(ctx context.Context, candidates []string, limit int) (string, harvest.RecordSet, error) {
	logger := logctx.LoggerFromContext(ctx)

	if limit <= 0 {
		limit = 10
	}

	for _, name := range harvest.UniqueNames(candidates) {
		req, err := c.newRequest(ctx, name, url.Values{
			"select": {c.opts.Select},
			"limit":  {strconv.Itoa(limit)},
		})
		if err != nil {
			return "", nil, err
		}

		rows, _, err := c.do(req, name, http.StatusOK)
		if err != nil {
			if ctx.Err() != nil {
				return "", nil, ctx.Err()
			}

			logger.Info("probe miss", "table", name, "err", err)

			continue
		}

		logger.Info("probe hit", "table", name, "rows", len(rows))

		return name, rows, nil
	}

	return "", nil, ErrNoResource
}

func (c *Client) newRequest(ctx context.Context, resource string, query url.Values) (*http.Request, error) {
	endpoint := strings.TrimRight(c.opts.BaseURL, "/") + "/" +
		strings.Trim(c.opts.CollectionPath, "/") + "/" + url.PathEscape(resource) +
		"?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &ResourceFetchError{Resource: resource, Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("apikey", c.opts.APIKey)
	req.Header.Set("Accept", "application/json")

	return req, nil
}

// do sends req and decodes a JSON array body when the status is accepted.
func (c *Client) do(req *http.Request, resource string, accepted ...int) (harvest.RecordSet, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &ResourceFetchError{Resource: resource, Err: err}
	}
	defer resp.Body.Close()

	if !acceptedStatus(resp.StatusCode, accepted) {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, bodyExcerptSize))

		return nil, resp.StatusCode, &ResourceFetchError{
			Resource:   resource,
			StatusCode: resp.StatusCode,
			Body:       string(excerpt),
		}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()

	var page harvest.RecordSet
	if err := dec.Decode(&page); err != nil {
		return nil, resp.StatusCode, &ResourceFetchError{
			Resource:   resource,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode page: %w", err),
		}
	}

	return page, resp.StatusCode, nil
}

func acceptedStatus(code int, accepted []int) bool {
	for _, a := range accepted {
		if code == a {
			return true
		}
	}

	return false
}
