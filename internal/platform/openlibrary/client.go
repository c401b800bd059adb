// Package openlibrary fetches book metadata from the Open Library books API.
package openlibrary

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const DefaultBaseURL = "https://openlibrary.org"

type Client struct {
	httpClient *http.Client
	userAgent  string
	baseURL    string
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBackoff sets the first retry delay; later retries double it.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

func NewClient(userAgent string, rps, maxRetries int, opts ...Option) *Client {
	if rps < 1 {
		rps = 1
	}
	c := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		userAgent:  userAgent,
		baseURL:    DefaultBaseURL,
		limiter:    rate.NewLimiter(rate.Every(time.Second/time.Duration(rps)), 1),
		maxRetries: maxRetries,
		backoff:    time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Publisher struct {
	Name string `json:"name"`
}

type Author struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// BookDetails matches api/books?jscmd=data
type BookDetails struct {
	Title         string      `json:"title"`
	Subtitle      string      `json:"subtitle"`
	Publishers    []Publisher `json:"publishers"`
	PublishDate   string      `json:"publish_date"`
	Authors       []Author    `json:"authors"`
	NumberOfPages int         `json:"number_of_pages"`
	Notes         string      `json:"notes"`
}

// GetBooksByISBN returns details keyed by bare ISBN. ISBNs Open Library
// does not know are absent from the map.
func (c *Client) GetBooksByISBN(ctx context.Context, isbns []string) (map[string]BookDetails, error) {
	if len(isbns) == 0 {
		return nil, nil
	}

	bibkeys := make([]string, len(isbns))
	for i, isbn := range isbns {
		bibkeys[i] = "ISBN:" + isbn
	}
	u := fmt.Sprintf("%s/api/books?bibkeys=%s&jscmd=data&format=json",
		c.baseURL, url.QueryEscape(strings.Join(bibkeys, ",")))

	var res map[string]BookDetails
	if err := c.get(ctx, u, &res); err != nil {
		return nil, err
	}
	out := make(map[string]BookDetails, len(res))
	for key, d := range res {
		out[strings.TrimPrefix(key, "ISBN:")] = d
	}
	return out, nil
}

// StatusError is a non-200 answer.
type StatusError struct{ Code int }

func (e *StatusError) Error() string { return fmt.Sprintf("unexpected status code: %d", e.Code) }

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func (c *Client) get(ctx context.Context, u string, target any) error {
	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-time.After(c.backoff << (i - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := c.do(ctx, u, target)
		if err == nil {
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && !retryable(se.Code) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) do(ctx context.Context, u string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
