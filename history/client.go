// Package history fetches conversation metadata and historical message pages
// over the server's REST API.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"chatsync/logger"
	"chatsync/metrics"
	"chatsync/middleware"
	"chatsync/models"
)

var (
	ErrUnauthorized = errors.New("history: unauthorized")
	ErrNotFound     = errors.New("history: not found")
	ErrStatus       = errors.New("history: unexpected status")
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	Identity  middleware.IdentitySource
	Timeout   time.Duration
	Rate      float64
	Burst     int
	Transport http.RoundTripper
	Logger    *logger.Logger
	Metrics   *metrics.Metrics
}

// Client talks to the REST API with the signed-in identity's token.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api url must use http or https, got %q", base.Scheme)
	}
	if opts.Identity == nil {
		return nil, errors.New("history: identity source is required")
	}

	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		base: base,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: &middleware.TokenTransport{Source: opts.Identity, Base: opts.Transport},
		},
		limiter: rate.NewLimiter(limit, burst),
		log:     logger.OrNop(opts.Logger),
		metrics: opts.Metrics,
	}, nil
}

// Conversation fetches the metadata of a direct or group conversation.
func (c *Client) Conversation(ctx context.Context, ref models.ConversationRef) (*models.Conversation, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	path := "conversations/" + ref.Name + "/"
	if ref.Kind == models.KindGroup {
		path = "group_conversations/" + ref.Name + "/"
	}

	var conv models.Conversation
	if err := c.get(ctx, path, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// Messages fetches one page of a conversation's history, newest first.
func (c *Client) Messages(ctx context.Context, ref models.ConversationRef, page int) (*models.Page, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if page < 1 {
		return nil, fmt.Errorf("history: invalid page %d", page)
	}

	path, param := "messages/", "conversation"
	if ref.Kind == models.KindGroup {
		path, param = "group_messages/", "group_conversation"
	}
	query := url.Values{}
	query.Set(param, ref.Name)
	query.Set("page", strconv.Itoa(page))

	var p models.Page
	if err := c.get(ctx, path, query, &p); err != nil {
		c.metrics.PageFetched("error")
		return nil, err
	}
	c.metrics.PageFetched("ok")
	return &p, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.base.ResolveReference(&url.URL{Path: path})
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("get %s: %w", path, ErrUnauthorized)
	case http.StatusNotFound:
		return fmt.Errorf("get %s: %w", path, ErrNotFound)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn("unexpected api response",
			logger.String("path", path),
			logger.Int("status", resp.StatusCode),
			logger.String("body", string(body)))
		return fmt.Errorf("get %s: %w %d", path, ErrStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
