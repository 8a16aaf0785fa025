// Package realtime owns the push-channel connections: one websocket per
// active view, supervised with bounded exponential backoff.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"chatsync/logger"
	"chatsync/metrics"
	"chatsync/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum inbound frame size; a last-50 snapshot fits comfortably.
	maxFrameSize = 1 << 20
	// Outbound commands buffered per connection.
	sendBuffer = 256
)

var (
	ErrNotOpen    = errors.New("realtime: channel is not open")
	ErrSendBuffer = errors.New("realtime: send buffer full")
)

// Handler receives everything a channel observes. Calls come from the
// channel's goroutines; HandleStatus(Open) always precedes the frames of
// that connection.
type Handler interface {
	HandleFrame(models.Frame)
	HandleStatus(Status)
}

// ReconnectPolicy bounds the supervisor's backoff. MaxAttempts < 0 disables
// reconnection, 0 retries forever.
type ReconnectPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     int
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	Reconnect ReconnectPolicy
	Dialer    *websocket.Dialer
	Logger    *logger.Logger
	Metrics   *metrics.Metrics
}

// Client opens push channels against one server.
type Client struct {
	base    *url.URL
	policy  ReconnectPolicy
	dialer  *websocket.Dialer
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse websocket url: %w", err)
	}
	if base.Scheme != "ws" && base.Scheme != "wss" {
		return nil, fmt.Errorf("websocket url must use ws or wss, got %q", base.Scheme)
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		}
	}
	policy := opts.Reconnect
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = 500 * time.Millisecond
	}
	if policy.MaxInterval < policy.InitialInterval {
		policy.MaxInterval = 30 * time.Second
	}

	return &Client{
		base:    base,
		policy:  policy,
		dialer:  dialer,
		log:     logger.OrNop(opts.Logger),
		metrics: opts.Metrics,
	}, nil
}

// Open starts a supervised channel on route ("chats/alice__bob/",
// "notifications/"). Without a usable identity nothing is dialed and the
// channel stays Uninstantiated. label names the channel in logs and metrics.
func (c *Client) Open(ctx context.Context, route, label string, id *models.Identity, h Handler) *Channel {
	ch := &Channel{
		client:  c,
		route:   route,
		label:   label,
		handler: h,
		status:  Uninstantiated,
		done:    make(chan struct{}),
		log:     c.log.WithField("channel", label).WithField("route", route),
	}

	if !id.Valid() {
		ch.log.Debug("no identity, channel not started")
		close(ch.done)
		return ch
	}

	ch.identity = *id
	runCtx, cancel := context.WithCancel(ctx)
	ch.cancel = cancel
	go ch.run(runCtx)
	return ch
}

// endpoint builds the dial URL. The token travels as a query parameter
// because browsers and the server's auth middleware cannot use headers on
// the websocket handshake.
func (c *Client) endpoint(route, token string) string {
	ref, _ := url.Parse(strings.TrimLeft(route, "/"))
	u := c.base.ResolveReference(ref)
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.policy.InitialInterval
	exp.MaxInterval = c.policy.MaxInterval
	exp.MaxElapsedTime = 0
	exp.Reset()

	var b backoff.BackOff = exp
	if c.policy.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(c.policy.MaxAttempts))
	}
	return backoff.WithContext(b, ctx)
}
