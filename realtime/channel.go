package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chatsync/logger"
	"chatsync/models"
)

// Channel is one supervised push connection. It redials after a drop until
// the reconnect policy gives up or Close is called.
type Channel struct {
	client   *Client
	route    string
	label    string
	identity models.Identity
	handler  Handler
	log      *logger.Logger

	// statusMu orders transitions and their delivery to handler.
	statusMu sync.Mutex

	mu     sync.Mutex
	status Status
	send   chan []byte

	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

// Status returns the current connection state.
func (ch *Channel) Status() Status {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.status
}

// Send queues a command for the write pump.
func (ch *Channel) Send(cmd models.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	ch.mu.Lock()
	send, status := ch.send, ch.status
	ch.mu.Unlock()

	if status != Open || send == nil {
		return ErrNotOpen
	}

	select {
	case send <- data:
		ch.client.metrics.CommandSent(cmd.CommandType())
		return nil
	default:
		return ErrSendBuffer
	}
}

// Close stops the supervisor and waits for the connection to shut down.
func (ch *Channel) Close() error {
	ch.closeOnce.Do(func() {
		if ch.cancel == nil {
			return
		}
		ch.setStatus(Closing)
		ch.cancel()
	})
	<-ch.done
	return nil
}

// Done is closed once the supervisor has exited.
func (ch *Channel) Done() <-chan struct{} {
	return ch.done
}

// setStatus records s and hands it to the handler. Once Closing, only
// Closed may follow.
func (ch *Channel) setStatus(s Status) {
	ch.statusMu.Lock()
	defer ch.statusMu.Unlock()

	ch.mu.Lock()
	if ch.status == s || (ch.status == Closing && s != Closed) {
		ch.mu.Unlock()
		return
	}
	prev := ch.status
	ch.status = s
	ch.mu.Unlock()

	switch {
	case s == Open:
		ch.client.metrics.ChannelOpened(ch.label)
	case prev == Open:
		ch.client.metrics.ChannelClosed(ch.label)
	}
	if ch.handler != nil {
		ch.handler.HandleStatus(s)
	}
}

func (ch *Channel) run(ctx context.Context) {
	defer close(ch.done)
	defer ch.setStatus(Closed)

	b := ch.client.backoff(ctx)
	for {
		if ctx.Err() != nil {
			return
		}
		ch.setStatus(Connecting)

		conn, err := ch.dial(ctx)
		if err == nil {
			b.Reset()
			ch.serve(ctx, conn)
		} else if ctx.Err() == nil {
			ch.log.Warn("dial failed", logger.Error(err))
		}

		if ctx.Err() != nil {
			return
		}
		ch.setStatus(Closed)

		if ch.client.policy.MaxAttempts < 0 {
			ch.log.Info("channel closed, reconnect disabled")
			return
		}
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			ch.log.Warn("giving up on channel", logger.Int("max_attempts", ch.client.policy.MaxAttempts))
			return
		}

		ch.client.metrics.Reconnect(ch.label)
		ch.log.Info("reconnecting", logger.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (ch *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := ch.client.dialer.DialContext(ctx, ch.client.endpoint(ch.route, ch.identity.Token), nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// serve runs one connection until it drops or ctx is cancelled.
func (ch *Channel) serve(ctx context.Context, conn *websocket.Conn) {
	connID := uuid.NewString()
	send := make(chan []byte, sendBuffer)
	stop := make(chan struct{})
	log := ch.log.WithField("conn_id", connID)

	ch.mu.Lock()
	ch.send = send
	ch.mu.Unlock()

	log.Info("channel open")
	ch.setStatus(Open)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ch.writePump(conn, send, stop, log)
	}()
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
		case <-stop:
		}
	}()

	ch.readPump(conn, log)

	ch.mu.Lock()
	ch.send = nil
	ch.mu.Unlock()

	close(stop)
	wg.Wait()
	conn.Close()
	log.Info("channel dropped")
}

func (ch *Channel) readPump(conn *websocket.Conn, log *logger.Logger) {
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket error", logger.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		frame, err := models.DecodeFrame(message)
		if err != nil {
			ch.client.metrics.FrameDropped(ch.label, "undecodable")
			log.Warn("dropping undecodable frame", logger.Error(err))
			continue
		}
		ch.client.metrics.FrameReceived(ch.label, frame.Type)
		if ch.handler != nil {
			ch.handler.HandleFrame(frame)
		}
	}
}

func (ch *Channel) writePump(conn *websocket.Conn, send <-chan []byte, stop <-chan struct{}, log *logger.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("write failed", logger.Error(err))
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		case <-stop:
			return
		}
	}
}
