package marketdata

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultDialTimeout  = 10 * time.Second
	defaultReadTimeout  = 90 * time.Second
	defaultPingInterval = 30 * time.Second
	initialBackoff      = time.Second
	maxBackoff          = time.Minute
)

// StreamConfig configures one websocket stream connection.
type StreamConfig struct {
	// URL is the full stream endpoint.
	URL string
	// DialTimeout bounds the connection handshake.
	DialTimeout time.Duration
	// ReadTimeout is the maximum silence tolerated before the connection is
	// considered dead. Pings keep a healthy connection inside it.
	ReadTimeout time.Duration
	// PingInterval is how often pings are sent.
	PingInterval time.Duration
}

func (c *StreamConfig) withDefaults() StreamConfig {
	out := *c
	if out.DialTimeout == 0 {
		out.DialTimeout = defaultDialTimeout
	}

	if out.ReadTimeout == 0 {
		out.ReadTimeout = defaultReadTimeout
	}

	if out.PingInterval == 0 {
		out.PingInterval = defaultPingInterval
	}

	return out
}

// MessageHandler consumes one raw stream message. A handler error is logged
// and the message dropped; it does not kill the connection.
type MessageHandler func(message []byte) error

// StateHandler is notified when the stream connects or disconnects.
type StateHandler func(connected bool)

// StreamClient maintains one websocket connection with automatic reconnect
// and exponential backoff. Messages are delivered to the handler in arrival
// order on a single goroutine.
type StreamClient struct {
	config  StreamConfig
	handler MessageHandler
	onState StateHandler
	log     *logger.Logger
}

// NewStreamClient creates a stream client. onState may be nil.
func NewStreamClient(config StreamConfig, handler MessageHandler, onState StateHandler, log *logger.Logger) *StreamClient {
	return &StreamClient{
		config:  config.withDefaults(),
		handler: handler,
		onState: onState,
		log:     log.Named("stream"),
	}
}

// Run connects and pumps messages until ctx is canceled. Every connection
// loss is reported through the state handler and retried with backoff; Run
// only returns on cancellation.
func (c *StreamClient) Run(ctx context.Context) error {
	retry := &backoff.Backoff{
		Min:    initialBackoff,
		Max:    maxBackoff,
		Factor: 2,
		Jitter: true,
	}

	for {
		started := time.Now()

		err := c.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A connection that lived long enough gets a fresh backoff window.
		if time.Since(started) > maxBackoff {
			retry.Reset()
		}

		wait := retry.Duration()

		c.log.Warn("stream connection lost, reconnecting",
			zap.String("url", c.config.URL),
			zap.Duration("backoff", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *StreamClient) runConnection(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.config.DialTimeout)
	defer cancel()

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, c.config.URL, nil)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeMarketDataStream, err, "failed to dial %s", c.config.URL)
	}

	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	defer conn.Close()

	c.log.Info("stream connected", zap.String("url", c.config.URL))

	if c.onState != nil {
		c.onState(true)
		defer c.onState(false)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	// Pinger holds the connection open and closes it when ctx ends, which
	// unblocks the read loop below.
	pingDone := make(chan struct{})
	defer close(pingDone)

	go func() {
		ticker := time.NewTicker(c.config.PingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				conn.Close()

				return
			case <-pingDone:
				return
			case <-ticker.C:
				deadline := time.Now().Add(c.config.DialTimeout)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					conn.Close()

					return
				}
			}
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout)); err != nil {
			return errors.Wrap(errors.ErrCodeMarketDataStream, "failed to set read deadline", err)
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(errors.ErrCodeMarketDataStream, "stream read failed", err)
		}

		if err := c.handler(message); err != nil {
			c.log.Error("dropping unparseable stream message", zap.Error(err))
		}
	}
}
