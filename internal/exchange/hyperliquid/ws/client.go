package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"hyperbot/internal/exchange"
	"hyperbot/internal/logger"
)

const (
	MainnetURL = "wss://api.hyperliquid.xyz/ws"
	TestnetURL = "wss://api.hyperliquid-testnet.xyz/ws"

	readLimit = 2 << 20
)

var ErrAlreadySubscribed = errors.New("userFills subscription is already running")

type Config struct {
	URL            string
	PingInterval   time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    int
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = TestnetURL
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 50 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 300 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	return c
}

// Client keeps one userFills subscription alive and reconnects with exponential backoff.
type Client struct {
	cfg    Config
	log    *logger.Logger
	dialer *websocket.Dialer

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	user    string
	writeMu sync.Mutex
}

var _ exchange.FillStream = (*Client)(nil)

func New(cfg Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		cfg:    cfg.withDefaults(),
		log:    log,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// SubscribeUserFills starts the connection loop and returns its event channel. The channel is
// closed after Close, after ctx is done, or after a Stopped event once reconnects are exhausted.
func (c *Client) SubscribeUserFills(ctx context.Context, user string) (<-chan exchange.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return nil, ErrAlreadySubscribed
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.user = user

	events := make(chan exchange.Event, 100)
	go func() {
		defer close(c.done)
		c.run(runCtx, user, events)
	}()

	return events, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (c *Client) logEntry() *logrus.Entry {
	entry := c.log.WithComponent("hyperliquid_ws")
	if c.user != "" {
		entry = entry.WithField("user", c.user)
	}
	return entry
}
