package rest

import (
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"hyperbot/internal/exchange"
	"hyperbot/internal/logger"
	"hyperbot/internal/models"
)

const (
	MainnetURL = "https://api.hyperliquid.xyz"
	TestnetURL = "https://api.hyperliquid-testnet.xyz"
)

type Config struct {
	BaseURL           string
	AccountAddress    string
	PrivateKey        string
	VaultAddress      string
	Mainnet           bool
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client talks to the Hyperliquid info and exchange endpoints.
// Without a private key it serves info requests only.
type Client struct {
	baseURL    string
	user       string
	vault      string
	mainnet    bool
	wallet     *wallet
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger

	lastNonce atomic.Uint64

	metaMu sync.Mutex
	meta   map[string]models.AssetMeta
}

var (
	_ exchange.InfoClient    = (*Client)(nil)
	_ exchange.TradingClient = (*Client)(nil)
)

func New(cfg Config, log *logger.Logger) (*Client, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = TestnetURL
		if cfg.Mainnet {
			baseURL = MainnetURL
		}
	}

	c := &Client{
		baseURL:    baseURL,
		user:       strings.ToLower(strings.TrimSpace(cfg.AccountAddress)),
		vault:      strings.ToLower(strings.TrimSpace(cfg.VaultAddress)),
		mainnet:    cfg.Mainnet,
		httpClient: cfg.HTTPClient,
		log:        log,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if c.log == nil {
		c.log = logger.Nop()
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 1)

	if strings.TrimSpace(cfg.PrivateKey) != "" {
		w, err := newWalletFromHex(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		c.wallet = w
		if c.user == "" {
			c.user = w.hexAddress()
		}
	}

	return c, nil
}

// User returns the account address fills and open orders are queried for.
func (c *Client) User() string {
	return c.user
}

// nextNonce returns a strictly increasing millisecond timestamp.
func (c *Client) nextNonce() uint64 {
	for {
		now := uint64(time.Now().UnixMilli())
		last := c.lastNonce.Load()
		if now <= last {
			now = last + 1
		}
		if c.lastNonce.CompareAndSwap(last, now) {
			return now
		}
	}
}

func (c *Client) logEntry() *logrus.Entry {
	return c.log.WithComponent("hyperliquid_rest")
}
