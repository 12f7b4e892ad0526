package lmnt

import (
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the default LMNT API base URL.
	DefaultBaseURL = "https://api.lmnt.com"

	// StreamPath is the path of the full-duplex synthesis endpoint.
	StreamPath = "/v1/ai/speech/stream"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the default maximum number of retries.
	DefaultMaxRetries = 2

	// EnvAPIKey is the environment variable consulted when NewClient is
	// given an empty API key.
	EnvAPIKey = "LMNT_API_KEY"
)

// Client is the LMNT API client.
type Client struct {
	// Speech provides one-shot synthesis and voice conversion.
	Speech *SpeechService

	// Voices provides voice management operations.
	Voices *VoiceService

	// Account provides account information.
	Account *AccountService

	// Sessions opens full-duplex streaming synthesis sessions.
	Sessions *SessionService

	config *clientConfig
	http   *httpClient
}

// clientConfig holds the client configuration.
type clientConfig struct {
	apiKey     string
	baseURL    string
	streamURL  string
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	logger     *slog.Logger
	dialer     Dialer
}

// Option is a function that configures the client.
type Option func(*clientConfig)

// WithBaseURL sets a custom base URL for the REST API. Unless WithStreamURL
// is also given, the streaming URL is derived from it.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithStreamURL sets the full WebSocket URL of the streaming endpoint.
func WithStreamURL(url string) Option {
	return func(c *clientConfig) {
		c.streamURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithTimeout sets the request timeout. It also bounds the WebSocket
// handshake of streaming sessions.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithRetry sets the maximum number of retries for transient errors.
func WithRetry(maxRetries int) Option {
	return func(c *clientConfig) {
		c.maxRetries = maxRetries
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithDialer replaces the WebSocket dialer used by streaming sessions.
func WithDialer(d Dialer) Option {
	return func(c *clientConfig) {
		c.dialer = d
	}
}

// NewClient creates a new LMNT API client.
//
// If apiKey is empty, the LMNT_API_KEY environment variable is used. A
// client without a key can be constructed, but every call on it fails with
// a configuration error.
//
// Example:
//
//	client := lmnt.NewClient("your-api-key")
//	client := lmnt.NewClient("", lmnt.WithTimeout(2*time.Minute))
func NewClient(apiKey string, opts ...Option) *Client {
	if apiKey == "" {
		apiKey = os.Getenv(EnvAPIKey)
	}
	cfg := &clientConfig{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{
			Timeout: cfg.timeout,
		}
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.streamURL == "" {
		cfg.streamURL = streamURLFor(cfg.baseURL)
	}
	if cfg.dialer == nil {
		cfg.dialer = &WebSocketDialer{HandshakeTimeout: cfg.timeout}
	}

	c := &Client{
		config: cfg,
		http:   newHTTPClient(cfg),
	}

	c.Speech = newSpeechService(c)
	c.Voices = newVoiceService(c)
	c.Account = newAccountService(c)
	c.Sessions = newSessionService(c)

	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.config.baseURL
}

// StreamURL returns the WebSocket URL used by streaming sessions.
func (c *Client) StreamURL() string {
	return c.config.streamURL
}

// HasAPIKey reports whether an API key is configured.
func (c *Client) HasAPIKey() bool {
	return c.config.apiKey != ""
}

// streamURLFor maps an http(s) base URL to the ws(s) streaming endpoint.
func streamURLFor(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://") + StreamPath
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://") + StreamPath
	default:
		return baseURL + StreamPath
	}
}
