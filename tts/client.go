package tts

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/playht/playht-go-sdk/congestion"
	"github.com/playht/playht-go-sdk/credentials"
	"github.com/playht/playht-go-sdk/lease"
	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
	"github.com/playht/playht-go-sdk/pkg/httputil"
	"github.com/playht/playht-go-sdk/proto/playhtv1"
	"github.com/playht/playht-go-sdk/sentence"
	"github.com/playht/playht-go-sdk/streaming"
)

const component = "tts"

// Client defaults.
const (
	DefaultBaseURL      = "https://api.play.ht"
	DefaultPrefetch     = 2
	DefaultPollInterval = time.Second
	DefaultPollAttempts = 120
)

// Client owns everything a PlayHT session shares between calls: credential
// stores, inference connections and congestion controllers. Create one per
// account and Close it when done.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	cred       *credentials.APIKeyCredential
	baseURL    string
	apiClient  *http.Client
	streamHTTP *http.Client

	leases *lease.Store[*lease.Lease]
	coords *lease.Store[*lease.Coordinates]

	leaseSettings lease.Settings
	coordSettings lease.Settings
	shared        lease.SharedCache

	congestion   congestion.Algorithm
	sentences    sentence.Config
	prefetch     int
	pollInterval time.Duration
	pollAttempts int

	insecureRPC bool
	dialOptions []grpc.DialOption
	dialer      streaming.Dialer

	mu          sync.Mutex
	handles     map[string]*streaming.ConnHandle
	controllers map[VoiceEngine]map[congestion.Algorithm]*congestion.Controller
	closed      bool
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the REST API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets the client used for REST calls and, unless
// WithStreamHTTPClient follows, audio streams.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.apiClient = hc
		c.streamHTTP = hc
	}
}

// WithStreamHTTPClient sets the client used for audio streams. It should
// bound response headers but not the whole body.
func WithStreamHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.streamHTTP = hc
	}
}

// WithLeaseSettings tunes the lease store.
func WithLeaseSettings(s lease.Settings) Option {
	return func(c *Client) {
		c.leaseSettings = s
	}
}

// WithCoordinateSettings tunes the inference coordinate store.
func WithCoordinateSettings(s lease.Settings) Option {
	return func(c *Client) {
		c.coordSettings = s
	}
}

// WithSharedCache shares acquired credentials with other processes.
func WithSharedCache(sc lease.SharedCache) Option {
	return func(c *Client) {
		c.shared = sc
	}
}

// WithCongestion sets the default congestion control algorithm.
func WithCongestion(a congestion.Algorithm) Option {
	return func(c *Client) {
		c.congestion = a
	}
}

// WithSentenceConfig tunes how live text is chunked.
func WithSentenceConfig(cfg sentence.Config) Option {
	return func(c *Client) {
		c.sentences = cfg
	}
}

// WithPrefetch sets how many chunks may be generated ahead of the reader.
func WithPrefetch(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.prefetch = n
		}
	}
}

// WithPolling sets the legacy engine's status poll cadence and budget.
func WithPolling(interval time.Duration, attempts int) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
		if attempts > 0 {
			c.pollAttempts = attempts
		}
	}
}

// WithInsecureRPC dials inference nodes without TLS.
func WithInsecureRPC(insecure bool) Option {
	return func(c *Client) {
		c.insecureRPC = insecure
	}
}

// WithDialOptions adds gRPC dial options for inference nodes.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) {
		c.dialOptions = append(c.dialOptions, opts...)
	}
}

// WithDialer replaces how inference connections are created.
func WithDialer(d streaming.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// New creates a client for one PlayHT account.
func New(userID, apiKey string, opts ...Option) (*Client, error) {
	if userID == "" || apiKey == "" {
		return nil, pkgerrors.Newf(pkgerrors.KindAuth, component, "New", "user ID and API key are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		ctx:           ctx,
		cancel:        cancel,
		cred:          credentials.NewAPIKeyCredential(userID, apiKey),
		baseURL:       DefaultBaseURL,
		leaseSettings: lease.DefaultLeaseSettings(),
		coordSettings: lease.DefaultCoordinateSettings(),
		sentences:     sentence.DefaultConfig(),
		prefetch:      DefaultPrefetch,
		pollInterval:  DefaultPollInterval,
		pollAttempts:  DefaultPollAttempts,
		handles:       make(map[string]*streaming.ConnHandle),
		controllers:   make(map[VoiceEngine]map[congestion.Algorithm]*congestion.Controller),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.apiClient == nil {
		c.apiClient = httputil.NewHTTPClient(httputil.DefaultAPITimeout)
	}
	if c.streamHTTP == nil {
		c.streamHTTP = httputil.NewStreamingClient(httputil.DefaultStreamTimeout)
	}
	if c.dialer == nil {
		c.dialer = func(address string) (*grpc.ClientConn, error) {
			return playhtv1.Dial(address, c.insecureRPC, c.dialOptions...)
		}
	}

	base := lease.HTTPAcquirer{BaseURL: c.baseURL, Credential: c.cred, Client: c.apiClient}
	c.leases = lease.NewLeaseStore(&lease.LeaseAcquirer{HTTPAcquirer: base}, c.leaseSettings, c.shared)
	c.coords = lease.NewCoordinateStore(&lease.CoordinatesAcquirer{HTTPAcquirer: base}, c.coordSettings, c.shared)
	return c, nil
}

// UserID returns the account the client acts for.
func (c *Client) UserID() string {
	return c.cred.UserID()
}

// Close stops refresh timers, drops queued chunks and closes inference
// connections. Streams already returned fail once their calls are cut.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cancel()
	handles := c.handles
	controllers := c.controllers
	c.handles = nil
	c.controllers = nil
	c.mu.Unlock()

	c.leases.Close()
	c.coords.Close()
	for _, byAlgo := range controllers {
		for _, ctrl := range byAlgo {
			ctrl.Close()
		}
	}
	var firstErr error
	for _, h := range handles {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Client) checkOpen(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return pkgerrors.Newf(pkgerrors.KindCanceled, component, op, "client is closed")
	}
	return nil
}

// handle returns the connection handle for an inference role.
func (c *Client) handle(role string) *streaming.ConnHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[role]
	if !ok {
		h = streaming.NewConnHandle(c.dialer)
		if c.handles != nil {
			c.handles[role] = h
		}
	}
	return h
}

// controller returns the congestion controller for engine and algorithm.
func (c *Client) controller(engine VoiceEngine, algo congestion.Algorithm) *congestion.Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	byAlgo, ok := c.controllers[engine]
	if !ok {
		byAlgo = make(map[congestion.Algorithm]*congestion.Controller)
		if c.controllers != nil {
			c.controllers[engine] = byAlgo
		}
	}
	ctrl, ok := byAlgo[algo]
	if !ok {
		ctrl = congestion.NewController(string(engine)+"/"+algo.String(), algo)
		byAlgo[algo] = ctrl
	}
	return ctrl
}

func (c *Client) key(engine VoiceEngine) lease.Key {
	return lease.Key{UserID: c.cred.UserID(), Engine: string(engine)}
}
