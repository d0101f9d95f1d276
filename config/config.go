// Package config holds the client configuration, loaded from YAML.
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blockberries/moka/poll"
	"github.com/blockberries/moka/signature"
)

// Transports.
const (
	TransportREST = "rest"
	TransportGRPC = "grpc"
)

const (
	// DefaultNodeURL is the address of a local node.
	DefaultNodeURL = "http://localhost:8080"
	// DefaultTimeout bounds a single node call.
	DefaultTimeout = 30 * time.Second
)

// Config configures a client of a node.
type Config struct {
	// NodeURL is the base URL of a REST node.
	NodeURL string `yaml:"node_url"`
	// Transport is TransportREST or TransportGRPC.
	Transport string `yaml:"transport"`
	// GRPCAddress is the host:port of a gRPC gateway.
	GRPCAddress string `yaml:"grpc_address,omitempty"`
	// EventsURL overrides the STOMP endpoint derived from NodeURL.
	EventsURL string `yaml:"events_url,omitempty"`
	// ChainID is set on the requests built by the CLI.
	ChainID string `yaml:"chain_id,omitempty"`
	// SignatureAlgorithm signs requests. Empty means the algorithm the
	// node asks for.
	SignatureAlgorithm string `yaml:"signature_algorithm,omitempty"`
	// KeyDir holds one private key file per account.
	KeyDir string `yaml:"key_dir,omitempty"`
	// Timeout bounds a single node call.
	Timeout time.Duration `yaml:"timeout"`
	// Poll resolves posted transactions.
	Poll poll.Policy `yaml:"poll"`
	// JournalPath is the SQLite journal of posted transactions. Empty
	// disables the journal.
	JournalPath string `yaml:"journal_path,omitempty"`
}

// Default returns the configuration used when none is provided.
func Default() Config {
	return Config{
		NodeURL:   DefaultNodeURL,
		Transport: TransportREST,
		Timeout:   DefaultTimeout,
		Poll:      poll.DefaultPolicy(),
	}
}

// Option is a functional option that mutates a Config.
type Option func(*Config)

// New returns the default configuration modified by opts.
func New(opts ...Option) Config {
	c := Default()
	for _, o := range opts {
		o(&c)
	}
	return c
}

// WithNodeURL sets the node URL.
func WithNodeURL(u string) Option {
	return func(c *Config) { c.NodeURL = u }
}

// WithGRPC selects the gRPC gateway at addr.
func WithGRPC(addr string) Option {
	return func(c *Config) {
		c.Transport = TransportGRPC
		c.GRPCAddress = addr
	}
}

// WithChainID sets the chain id.
func WithChainID(id string) Option {
	return func(c *Config) { c.ChainID = id }
}

// WithSignatureAlgorithm sets the signature algorithm.
func WithSignatureAlgorithm(name string) Option {
	return func(c *Config) { c.SignatureAlgorithm = name }
}

// WithKeyDir sets the key directory.
func WithKeyDir(dir string) Option {
	return func(c *Config) { c.KeyDir = dir }
}

// WithPollPolicy sets the poll policy.
func WithPollPolicy(p poll.Policy) Option {
	return func(c *Config) { c.Poll = p }
}

// WithJournalPath enables the journal at path.
func WithJournalPath(path string) Option {
	return func(c *Config) { c.JournalPath = path }
}

// WithTimeout sets the call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// Load reads the YAML file at path over the defaults and validates
// the result. Unknown fields are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("moka config: read: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("moka config: parse: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportREST:
		if err := validateURL(c.NodeURL, "http", "https"); err != nil {
			return fmt.Errorf("moka config: node_url: %w", err)
		}
	case TransportGRPC:
		if c.GRPCAddress == "" {
			return fmt.Errorf("moka config: grpc transport needs grpc_address")
		}
	default:
		return fmt.Errorf("moka config: unknown transport %q", c.Transport)
	}
	if c.EventsURL != "" {
		if err := validateURL(c.EventsURL, "ws", "wss"); err != nil {
			return fmt.Errorf("moka config: events_url: %w", err)
		}
	}
	if c.SignatureAlgorithm != "" {
		if _, err := signature.Lookup(c.SignatureAlgorithm); err != nil {
			return fmt.Errorf("moka config: %w", err)
		}
	}
	if c.Timeout < 0 {
		return fmt.Errorf("moka config: negative timeout")
	}
	if err := c.Poll.Validate(); err != nil {
		return fmt.Errorf("moka config: poll: %w", err)
	}
	return nil
}

// PollPolicy returns the poll policy.
func (c Config) PollPolicy() poll.Policy { return c.Poll }

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%q is not a %v URL", raw, schemes)
}
