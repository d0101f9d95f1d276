package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/moka"
	"github.com/blockberries/moka/config"
	"github.com/blockberries/moka/poll"
)

func TestDefault(t *testing.T) {
	c := config.Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, config.TransportREST, c.Transport)
	assert.Equal(t, poll.DefaultPolicy(), c.PollPolicy())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moka.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
node_url: https://node.example:8080
chain_id: marabunta
signature_algorithm: ed25519
key_dir: /var/moka/keys
timeout: 5s
poll:
  initial_interval: 200ms
  max_interval: 1s
  multiplier: 2
  max_attempts: 10
journal_path: /var/moka/journal.db
`), 0o600))

	c, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://node.example:8080", c.NodeURL)
	assert.Equal(t, config.TransportREST, c.Transport)
	assert.Equal(t, "marabunta", c.ChainID)
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.Equal(t, 200*time.Millisecond, c.Poll.InitialInterval)
	assert.Equal(t, 2.0, c.Poll.Multiplier)
	assert.Equal(t, 10, c.Poll.MaxAttempts)
	assert.Equal(t, "/var/moka/journal.db", c.JournalPath)
}

func TestParse_PartialKeepsDefaults(t *testing.T) {
	c, err := config.Parse([]byte("chain_id: test\n"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultNodeURL, c.NodeURL)
	assert.Equal(t, config.DefaultTimeout, c.Timeout)
	assert.Equal(t, poll.DefaultPolicy(), c.Poll)
}

func TestParse_Invalid(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown field":     "node: http://x\n",
		"bad scheme":        "node_url: ftp://x\n",
		"unknown transport": "transport: carrier-pigeon\n",
		"grpc no address":   "transport: grpc\n",
		"bad events url":    "events_url: http://x/node\n",
		"unbounded poll":    "poll:\n  max_attempts: 0\n",
		"negative timeout":  "timeout: -1s\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := config.Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_UnknownAlgorithm(t *testing.T) {
	_, err := config.Parse([]byte("signature_algorithm: rsa\n"))
	_, ok := moka.IsUnknownAlgorithm(err)
	assert.True(t, ok, "got %v", err)
}

func TestOptions(t *testing.T) {
	c := config.New(
		config.WithGRPC("localhost:9090"),
		config.WithChainID("c"),
		config.WithSignatureAlgorithm("empty"),
		config.WithKeyDir("keys"),
		config.WithJournalPath("j.db"),
		config.WithTimeout(time.Second),
		config.WithNodeURL("http://n"),
	)
	require.NoError(t, c.Validate())
	assert.Equal(t, config.TransportGRPC, c.Transport)
	assert.Equal(t, "localhost:9090", c.GRPCAddress)
}
