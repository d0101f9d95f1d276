package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"

	"github.com/blockberries/moka/config"
	mokatest "github.com/blockberries/moka/testing"
)

// syncBuffer is a bytes.Buffer safe for a command writing from event
// handlers while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testOptions(t *testing.T, h *mokatest.Harness) *RootOptions {
	t.Helper()
	return &RootOptions{
		Format:     "text",
		ConfigPath: writeConfig(t, config.New(config.WithNodeURL(h.URL()), config.WithPollPolicy(mokatest.FastPolicy()))),
		Logger:     zaptest.NewLogger(t),
	}
}

func writeConfig(t *testing.T, cfg config.Config) string {
	t.Helper()
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "moka.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// run executes cmd with args and returns its standard output.
func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeData(t *testing.T, out string, data any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, data))
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "moka", cmd.Use)
	assert.Contains(t, cmd.Long, "Hotmoka node")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"info", "state", "classtag", "request", "response", "events", "install", "journal", "gateway"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "node", "grpc"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestInvalidFormat(t *testing.T) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	code := Execute(context.Background(), []string{"info", "--format", "yaml"}, stdout, stderr)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr.String(), "invalid format")
}

func TestExecuteExitCodes(t *testing.T) {
	h := mokatest.NewHarness(t)

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	code := Execute(context.Background(), []string{"state", "not-a-reference", "--node", h.URL()}, stdout, stderr)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr.String(), "invalid object")
	assert.Empty(t, stdout.String())

	stdout, stderr = &bytes.Buffer{}, &bytes.Buffer{}
	code = Execute(context.Background(), []string{"response", "dead", "--node", h.URL(), "--format", "json"}, stdout, stderr)
	assert.Equal(t, ExitCommandError, code)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "not_found", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "unknown transaction reference dead")
}

func TestConfigFlagsOverrideFile(t *testing.T) {
	opts := &RootOptions{
		ConfigPath:  writeConfig(t, config.New(config.WithNodeURL("http://node.example:8080"))),
		NodeURL:     "http://other.example:9000",
		GRPCAddress: "127.0.0.1:9090",
	}
	cfg, err := opts.config()
	require.NoError(t, err)
	assert.Equal(t, "http://other.example:9000", cfg.NodeURL)
	assert.Equal(t, config.TransportGRPC, cfg.Transport)
	assert.Equal(t, "127.0.0.1:9090", cfg.GRPCAddress)

	_, err = (&RootOptions{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")}).config()
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestUnreachableNode(t *testing.T) {
	opts := &RootOptions{Format: "text", NodeURL: "http://127.0.0.1:1", Logger: zaptest.NewLogger(t)}
	_, err := run(t, NewInfoCommand(opts))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, "transport", ErrorCode(err))
}
