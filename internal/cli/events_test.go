package cli

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/blockberries/moka/events"
	mokatest "github.com/blockberries/moka/testing"
	"github.com/blockberries/moka/types"
)

func publish(t *testing.T, h *mokatest.Harness, event, creator types.StorageReference) {
	t.Helper()
	body, err := json.Marshal(types.Event{Event: event, Creator: creator})
	require.NoError(t, err)
	h.Broker.Publish(events.Topic, body)
}

func TestEventsCount(t *testing.T) {
	h := mokatest.NewHarness(t)
	opts := testOptions(t, h)
	creator, other := mokatest.Account(1), mokatest.Account(2)

	cmd := NewEventsCommand(opts)
	out := &syncBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(&syncBuffer{})
	cmd.SetArgs([]string{"--creator", creator.String(), "--count", "2"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(context.Background()) }()
	require.Eventually(t, func() bool { return h.Broker.Subscribers(events.Topic) == 1 }, 2*time.Second, 5*time.Millisecond)

	publish(t, h, mokatest.Account(10), other)
	publish(t, h, mokatest.Account(11), creator)
	publish(t, h, mokatest.Account(12), creator)
	publish(t, h, mokatest.Account(13), creator)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("events did not exit after --count events")
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "event "+mokatest.Account(11).String()+" from "+creator.String(), lines[0])
	assert.Contains(t, lines[1], mokatest.Account(12).String())
}

func TestEventsUntilCancelled(t *testing.T) {
	h := mokatest.NewHarness(t)
	opts := testOptions(t, h)
	opts.Format = "json"

	ctx, cancel := context.WithCancel(context.Background())
	cmd := NewEventsCommand(opts)
	out := &syncBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(&syncBuffer{})
	cmd.SetArgs([]string{})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()
	require.Eventually(t, func() bool { return h.Broker.Subscribers(events.Topic) == 1 }, 2*time.Second, 5*time.Millisecond)

	publish(t, h, mokatest.Account(10), mokatest.Account(1))
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "\n") }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("events did not exit on cancellation")
	}
	var line EventLine
	decodeData(t, strings.Split(out.String(), "\n")[0], &line)
	assert.Equal(t, mokatest.Account(10).String(), line.Event)
	assert.Eventually(t, func() bool { return h.Broker.Subscribers(events.Topic) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestEventsBadArguments(t *testing.T) {
	h := mokatest.NewHarness(t)
	opts := testOptions(t, h)

	_, err := run(t, NewEventsCommand(opts), "--creator", "nohash")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = run(t, NewEventsCommand(opts), "--count", "-1")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Zero(t, h.Broker.Connections.Load())
}

func TestGateway(t *testing.T) {
	h := mokatest.NewHarness(t)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd := newGatewayCommand(&GatewayOptions{RootOptions: testOptions(t, h), Listener: lis})
	errOut := &syncBuffer{}
	cmd.SetOut(&syncBuffer{})
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()
	require.Eventually(t, func() bool { return strings.Contains(errOut.String(), "gateway listening") }, 2*time.Second, 5*time.Millisecond)

	client := &RootOptions{Format: "text", GRPCAddress: lis.Addr().String(), Logger: zaptest.NewLogger(t)}
	out, err := run(t, NewInfoCommand(client))
	require.NoError(t, err)
	assert.Contains(t, out, h.Node.Manifest.String())
	assert.Positive(t, h.Node.Calls.Load())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not stop")
	}
}

func TestGatewayNeedsRESTNode(t *testing.T) {
	opts := &RootOptions{Format: "text", GRPCAddress: "127.0.0.1:9090", Logger: zaptest.NewLogger(t)}
	_, err := run(t, NewGatewayCommand(opts))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REST node")
}
