package wrapper

import (
	"net"
	"testing"
	"time"

	"github.com/clippyhq/clippy/internal/broker"
	"github.com/clippyhq/clippy/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func startTestBroker(t *testing.T) string {
	t.Helper()
	path := t.TempDir() + "/broker.sock"
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	b := broker.New(ln, prometheus.NewRegistry(), nil)
	go b.Serve()
	t.Cleanup(b.Shutdown)
	return path
}

func TestBrokerClient_RegisterAndPublishTurn(t *testing.T) {
	addr := startTestBroker(t)
	pattern, err := session.CompilePattern(`^> $`, "generic")
	require.NoError(t, err)

	c := NewBrokerClient(addr, pattern, 12345, nil, nil)
	var injected [][]byte
	c.SetInjectWriter(func(b []byte) error {
		injected = append(injected, b)
		return nil
	})

	id := session.NewID()
	c.Connect(id)
	c.PublishTurn(session.Turn{ID: session.NewID(), Content: []byte("hello\n")})

	c.Close()
	require.Empty(t, injected)
}

func TestBrokerClient_BuffersLocallyWhenUnreachable(t *testing.T) {
	pattern, err := session.CompilePattern(`^> $`, "generic")
	require.NoError(t, err)

	c := NewBrokerClient("/nonexistent/clippy.sock", pattern, 1, nil, nil)
	c.SetInjectWriter(func(b []byte) error { return nil })
	c.Connect(session.NewID())

	c.PublishTurn(session.Turn{ID: session.NewID(), Content: []byte("x\n")})
	require.NotNil(t, c.pending)
}

func TestBrokerClient_BackoffSuppressesImmediateRedial(t *testing.T) {
	pattern, err := session.CompilePattern(`^> $`, "generic")
	require.NoError(t, err)

	c := NewBrokerClient("/nonexistent/clippy.sock", pattern, 1, nil, []int{60_000})
	c.Connect(session.NewID())
	require.True(t, c.nextAttempt.After(time.Now()))

	err = c.dial()
	require.Error(t, err)
	require.Contains(t, err.Error(), "backoff")
}
