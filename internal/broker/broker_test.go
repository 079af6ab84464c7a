package broker

import (
	"net"
	"testing"

	"github.com/clippyhq/clippy/internal/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// testBroker starts a Broker on an in-process unix socket pair and
// returns it along with a dial function for opening client connections.
func testBroker(t *testing.T) (*Broker, func() net.Conn) {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/broker.sock"

	ln, err := net.Listen("unix", path)
	require.NoError(t, err)

	b := New(ln, prometheus.NewRegistry(), nil)
	go b.Serve()
	t.Cleanup(b.Shutdown)

	return b, func() net.Conn {
		c, err := net.Dial("unix", path)
		require.NoError(t, err)
		return c
	}
}

func hello(t *testing.T, conn net.Conn, role string) {
	t.Helper()
	require.NoError(t, wire.WriteFrame(conn, map[string]any{
		"type": wire.TypeHello, "id": uint32(0), "version": wire.ProtocolVersion, "role": role,
	}))
	resp, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	require.Equal(t, "ok", resp["status"])
}

func request(t *testing.T, conn net.Conn, id uint32, msgType string, fields map[string]any) map[string]any {
	t.Helper()
	payload := map[string]any{"type": msgType, "id": id}
	for k, v := range fields {
		payload[k] = v
	}
	require.NoError(t, wire.WriteFrame(conn, payload))
	resp, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	return resp
}

func TestBroker_RegisterCaptureReplay_ScenarioA(t *testing.T) {
	_, dial := testBroker(t)

	s1 := dial()
	defer s1.Close()
	hello(t, s1, wire.RoleWrapper)
	resp := request(t, s1, 1, wire.TypeRegister, map[string]any{"session": "s1", "pid": 111, "pattern": "^> $"})
	require.Equal(t, true, resp["ok"])

	s2 := dial()
	defer s2.Close()
	hello(t, s2, wire.RoleWrapper)
	resp = request(t, s2, 1, wire.TypeRegister, map[string]any{"session": "s2", "pid": 222, "pattern": "^> $"})
	require.Equal(t, true, resp["ok"])

	client := dial()
	defer client.Close()
	hello(t, client, wire.RoleClient)

	resp = request(t, client, 1, wire.TypeTurnCompleted, map[string]any{
		"session": "s1", "content": []byte("hello\n"), "interrupted": false,
	})
	require.Equal(t, true, resp["ok"])

	resp = request(t, client, 2, wire.TypeCapture, map[string]any{"session": "s1"})
	require.Equal(t, true, resp["ok"])
	size, ok := asInt(resp, "size")
	require.True(t, ok)
	require.Equal(t, 6, size)

	resp = request(t, client, 3, wire.TypePaste, map[string]any{"session": "s2"})
	require.Equal(t, true, resp["ok"])

	injected, err := wire.ReadFrame(s2)
	require.NoError(t, err)
	require.Equal(t, wire.TypeInject, injected["type"])
	require.Equal(t, []byte("hello\n"), injected["data"])
}

func TestBroker_CaptureNoTurn_ScenarioB(t *testing.T) {
	_, dial := testBroker(t)
	s1 := dial()
	defer s1.Close()
	hello(t, s1, wire.RoleWrapper)
	request(t, s1, 1, wire.TypeRegister, map[string]any{"session": "s1", "pid": 1, "pattern": "^> $"})

	client := dial()
	defer client.Close()
	hello(t, client, wire.RoleClient)

	resp := request(t, client, 1, wire.TypeCapture, map[string]any{"session": "s1"})
	require.Equal(t, false, resp["ok"])
	require.Equal(t, wire.ErrNoTurn, resp["error"])
}

func TestBroker_PasteEmptyRelay_ScenarioC(t *testing.T) {
	_, dial := testBroker(t)
	s1 := dial()
	defer s1.Close()
	hello(t, s1, wire.RoleWrapper)
	request(t, s1, 1, wire.TypeRegister, map[string]any{"session": "s1", "pid": 1, "pattern": "^> $"})

	client := dial()
	defer client.Close()
	hello(t, client, wire.RoleClient)

	resp := request(t, client, 1, wire.TypePaste, map[string]any{"session": "s1"})
	require.Equal(t, false, resp["ok"])
	require.Equal(t, wire.ErrBufferEmpty, resp["error"])
}

func TestBroker_Replacement_ScenarioE(t *testing.T) {
	_, dial := testBroker(t)
	s1 := dial()
	defer s1.Close()
	hello(t, s1, wire.RoleWrapper)
	request(t, s1, 1, wire.TypeRegister, map[string]any{"session": "s1", "pid": 1, "pattern": "^> $"})

	client := dial()
	defer client.Close()
	hello(t, client, wire.RoleClient)

	request(t, client, 1, wire.TypeTurnCompleted, map[string]any{"session": "s1", "content": []byte("aaa\n")})
	request(t, client, 2, wire.TypeTurnCompleted, map[string]any{"session": "s1", "content": []byte("bbb\n")})

	resp := request(t, client, 3, wire.TypeCapture, map[string]any{"session": "s1"})
	require.Equal(t, true, resp["ok"])
	size, ok := asInt(resp, "size")
	require.True(t, ok)
	require.Equal(t, 4, size)
}

func TestBroker_DisconnectDuringPaste_ScenarioF(t *testing.T) {
	_, dial := testBroker(t)

	source := dial()
	defer source.Close()
	hello(t, source, wire.RoleWrapper)
	request(t, source, 1, wire.TypeRegister, map[string]any{"session": "src", "pid": 1, "pattern": "^> $"})

	target := dial()
	hello(t, target, wire.RoleWrapper)
	request(t, target, 1, wire.TypeRegister, map[string]any{"session": "tgt", "pid": 2, "pattern": "^> $"})

	third := dial()
	defer third.Close()
	hello(t, third, wire.RoleWrapper)
	request(t, third, 1, wire.TypeRegister, map[string]any{"session": "third", "pid": 3, "pattern": "^> $"})

	client := dial()
	defer client.Close()
	hello(t, client, wire.RoleClient)
	request(t, client, 1, wire.TypeTurnCompleted, map[string]any{"session": "src", "content": []byte("x\n")})
	request(t, client, 2, wire.TypeCapture, map[string]any{"session": "src"})

	target.Close()

	resp := request(t, client, 3, wire.TypePaste, map[string]any{"session": "tgt"})
	require.Equal(t, false, resp["ok"])

	resp = request(t, client, 4, wire.TypePaste, map[string]any{"session": "third"})
	require.Equal(t, true, resp["ok"])
}

func TestBroker_DuplicateRegister(t *testing.T) {
	_, dial := testBroker(t)
	s1 := dial()
	defer s1.Close()
	hello(t, s1, wire.RoleWrapper)
	request(t, s1, 1, wire.TypeRegister, map[string]any{"session": "dup", "pid": 1, "pattern": "^> $"})

	s2 := dial()
	defer s2.Close()
	hello(t, s2, wire.RoleWrapper)
	resp := request(t, s2, 1, wire.TypeRegister, map[string]any{"session": "dup", "pid": 2, "pattern": "^> $"})
	require.Equal(t, false, resp["ok"])
	require.Equal(t, wire.ErrDuplicateSession, resp["error"])
}

func TestBroker_VersionMismatchClosesConnection(t *testing.T) {
	_, dial := testBroker(t)
	conn := dial()
	defer conn.Close()

	require.NoError(t, wire.WriteFrame(conn, map[string]any{
		"type": wire.TypeHello, "id": uint32(0), "version": 99, "role": wire.RoleClient,
	}))
	resp, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	require.Equal(t, "error", resp["status"])

	_, err = wire.ReadFrame(conn)
	require.Error(t, err)
}

func TestBroker_UnknownType(t *testing.T) {
	_, dial := testBroker(t)
	conn := dial()
	defer conn.Close()
	hello(t, conn, wire.RoleClient)

	resp := request(t, conn, 1, "frobnicate", nil)
	require.Equal(t, false, resp["ok"])
	require.Equal(t, wire.ErrUnknownType, resp["error"])
}
