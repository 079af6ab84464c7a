// Command clippyctl is a thin client over the broker protocol, useful
// for scripting and for driving the hotkey-client boundary manually.
package main

import (
	"fmt"
	"os"

	"github.com/clippyhq/clippy/internal/broker"
	"github.com/clippyhq/clippy/internal/wire"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	path, err := socketPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, "clippyctl:", err)
		return 1
	}

	conn, err := wire.Dial(path, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "clippyctl: connect to broker:", err)
		return 1
	}
	defer conn.Close()

	if _, err := conn.Request(wire.TypeHello, map[string]any{
		"version": wire.ProtocolVersion, "role": wire.RoleClient,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "clippyctl: handshake failed:", err)
		return 1
	}

	switch args[0] {
	case "list":
		return cmdList(conn)
	case "capture":
		return cmdCapture(conn, args[1:])
	case "paste":
		return cmdPaste(conn, args[1:])
	default:
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: clippyctl list | capture <session> | paste <session>")
}

func socketPath() (string, error) {
	return broker.SocketPath(os.Getenv("XDG_RUNTIME_DIR"))
}

func cmdList(conn *wire.Conn) int {
	resp, err := conn.Request(wire.TypeListSessions, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "clippyctl:", err)
		return 1
	}
	rows, _ := resp["sessions"].([]any)
	for _, row := range rows {
		m, ok := row.(map[string]any)
		if !ok {
			continue
		}
		fmt.Printf("%v\tpid=%v\thas_turn=%v\n", m["session"], m["pid"], m["has_turn"])
	}
	return 0
}

func cmdCapture(conn *wire.Conn, args []string) int {
	if len(args) != 1 {
		usage()
		return 2
	}
	resp, err := conn.Request(wire.TypeCapture, map[string]any{"session": args[0]})
	if err != nil {
		fmt.Fprintln(os.Stderr, "clippyctl:", err)
		return 1
	}
	if ok, _ := resp["ok"].(bool); !ok {
		fmt.Fprintln(os.Stderr, "clippyctl: capture failed:", resp["error"])
		return 1
	}
	fmt.Printf("captured %v bytes from %s\n", resp["size"], args[0])
	return 0
}

func cmdPaste(conn *wire.Conn, args []string) int {
	if len(args) != 1 {
		usage()
		return 2
	}
	resp, err := conn.Request(wire.TypePaste, map[string]any{"session": args[0]})
	if err != nil {
		fmt.Fprintln(os.Stderr, "clippyctl:", err)
		return 1
	}
	if ok, _ := resp["ok"].(bool); !ok {
		fmt.Fprintln(os.Stderr, "clippyctl: paste failed:", resp["error"])
		return 1
	}
	fmt.Printf("pasted into %s\n", args[0])
	return 0
}
