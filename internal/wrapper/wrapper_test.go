package wrapper

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_RequiresCommand(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestForwardedSignals_ExcludesSIGWINCH(t *testing.T) {
	for _, s := range forwardedSignals {
		require.NotEqual(t, syscall.SIGWINCH, s)
	}
}

func TestForwardedSignals_IncludesFullTable(t *testing.T) {
	want := []syscall.Signal{
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP,
		syscall.SIGQUIT, syscall.SIGTSTP, syscall.SIGCONT,
	}
	for _, w := range want {
		found := false
		for _, s := range forwardedSignals {
			if s == w {
				found = true
				break
			}
		}
		require.True(t, found, "missing %v from forwardedSignals", w)
	}
}
