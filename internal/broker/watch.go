package broker

import (
	"github.com/fsnotify/fsnotify"
)

// watchSocket watches the broker's socket file for external removal
// (an operator cleaning up the runtime directory, or another process
// mistaking it for stale state while this broker is still live) and logs
// a warning so the operator notices before paste requests start failing
// with connection errors. It does not attempt to recreate the socket —
// only a restart does that cleanly, since net.Listener holds the original
// file descriptor regardless of what the directory entry now points to.
func (b *Broker) watchSocket(path string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		b.log.Warn("socket watch disabled: could not create fsnotify watcher", "error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		b.log.Warn("socket watch disabled: could not watch socket path", "path", path, "error", err)
		return
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				b.log.Warn("broker socket was removed externally; new connections will fail until restart", "path", path)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			b.log.Warn("socket watcher error", "error", err)
		case <-b.done:
			return
		}
	}
}
