// Package configwatch watches the agent's config and plugin paths (§6.5) for
// changes so the CLI can log them between run invocations. Loading changed
// config or plugins back into a running Agent is out of scope here — the
// Agent's device-model registry is supplied once at startup per C3 — this
// package only surfaces the fsnotify events.
package configwatch

import (
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher observes MTC_CONFIG_PATH and MTC_PLUGIN_PATH (when set) for
// filesystem changes.
type Watcher struct {
	fsw *fsnotify.Watcher
	log zerolog.Logger
}

// Start begins watching configPath and, if non-empty, pluginPath. Paths that
// do not exist yet are skipped rather than treated as fatal, since a plugin
// directory is optional.
func Start(configPath, pluginPath string, log zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{fsw: fsw, log: log.With().Str("component", "configwatch").Logger()}
	w.addIfExists(configPath)
	if pluginPath != "" {
		w.addIfExists(pluginPath)
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) addIfExists(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := w.fsw.Add(path); err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("failed to watch path")
		return
	}
	w.log.Info().Str("path", path).Msg("watching path for changes")
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.log.Info().Str("path", event.Name).Str("op", event.Op.String()).
				Msg("config/plugin path changed; restart the agent to pick up changes")
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
