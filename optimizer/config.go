package optimizer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config carries the feature toggles and pagination bounds the optimizer
// reads. All fields are read-only inputs to the algorithms; mutating a
// Config after handing it to an Extension has no effect.
type Config struct {
	// Projection, Joins and BatchFetch gate the three directive kinds.
	Projection bool `yaml:"projection"`
	Joins      bool `yaml:"joins"`
	BatchFetch bool `yaml:"batch_fetch"`

	// DefaultLimit applies to offset pagination when the request and
	// field declare none. Zero means unbounded.
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit clamps explicit non-negative offset-pagination limits.
	// Zero disables clamping.
	MaxLimit int `yaml:"max_limit"`

	// MaxResults caps cursor-connection pages and serves as the page
	// size when neither first nor last is given.
	MaxResults int `yaml:"max_results"`
}

// DefaultConfig returns the configuration used when no file overrides it:
// all optimizations on, connection pages capped at 100.
func DefaultConfig() Config {
	return Config{
		Projection: true,
		Joins:      true,
		BatchFetch: true,
		MaxResults: 100,
	}
}

// Load reads a YAML configuration file. A missing file is not an error;
// defaults are returned. Fields absent from the file keep their defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read optimizer config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse optimizer config: %w", err)
	}
	return cfg, nil
}

// WatchConfig reloads the configuration whenever the file changes and
// feeds each successful reload to onChange. The returned stop function
// releases the watcher. Reload errors are logged and the previous
// configuration stays in effect.
func WatchConfig(path string, onChange func(Config), log *slog.Logger) (func() error, error) {
	if log == nil {
		log = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace files on save, which drops
	// a watch registered on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	target, _ := filepath.Abs(path)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				name, _ := filepath.Abs(event.Name)
				if name != target {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					log.Warn("optimizer config reload failed", "path", path, "err", err)
					continue
				}
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("optimizer config watcher error", "err", err)
			}
		}
	}()
	return watcher.Close, nil
}
