// Package config provides the scheduler's configuration collaborator: a
// small YAML document with three scalars (OVERCLOCK_ENABLE, OVERCLOCK,
// SYNC_ON_SKIP_IDLE), optionally watched on disk with fsnotify so that
// edits are picked up without a restart.
package config

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/coretiming/scheduler/pkg/log"
)

// values is the on-disk document shape.
type values struct {
	OverclockEnable bool    `yaml:"overclock_enable"`
	Overclock       float32 `yaml:"overclock"`
	SyncOnSkipIdle  bool    `yaml:"sync_on_skip_idle"`
}

func defaultValues() values {
	return values{OverclockEnable: false, Overclock: 1.0, SyncOnSkipIdle: false}
}

// Config is a file-backed ConfigProvider. Zero value is not usable; build
// one with Load or Static.
type Config struct {
	mu   sync.RWMutex
	v    values
	path string

	watcher   *fsnotify.Watcher
	watchDone chan struct{}

	callbacksMu sync.Mutex
	callbacks   map[int]func()
	nextID      int

	log log.Logger
}

// Static returns a Config with no backing file: it never changes and
// OnConfigChanged callbacks are simply never invoked. Useful for tests
// and for the CLI when no -config file is given.
func Static(overclockEnable bool, overclock float32, syncOnSkipIdle bool) *Config {
	return &Config{
		v:         values{OverclockEnable: overclockEnable, Overclock: overclock, SyncOnSkipIdle: syncOnSkipIdle},
		callbacks: make(map[int]func()),
		log:       log.NewNull(),
	}
}

// Load reads path as YAML into a Config and starts an fsnotify watcher on
// its containing directory (watching the directory, not the file, so
// atomic-rename editors don't orphan the watch).
func Load(path string, logger log.Logger) (*Config, error) {
	if logger == nil {
		logger = log.NewNull()
	}
	c := &Config{path: path, callbacks: make(map[int]func()), log: logger}
	if err := c.reload(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}
	c.watcher = w
	c.watchDone = make(chan struct{})
	go c.watchLoop()
	return c, nil
}

func (c *Config) reload() error {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			c.mu.Lock()
			c.v = defaultValues()
			c.mu.Unlock()
			return nil
		}
		return err
	}
	v := defaultValues()
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return err
	}
	if v.Overclock == 0 {
		v.Overclock = 1.0
	}
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
	return nil
}

func (c *Config) watchLoop() {
	defer close(c.watchDone)
	target := filepath.Clean(c.path)
	for {
		select {
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := c.reload(); err != nil {
				c.log.Errorf("config: failed to reload %s: %v", c.path, err)
				continue
			}
			c.notify()
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.log.Errorf("config: watcher error: %v", err)
		}
	}
}

func (c *Config) notify() {
	c.callbacksMu.Lock()
	fns := make([]func(), 0, len(c.callbacks))
	for _, fn := range c.callbacks {
		fns = append(fns, fn)
	}
	c.callbacksMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Close stops the file watcher, if any.
func (c *Config) Close() error {
	if c.watcher == nil {
		return nil
	}
	err := c.watcher.Close()
	<-c.watchDone
	return err
}

// OverclockEnabled reports whether the overclock factor should be
// applied at all.
func (c *Config) OverclockEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.OverclockEnable
}

// Overclock returns the configured overclock factor.
func (c *Config) Overclock() float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.Overclock
}

// SyncOnSkipIdle reports whether Idle should flush the FIFO before
// skipping cycles.
func (c *Config) SyncOnSkipIdle() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.SyncOnSkipIdle
}

// OnConfigChanged registers fn to run whenever the file is reloaded, and
// returns an id for later removal.
func (c *Config) OnConfigChanged(fn func()) int {
	c.callbacksMu.Lock()
	defer c.callbacksMu.Unlock()
	id := c.nextID
	c.nextID++
	c.callbacks[id] = fn
	return id
}

// RemoveConfigChangedCallback removes a callback registered with
// OnConfigChanged. Removing an unknown id is a no-op.
func (c *Config) RemoveConfigChangedCallback(id int) {
	c.callbacksMu.Lock()
	defer c.callbacksMu.Unlock()
	delete(c.callbacks, id)
}
