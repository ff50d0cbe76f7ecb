package config

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Config holds all application configuration, covering both the
// bootstrap flags the process starts with and the subset of keys that
// may be safely changed at runtime via Watcher.
type Config struct {
	Port int
	Env  string

	// Net.worker_connections
	WorkerConnections int
	// Net.ListenPortCount / Net.ListenPortN
	ListenPorts []int

	// Net.Sock_RecyConnectionWaitTime
	ReclaimGrace time.Duration
	// Net.Sock_WaitTimeEnable
	TimerWheelEnabled bool
	// Net.Sock_MaxWaitTime
	IdleTimeout time.Duration
	// Net.Sock_TimeOutKick
	CloseOnIdle bool

	// NetSecurity.Sock_FloodAttackKickEnable
	FloodKickEnabled bool
	// NetSecurity.Sock_FloodTimeInterval
	FloodTimeInterval time.Duration
	// NetSecurity.Sock_FloodKickCounter
	FloodKickCounter int

	// ProcMsgRecvWorkThreadCount
	WorkerPoolSize int

	LogFile     string
	LogLevel    string
	MaxFileSize int64
	MaxFiles    int
}

// New loads bootstrap configuration from command-line flags, matching
// the teacher's flag-based config.New.
func New() *Config {
	cfg := defaults()

	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.Env, "env", cfg.Env, "Environment (development/production)")
	flag.IntVar(&cfg.WorkerConnections, "worker-connections", cfg.WorkerConnections, "connection pool size per worker")
	flag.IntVar(&cfg.WorkerPoolSize, "worker-pool-size", cfg.WorkerPoolSize, "job dispatch worker pool size")
	flag.DurationVar(&cfg.ReclaimGrace, "reclaim-grace", cfg.ReclaimGrace, "grace window before a closed connection's slot is reused")
	flag.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "idle connection timeout")
	flag.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "log file path")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")

	flag.Parse()

	if port := os.Getenv("PORT"); port != "" {
		log.Printf("config: PORT env override present but unparsed, using flag/default %d", cfg.Port)
	}

	return cfg
}

func defaults() *Config {
	return &Config{
		Port:              8080,
		Env:               "development",
		WorkerConnections: 10000,
		ListenPorts:       []int{8080},
		ReclaimGrace:      60 * time.Second,
		TimerWheelEnabled: true,
		IdleTimeout:       1800 * time.Second,
		CloseOnIdle:       true,
		FloodKickEnabled:  true,
		FloodTimeInterval: 100 * time.Millisecond,
		FloodKickCounter:  10,
		WorkerPoolSize:    0, // 0 = runtime.NumCPU()
		LogLevel:          "info",
		MaxFileSize:       100 * 1024 * 1024,
		MaxFiles:          10,
	}
}

// Watcher hot-reloads a subset of Config's fields (timeouts, flood
// thresholds, worker pool size — the keys spec.md §6 marks safe to
// change without a process restart) from a JSON file whenever it
// changes on disk, using fsnotify rather than a poll loop. Unknown keys
// in the file are ignored.
type Watcher struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
	fw   *fsnotify.Watcher
}

// NewWatcher starts watching path for changes, applying its initial
// contents (if the file exists) on top of cfg.
func NewWatcher(cfg *Config, path string) (*Watcher, error) {
	w := &Watcher{cfg: cfg, path: path}

	if err := w.reload(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		// Nothing to watch yet (file may not exist on first boot);
		// the watcher stays idle until the caller creates it.
		log.Printf("config: not watching %s: %v", path, err)
	}
	w.fw = fw

	go w.loop()

	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := w.reload(); err != nil {
				log.Printf("config: reload %s failed: %v", w.path, err)
			} else {
				log.Printf("config: reloaded %s", w.path)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Printf("config: watch error: %v", err)
		}
	}
}

// reload re-reads the JSON file and applies only the fields spec.md §6
// names as safe to change live.
func (w *Watcher) reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}

	var patch struct {
		ReclaimGrace      *string `json:"Net.Sock_RecyConnectionWaitTime"`
		TimerWheelEnabled *bool   `json:"Net.Sock_WaitTimeEnable"`
		IdleTimeout       *string `json:"Net.Sock_MaxWaitTime"`
		CloseOnIdle       *bool   `json:"Net.Sock_TimeOutKick"`
		FloodKickEnabled  *bool   `json:"NetSecurity.Sock_FloodAttackKickEnable"`
		FloodTimeInterval *string `json:"NetSecurity.Sock_FloodTimeInterval"`
		FloodKickCounter  *int    `json:"NetSecurity.Sock_FloodKickCounter"`
		WorkerPoolSize    *int    `json:"ProcMsgRecvWorkThreadCount"`
		LogLevel          *string `json:"Log.LogLevel"`
	}
	if err := json.Unmarshal(data, &patch); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if patch.ReclaimGrace != nil {
		if d, err := time.ParseDuration(*patch.ReclaimGrace); err == nil {
			w.cfg.ReclaimGrace = d
		}
	}
	if patch.TimerWheelEnabled != nil {
		w.cfg.TimerWheelEnabled = *patch.TimerWheelEnabled
	}
	if patch.IdleTimeout != nil {
		if d, err := time.ParseDuration(*patch.IdleTimeout); err == nil {
			w.cfg.IdleTimeout = d
		}
	}
	if patch.CloseOnIdle != nil {
		w.cfg.CloseOnIdle = *patch.CloseOnIdle
	}
	if patch.FloodKickEnabled != nil {
		w.cfg.FloodKickEnabled = *patch.FloodKickEnabled
	}
	if patch.FloodTimeInterval != nil {
		if d, err := time.ParseDuration(*patch.FloodTimeInterval); err == nil {
			w.cfg.FloodTimeInterval = d
		}
	}
	if patch.FloodKickCounter != nil {
		w.cfg.FloodKickCounter = *patch.FloodKickCounter
	}
	if patch.WorkerPoolSize != nil {
		w.cfg.WorkerPoolSize = *patch.WorkerPoolSize
	}
	if patch.LogLevel != nil {
		w.cfg.LogLevel = *patch.LogLevel
	}

	return nil
}

// Snapshot returns a copy of the current live configuration values.
func (w *Watcher) Snapshot() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return *w.cfg
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fw.Close()
}
