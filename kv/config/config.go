package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
)

// Storage engine kinds.
const (
	EngineMem     = "mem"
	EngineBadger  = "badger"
	EngineLevelDB = "leveldb"
)

type Config struct {
	AppID string `toml:"app-id"` // The app this store serves unless Trusted is set.
	Addr  string `toml:"addr"`   // HTTP API listen address.
	// Trusted lets callers read and write the data of any app.
	Trusted bool `toml:"trusted"`
	// RequireIndexes makes queries fail unless a matching composite index
	// has been registered.
	RequireIndexes bool   `toml:"require-indexes"`
	IndexFile      string `toml:"index-file"` // Optional index.yaml loaded at startup.

	Datastore Datastore  `toml:"datastore"`
	Engine    Engine     `toml:"engine"`
	Log       log.Config `toml:"log"`
}

type Datastore struct {
	IDBlockSize      uint64 `toml:"id-block-size"`       // Ids reserved from the counter cell per round-trip.
	MaxLiveCursors   int    `toml:"max-live-cursors"`    // Least recently used cursors beyond this are evicted.
	MaxActionsPerTxn int    `toml:"max-actions-per-txn"` // Deferred actions one transaction may queue.
	ActionQueueSize  int    `toml:"action-queue-size"`   // Buffered actions waiting for delivery.
}

type Engine struct {
	Kind           string `toml:"kind"`            // One of mem, badger and leveldb.
	DBPath         string `toml:"db-path"`         // Directory to store the data in. Should exist and be writable.
	ValueThreshold int    `toml:"value-threshold"` // If value size >= this threshold, only store value offsets in tree.
	VlogFileSize   string `toml:"vlog-file-size"`  // Value log file size, e.g. "256MB".

	// Sync all writes to disk. Setting this to true would slow down data loading significantly.
	SyncWrite bool `toml:"sync-write"`
}

// VlogFileSizeBytes parses VlogFileSize.
func (e *Engine) VlogFileSizeBytes() (int64, error) {
	size, err := units.RAMInBytes(e.VlogFileSize)
	if err != nil {
		return 0, errors.Annotatef(err, "invalid vlog-file-size %q", e.VlogFileSize)
	}
	return size, nil
}

func (c *Config) Validate() error {
	if c.AppID == "" {
		return fmt.Errorf("app-id must be set")
	}
	switch c.Engine.Kind {
	case EngineMem:
	case EngineBadger, EngineLevelDB:
		if c.Engine.DBPath == "" {
			return fmt.Errorf("db-path must be set for engine %s", c.Engine.Kind)
		}
	default:
		return fmt.Errorf("unknown engine kind %q", c.Engine.Kind)
	}
	if c.Engine.Kind == EngineBadger {
		if _, err := c.Engine.VlogFileSizeBytes(); err != nil {
			return err
		}
	}
	if c.Datastore.IDBlockSize == 0 {
		return fmt.Errorf("id-block-size must be greater than 0")
	}
	if c.Datastore.MaxLiveCursors <= 0 {
		return fmt.Errorf("max-live-cursors must be greater than 0")
	}
	if c.Datastore.MaxActionsPerTxn < 0 || c.Datastore.ActionQueueSize <= 0 {
		return fmt.Errorf("max-actions-per-txn must not be negative and action-queue-size must be positive")
	}
	return nil
}

// LoadFile overlays the TOML file at path onto c. Unknown keys are an
// error.
func (c *Config) LoadFile(path string) error {
	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		return errors.Trace(err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return errors.Errorf("config file %s contained unknown configuration options: %s",
			path, strings.Join(keys, ", "))
	}
	return nil
}

const (
	KB uint64 = 1024
	MB uint64 = 1024 * 1024
)

func getLogLevel() (logLevel string) {
	logLevel = "info"
	if l := os.Getenv("LOG_LEVEL"); len(l) != 0 {
		logLevel = l
	}
	return
}

func NewDefaultConfig() *Config {
	return &Config{
		AppID:          "dev~app",
		Addr:           "127.0.0.1:8080",
		RequireIndexes: false,
		Datastore: Datastore{
			IDBlockSize:      1000,
			MaxLiveCursors:   10000,
			MaxActionsPerTxn: 5,
			ActionQueueSize:  1024,
		},
		Engine: Engine{
			Kind:           EngineBadger,
			DBPath:         "/tmp/tinyds",
			ValueThreshold: 256,
			VlogFileSize:   "256MB",
			SyncWrite:      true,
		},
		Log: log.Config{
			Level: getLogLevel(),
		},
	}
}

func NewTestConfig() *Config {
	c := NewDefaultConfig()
	c.AppID = "test~app"
	c.Engine.Kind = EngineMem
	c.Engine.DBPath = "/tmp/tinyds-test"
	c.Engine.SyncWrite = false
	c.Engine.VlogFileSize = "16MB"
	c.Datastore.MaxLiveCursors = 100
	return c
}
