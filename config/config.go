// Package config loads the refkit daemon configuration from TOML.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"

	"refkit/infra/logutil"
)

type Config struct {
	Server    ServerConfig      `toml:"server"`
	Log       logutil.LogConfig `toml:"log"`
	Journal   JournalConfig     `toml:"journal"`
	Ledger    LedgerConfig      `toml:"ledger"`
	Memory    MemoryConfig      `toml:"memory"`
	Broadcast BroadcastConfig   `toml:"broadcast"`
	Workload  WorkloadConfig    `toml:"workload"`
	Snapshot  SnapshotConfig    `toml:"snapshot"`
}

type ServerConfig struct {
	Listen string `toml:"listen"`
}

type JournalConfig struct {
	Dir          string   `toml:"dir"`
	SegmentSize  int64    `toml:"segment-size"`
	SyncInterval Duration `toml:"sync-interval"`
}

type LedgerConfig struct {
	Dir string `toml:"dir"`
}

type MemoryConfig struct {
	// BlockLimit caps live control blocks; 0 means unlimited.
	BlockLimit     int64    `toml:"block-limit"`
	RetireRingSize uint64   `toml:"retire-ring-size"`
	EpochInterval  Duration `toml:"epoch-interval"`
}

type BroadcastConfig struct {
	// Driver is "sarama", "kafka-go", or empty to disable publishing.
	Driver   string   `toml:"driver"`
	Brokers  []string `toml:"brokers"`
	Topic    string   `toml:"topic"`
	Format   string   `toml:"format"`
	Interval Duration `toml:"interval"`
}

type WorkloadConfig struct {
	Enabled    bool     `toml:"enabled"`
	Workers    int      `toml:"workers"`
	Objects    int      `toml:"objects"`
	Iterations int      `toml:"iterations"`
	Interval   Duration `toml:"interval"`
}

type SnapshotConfig struct {
	Dir      string   `toml:"dir"`
	Interval Duration `toml:"interval"`
}

// Duration decodes TOML strings such as "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "parse duration %q", text)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Listen: ":50051"},
		Log:    logutil.LogConfig{Level: "info", Format: "console"},
		Journal: JournalConfig{
			Dir:          "./data/journal",
			SegmentSize:  2 * 1024 * 1024,
			SyncInterval: Duration{time.Second},
		},
		Ledger: LedgerConfig{Dir: "./data/ledger"},
		Memory: MemoryConfig{
			RetireRingSize: 1 << 16,
			EpochInterval:  Duration{2 * time.Second},
		},
		Broadcast: BroadcastConfig{
			Topic:    "refkit.lifecycle",
			Format:   "proto",
			Interval: Duration{250 * time.Millisecond},
		},
		Workload: WorkloadConfig{
			Workers:    8,
			Objects:    64,
			Iterations: 1000,
			Interval:   Duration{5 * time.Second},
		},
		Snapshot: SnapshotConfig{
			Dir:      "./data/snapshot",
			Interval: Duration{time.Minute},
		},
	}
}

// Load decodes path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, errors.Wrapf(err, "decode config %s", path)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Journal.Dir == "" || c.Ledger.Dir == "" {
		return errors.New("config: journal.dir and ledger.dir are required")
	}
	if c.Journal.SegmentSize <= 0 {
		return errors.Newf("config: journal.segment-size must be positive, got %d", c.Journal.SegmentSize)
	}
	if n := c.Memory.RetireRingSize; n == 0 || n&(n-1) != 0 {
		return errors.Newf("config: memory.retire-ring-size must be a power of two, got %d", n)
	}
	if c.Memory.BlockLimit < 0 {
		return errors.New("config: memory.block-limit must not be negative")
	}
	switch c.Broadcast.Driver {
	case "":
	case "sarama", "kafka-go":
		if len(c.Broadcast.Brokers) == 0 {
			return errors.Newf("config: broadcast driver %q needs brokers", c.Broadcast.Driver)
		}
	default:
		return errors.Newf("config: unknown broadcast driver %q", c.Broadcast.Driver)
	}
	switch c.Broadcast.Format {
	case "proto", "json":
	default:
		return errors.Newf("config: unknown broadcast format %q", c.Broadcast.Format)
	}
	if c.Workload.Enabled && (c.Workload.Workers <= 0 || c.Workload.Objects <= 0) {
		return errors.New("config: workload.workers and workload.objects must be positive")
	}
	return nil
}
