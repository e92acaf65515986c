package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	pebblestore "github.com/rzbill/bookq/internal/storage/pebble"
	"github.com/rzbill/bookq/internal/mq"
	"github.com/rzbill/bookq/pkg/weight"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	DataDir         string `yaml:"dataDir"`
	Fsync           string `yaml:"fsync"` // always | interval | never
	FsyncIntervalMs int    `yaml:"fsyncIntervalMs"`
	PageSize        int    `yaml:"pageSize"`
	MaxStale        uint32 `yaml:"maxStale"`
	Costs           Costs  `yaml:"costs"`
}

// Costs mirrors mq.CostTable with serializable fields.
type Costs struct {
	BumpServiceHead              uint64 `yaml:"bumpServiceHead"`
	ServiceQueueBase             uint64 `yaml:"serviceQueueBase"`
	ServicePageBaseCompletion    uint64 `yaml:"servicePageBaseCompletion"`
	ServicePageBaseNoCompletion  uint64 `yaml:"servicePageBaseNoCompletion"`
	ServicePageItem              uint64 `yaml:"servicePageItem"`
	ServicePageItemPerByte       uint64 `yaml:"servicePageItemPerByte"`
	ReadyRingUnknit              uint64 `yaml:"readyRingUnknit"`
	ExecuteOverweightPageUpdated uint64 `yaml:"executeOverweightPageUpdated"`
	ExecuteOverweightPageRemoved uint64 `yaml:"executeOverweightPageRemoved"`
}

// Default returns built-in defaults.
func Default() Config {
	dc := mq.DefaultCosts()
	return Config{
		DataDir:         "data",
		Fsync:           "interval",
		FsyncIntervalMs: 5,
		PageSize:        mq.DefaultPageSize,
		MaxStale:        mq.DefaultMaxStale,
		Costs: Costs{
			BumpServiceHead:              uint64(dc.BumpServiceHead),
			ServiceQueueBase:             uint64(dc.ServiceQueueBase),
			ServicePageBaseCompletion:    uint64(dc.ServicePageBaseCompletion),
			ServicePageBaseNoCompletion:  uint64(dc.ServicePageBaseNoCompletion),
			ServicePageItem:              uint64(dc.ServicePageItem),
			ServicePageItemPerByte:       uint64(dc.ServicePageItemPerByte),
			ReadyRingUnknit:              uint64(dc.ReadyRingUnknit),
			ExecuteOverweightPageUpdated: uint64(dc.ExecuteOverweightPageUpdated),
			ExecuteOverweightPageRemoved: uint64(dc.ExecuteOverweightPageRemoved),
		},
	}
}

// Load reads configuration from a YAML file. If path is empty, returns
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "config: parse yaml")
	}
	return cfg, nil
}

// FsyncMode translates the configured fsync policy for the store wrapper.
func (c Config) FsyncMode() pebblestore.FsyncMode {
	switch c.Fsync {
	case "always":
		return pebblestore.FsyncModeAlways
	case "never":
		return pebblestore.FsyncModeNever
	case "interval":
		return pebblestore.FsyncModeInterval
	default:
		return pebblestore.FsyncModeUnspecified
	}
}

// StoreOptions assembles the pebble wrapper options.
func (c Config) StoreOptions() pebblestore.Options {
	return pebblestore.Options{
		DataDir:       c.DataDir,
		Fsync:         c.FsyncMode(),
		FsyncInterval: time.Duration(c.FsyncIntervalMs) * time.Millisecond,
	}
}

// Table converts the serializable cost fields to the engine's table.
func (c Costs) Table() mq.CostTable {
	return mq.CostTable{
		BumpServiceHead:              weight.Weight(c.BumpServiceHead),
		ServiceQueueBase:             weight.Weight(c.ServiceQueueBase),
		ServicePageBaseCompletion:    weight.Weight(c.ServicePageBaseCompletion),
		ServicePageBaseNoCompletion:  weight.Weight(c.ServicePageBaseNoCompletion),
		ServicePageItem:              weight.Weight(c.ServicePageItem),
		ServicePageItemPerByte:       weight.Weight(c.ServicePageItemPerByte),
		ReadyRingUnknit:              weight.Weight(c.ReadyRingUnknit),
		ExecuteOverweightPageUpdated: weight.Weight(c.ExecuteOverweightPageUpdated),
		ExecuteOverweightPageRemoved: weight.Weight(c.ExecuteOverweightPageRemoved),
	}
}
