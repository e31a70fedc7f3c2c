package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EngineConfig tunes the ledger and persistence behaviour of the billing engine.
type EngineConfig struct {
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
}

type LedgerConfig struct {
	// MaxConflictRetries bounds optimistic-concurrency retries on a party balance.
	MaxConflictRetries int           `mapstructure:"maxConflictRetries"`
	LockTTL            time.Duration `mapstructure:"lockTTL"`
	LockWait           time.Duration `mapstructure:"lockWait"`
	LockPollInterval   time.Duration `mapstructure:"lockPollInterval"`
}

type PersistenceConfig struct {
	MaxAttempts int           `mapstructure:"maxAttempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Ledger: LedgerConfig{
			MaxConflictRetries: 5,
			LockTTL:            10 * time.Second,
			LockWait:           5 * time.Second,
			LockPollInterval:   25 * time.Millisecond,
		},
		Persistence: PersistenceConfig{
			MaxAttempts: 3,
			Backoff:     50 * time.Millisecond,
		},
	}
}

type engineFile struct {
	Engine EngineConfig `mapstructure:"engine"`
}

func decodeEngine(v *viper.Viper) (EngineConfig, error) {
	var file engineFile
	if err := v.Unmarshal(&file); err != nil {
		return EngineConfig{}, err
	}
	return file.Engine, nil
}

type EngineConfigHolder struct {
	current atomic.Value // holds EngineConfig
}

// NewStaticEngineConfig returns a holder that never reloads.
func NewStaticEngineConfig(cfg EngineConfig) *EngineConfigHolder {
	holder := &EngineConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

// NewEngineConfigHolder reads engine.yml from the configured paths and watches it for changes.
func NewEngineConfigHolder(appCfg Config) (*EngineConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("engine")
	v.SetConfigType("yml")
	for _, path := range appCfg.EngineConfigPaths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("BILLBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultEngineConfig()
	v.SetDefault("engine.ledger.maxConflictRetries", defaults.Ledger.MaxConflictRetries)
	v.SetDefault("engine.ledger.lockTTL", defaults.Ledger.LockTTL)
	v.SetDefault("engine.ledger.lockWait", defaults.Ledger.LockWait)
	v.SetDefault("engine.ledger.lockPollInterval", defaults.Ledger.LockPollInterval)
	v.SetDefault("engine.persistence.maxAttempts", defaults.Persistence.MaxAttempts)
	v.SetDefault("engine.persistence.backoff", defaults.Persistence.Backoff)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	cfg, err := decodeEngine(v)
	if err != nil {
		return nil, err
	}
	if err := validateEngineConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticEngineConfig(cfg)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeEngine(v)
		if err != nil {
			log.Printf("[engine-config] reload failed: %v", err)
			return
		}
		if err := validateEngineConfig(updated); err != nil {
			log.Printf("[engine-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[engine-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *EngineConfigHolder) Get() EngineConfig {
	if h == nil {
		return DefaultEngineConfig()
	}
	return h.current.Load().(EngineConfig)
}

func validateEngineConfig(cfg EngineConfig) error {
	if cfg.Ledger.MaxConflictRetries < 0 {
		return errors.New("engine.ledger.maxConflictRetries cannot be negative")
	}
	if cfg.Ledger.LockTTL <= 0 {
		return errors.New("engine.ledger.lockTTL must be positive")
	}
	if cfg.Ledger.LockWait <= 0 {
		return errors.New("engine.ledger.lockWait must be positive")
	}
	if cfg.Ledger.LockPollInterval <= 0 {
		return errors.New("engine.ledger.lockPollInterval must be positive")
	}
	if cfg.Persistence.MaxAttempts < 1 {
		return errors.New("engine.persistence.maxAttempts must be at least 1")
	}
	return nil
}
