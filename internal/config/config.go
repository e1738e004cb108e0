// Package config содержит настройки клиента синхронизации записей.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Поддерживаемые драйверы хранилища
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

// Поддерживаемые встроенные стратегии слияния
const (
	StrategyRemoteWins = "remote-wins"
	StrategyLocalWins  = "local-wins"
)

// ErrInvalidConfig возвращается при невалидных значениях настроек
var ErrInvalidConfig = errors.New("invalid config")

// Storage настройки локального офлайн-хранилища
type Storage struct {
	Driver  string `yaml:"driver"`
	Path    string `yaml:"path"`
	Encrypt bool   `yaml:"encrypt"`
}

// Transport настройки websocket-соединения
type Transport struct {
	URL               string        `yaml:"url"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	ReconnectBurst    int           `yaml:"reconnect_burst"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
}

// Options настройки клиента. Длительности в YAML задаются строками ("3s").
type Options struct {
	Storage              Storage       `yaml:"storage"`
	Transport            Transport     `yaml:"transport"`
	MergeStrategy        string        `yaml:"merge_strategy"`
	LogLevel             string        `yaml:"log_level"`
	WriteWhitelist       []string      `yaml:"write_whitelist"`
	InitialRecordVersion int64         `yaml:"initial_record_version"`
	DiscardTimeout       time.Duration `yaml:"discard_timeout"`
	ReadTimeout          time.Duration `yaml:"read_timeout"`
	SubscribeTimeout     time.Duration `yaml:"subscribe_timeout"`
	DeleteTimeout        time.Duration `yaml:"delete_timeout"`
	AckTimeout           time.Duration `yaml:"ack_timeout"`
	DirtyFlushInterval   time.Duration `yaml:"dirty_flush_interval"`
	PathCacheSize        int           `yaml:"path_cache_size"`
	ReadOnly             bool          `yaml:"read_only"`
}

// Default возвращает настройки по умолчанию
func Default() Options {
	return Options{
		InitialRecordVersion: 1,
		DiscardTimeout:       5 * time.Second,
		ReadTimeout:          10 * time.Second,
		SubscribeTimeout:     10 * time.Second,
		DeleteTimeout:        10 * time.Second,
		AckTimeout:           10 * time.Second,
		DirtyFlushInterval:   250 * time.Millisecond,
		MergeStrategy:        StrategyRemoteWins,
		PathCacheSize:        1000,
		LogLevel:             "info",
		Storage: Storage{
			Driver: DriverBolt,
			Path:   "recordsync.db",
		},
		Transport: Transport{
			URL:               "ws://localhost:6020/records",
			ReconnectInterval: time.Second,
			ReconnectBurst:    3,
			WriteTimeout:      10 * time.Second,
		},
	}
}

// Load читает YAML-файл поверх настроек по умолчанию и проверяет результат
func Load(path string) (Options, error) {
	opts := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := opts.Validate(); err != nil {
		return Options{}, err
	}

	return opts, nil
}

// Validate проверяет согласованность настроек
func (o Options) Validate() error {
	if o.InitialRecordVersion < 0 {
		return fmt.Errorf("%w: initial_record_version must not be negative", ErrInvalidConfig)
	}

	durations := map[string]time.Duration{
		"discard_timeout":              o.DiscardTimeout,
		"read_timeout":                 o.ReadTimeout,
		"subscribe_timeout":            o.SubscribeTimeout,
		"delete_timeout":               o.DeleteTimeout,
		"ack_timeout":                  o.AckTimeout,
		"dirty_flush_interval":         o.DirtyFlushInterval,
		"transport.reconnect_interval": o.Transport.ReconnectInterval,
		"transport.write_timeout":      o.Transport.WriteTimeout,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, name)
		}
	}

	switch o.MergeStrategy {
	case StrategyRemoteWins, StrategyLocalWins:
	default:
		return fmt.Errorf("%w: unknown merge_strategy %q", ErrInvalidConfig, o.MergeStrategy)
	}

	switch o.Storage.Driver {
	case DriverBolt, DriverSQLite:
	default:
		return fmt.Errorf("%w: unknown storage.driver %q", ErrInvalidConfig, o.Storage.Driver)
	}

	if o.Storage.Path == "" {
		return fmt.Errorf("%w: storage.path is required", ErrInvalidConfig)
	}

	if o.Transport.ReconnectBurst < 1 {
		return fmt.Errorf("%w: transport.reconnect_burst must be at least 1", ErrInvalidConfig)
	}

	if _, err := o.Level(); err != nil {
		return err
	}

	return nil
}

// Level переводит log_level в slog.Level
func (o Options) Level() (slog.Level, error) {
	switch strings.ToLower(o.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, o.LogLevel)
	}
}

// CanWrite сообщает, разрешена ли запись в name.
// Вне read-only режима разрешено всё, в нём только имена с префиксом из белого списка.
func (o Options) CanWrite(name string) bool {
	if !o.ReadOnly {
		return true
	}
	for _, prefix := range o.WriteWhitelist {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
