package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Environment variables that override secrets from the file.
const (
	EnvAuthToken = "NOTIFYRELAY_AUTH_TOKEN"
	EnvBotToken  = "NOTIFYRELAY_BOT_TOKEN"
)

// Defaults.
const (
	DefaultPrimaryTimeout  = "5s"
	DefaultFallbackTimeout = "15s"
	DefaultRetryLimit      = 5
	DefaultFallbackRate    = 1.0
	DefaultMaxPageSize     = 3000
	DefaultAlertDelay      = "5m"
	DefaultMetricsJob      = "notifyrelay"
	DefaultMetricsTimeout  = "10s"
)

// ApplyEnv overrides secrets from the environment when set.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvAuthToken); ok && strings.TrimSpace(v) != "" {
		c.Primary.AuthToken = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv(EnvBotToken); ok && strings.TrimSpace(v) != "" {
		c.Fallback.BotToken = strings.TrimSpace(v)
	}
}

// Normalize fills omitted fields with defaults.
func (c *Config) Normalize() {
	c.Receiver.Name = strings.TrimSpace(c.Receiver.Name)
	c.Primary.URL = strings.TrimRight(strings.TrimSpace(c.Primary.URL), "/")
	if strings.TrimSpace(c.Primary.Timeout) == "" {
		c.Primary.Timeout = DefaultPrimaryTimeout
	}
	if c.Primary.RetryLimit <= 0 {
		c.Primary.RetryLimit = DefaultRetryLimit
	}
	if strings.TrimSpace(c.Fallback.Timeout) == "" {
		c.Fallback.Timeout = DefaultFallbackTimeout
	}
	if c.Fallback.RetryLimit <= 0 {
		c.Fallback.RetryLimit = DefaultRetryLimit
	}
	if c.Fallback.RatePerSec <= 0 {
		c.Fallback.RatePerSec = DefaultFallbackRate
	}
	if c.Paging.MaxSize <= 0 {
		c.Paging.MaxSize = DefaultMaxPageSize
	}
	if strings.TrimSpace(c.Alerts.Delay) == "" {
		c.Alerts.Delay = DefaultAlertDelay
	}
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.ThresholdStore != nil {
		c.ThresholdStore.Driver = strings.ToLower(strings.TrimSpace(c.ThresholdStore.Driver))
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if c.Metrics.JobName == "" {
		c.Metrics.JobName = DefaultMetricsJob
	}
	if strings.TrimSpace(c.Metrics.Timeout) == "" {
		c.Metrics.Timeout = DefaultMetricsTimeout
	}
}

// FallbackEnabled reports whether a bot token is configured.
func (c *Config) FallbackEnabled() bool { return strings.TrimSpace(c.Fallback.BotToken) != "" }

// ThresholdStoreConfig returns the store holding threshold state.
func (c *Config) ThresholdStoreConfig() StoreConfig {
	if c.ThresholdStore != nil && c.ThresholdStore.Driver != "" {
		return *c.ThresholdStore
	}
	return c.Store
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if c.Receiver.ID == 0 && c.Receiver.Name == "" {
		errs = append(errs, errors.New("receiver: id or name is required"))
	}
	if c.Receiver.ID != 0 && c.Receiver.Name != "" {
		errs = append(errs, errors.New("receiver: set id or name, not both"))
	}
	if c.Primary.URL == "" {
		errs = append(errs, errors.New("primary.url is required"))
	}
	durations := map[string]string{
		"primary.timeout":    c.Primary.Timeout,
		"fallback.timeout":   c.Fallback.Timeout,
		"alerts.delay":       c.Alerts.Delay,
		"metrics.timeout":    c.Metrics.Timeout,
		"store.busy_timeout": c.Store.BusyTimeout,
	}
	if c.ThresholdStore != nil {
		durations["threshold_store.busy_timeout"] = c.ThresholdStore.BusyTimeout
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, validateStore("store", c.Store)...)
	if c.ThresholdStore != nil {
		errs = append(errs, validateStore("threshold_store", *c.ThresholdStore)...)
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		errs = append(errs, errors.New("logging.file.path is required when logging.file.enabled"))
	}
	if c.Logging.Telegram.Enabled {
		if c.Logging.Telegram.ChatID == 0 {
			errs = append(errs, errors.New("logging.telegram.chat_id is required when logging.telegram.enabled"))
		}
		if !c.FallbackEnabled() {
			errs = append(errs, errors.New("logging.telegram requires fallback.bot_token"))
		}
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.PushgatewayURL) == "" {
		errs = append(errs, errors.New("metrics.pushgateway_url is required when metrics.enabled"))
	}
	return errors.Join(errs...)
}

func validateStore(path string, s StoreConfig) []error {
	var errs []error
	switch s.Driver {
	case "", "memory":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(s.Path) == "" {
			errs = append(errs, fmt.Errorf("%s.path is required when %s.driver=%s", path, path, s.Driver))
		}
	case "redis":
		if strings.TrimSpace(s.Addr) == "" {
			errs = append(errs, fmt.Errorf("%s.addr is required when %s.driver=redis", path, path))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown %s.driver: %s", path, s.Driver))
	}
	return errs
}
