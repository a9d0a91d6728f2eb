// hotreload.go: dynamic utility-parameter reload with Argus integration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package objectcache

import (
	"fmt"
	"sync"
	"time"

	"github.com/agilira/argus"
)

// HotConfig watches a configuration file and live-reloads a CacheEngine's
// UtilityFunction parameters when the file changes. Unlike a cache's MaxSize
// (which needs structural rebuilding), every one of objectcache's five
// utility parameters (ReservedFreeSpaceBytes among them) is safe to swap under the
// running engine: Evaluate is a pure function of its inputs, so the next
// LookupOrProduce or Evict call simply sees the new numbers.
type HotConfig struct {
	engine  *CacheEngine
	watcher *argus.Watcher
	mu      sync.RWMutex
	params  UtilityFunction

	// OnReload is called after parameters are successfully reloaded. Must be
	// fast and non-blocking.
	OnReload func(old, new UtilityFunction)
}

// HotConfigOptions configures hot reload behavior.
type HotConfigOptions struct {
	// ConfigPath is the path to the configuration file to watch. Supports
	// JSON, YAML, TOML, HCL, INI, Properties formats.
	ConfigPath string

	// PollInterval is how often to check for configuration changes.
	// Default: 1 second. Minimum: 100ms.
	PollInterval time.Duration

	// OnReload is called after parameters are successfully reloaded.
	OnReload func(old, new UtilityFunction)

	// Logger for hot reload operations. If nil, NoOpLogger is used.
	Logger Logger
}

// NewHotConfig creates a hot-reloadable parameter watcher for engine and
// starts watching ConfigPath immediately.
//
// Example configuration file (YAML):
//
//	utility:
//	  cost_per_minute_compute_vs_1gb: 0.1
//	  reserved_free_space_bytes: 1073741824
//	  half_life_hours: 24.0
//	  utility_at_1gb: 2.0
//	  marginal_utility_exponent: 1.0
//
// Supported configuration keys:
//   - utility.cost_per_minute_compute_vs_1gb (float, > 0)
//   - utility.reserved_free_space_bytes (int, >= 0)
//   - utility.half_life_hours (float, > 0)
//   - utility.utility_at_1gb (float, > 0)
//   - utility.marginal_utility_exponent (float)
func NewHotConfig(engine *CacheEngine, opts HotConfigOptions) (*HotConfig, error) {
	if opts.ConfigPath == "" {
		return nil, fmt.Errorf("config_path is required")
	}

	if opts.PollInterval == 0 {
		opts.PollInterval = 1 * time.Second
	} else if opts.PollInterval < 100*time.Millisecond {
		opts.PollInterval = 100 * time.Millisecond
	}

	if opts.Logger == nil {
		opts.Logger = NoOpLogger{}
	}

	hc := &HotConfig{
		engine:   engine,
		OnReload: opts.OnReload,
		params:   engine.UtilityParameters(),
	}

	argusConfig := argus.Config{
		PollInterval: opts.PollInterval,
	}

	watcher, err := argus.UniversalConfigWatcherWithConfig(opts.ConfigPath, hc.handleConfigChange, argusConfig)
	if err != nil {
		return nil, err
	}
	hc.watcher = watcher

	return hc, nil
}

// Start begins watching the configuration file for changes.
func (hc *HotConfig) Start() error {
	if hc.watcher.IsRunning() {
		return nil
	}
	return hc.watcher.Start()
}

// Stop stops watching the configuration file.
func (hc *HotConfig) Stop() error {
	return hc.watcher.Stop()
}

// Parameters returns the last-applied UtilityFunction (thread-safe).
func (hc *HotConfig) Parameters() UtilityFunction {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.params
}

func (hc *HotConfig) handleConfigChange(configData map[string]interface{}) {
	hc.mu.Lock()
	old := hc.params
	next := hc.parseParameters(configData, old)
	hc.params = next
	hc.mu.Unlock()

	hc.engine.SetUtilityParameters(next)

	if hc.OnReload != nil {
		hc.OnReload(old, next)
	}
}

// parsePositiveFloat extracts a float64 > 0 from an Argus value (YAML/JSON
// numbers surface as float64).
func parsePositiveFloat(value interface{}) (float64, bool) {
	if v, ok := value.(float64); ok && v > 0 {
		return v, true
	}
	return 0, false
}

// parseNonNegativeInt64 extracts an int64 >= 0 from an Argus value.
func parseNonNegativeInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		if v >= 0 {
			return int64(v), true
		}
	case int64:
		if v >= 0 {
			return v, true
		}
	case float64:
		if v >= 0 {
			return int64(v), true
		}
	}
	return 0, false
}

// parseFloat extracts any float64 from an Argus value, with no range
// restriction (marginal_utility_exponent may legitimately be 0 or negative
// in an experimental configuration).
func parseFloat(value interface{}) (float64, bool) {
	if v, ok := value.(float64); ok {
		return v, true
	}
	return 0, false
}

// parseParameters extracts utility parameters from Argus config data,
// falling back to base (the previous value) for any key that is absent or
// malformed.
func (hc *HotConfig) parseParameters(data map[string]interface{}, base UtilityFunction) UtilityFunction {
	next := base

	section, ok := data["utility"].(map[string]interface{})
	if !ok {
		if _, hasCost := data["cost_per_minute_compute_vs_1gb"]; hasCost {
			section = data
		} else {
			return next
		}
	}

	if v, ok := parsePositiveFloat(section["cost_per_minute_compute_vs_1gb"]); ok {
		next.CostPerMinuteComputeVs1GB = v
	}
	if v, ok := parseNonNegativeInt64(section["reserved_free_space_bytes"]); ok {
		next.ReservedFreeSpaceBytes = v
	}
	if v, ok := parsePositiveFloat(section["half_life_hours"]); ok {
		next.HalfLifeHours = v
	}
	if v, ok := parsePositiveFloat(section["utility_at_1gb"]); ok {
		next.UtilityAt1GB = v
	}
	if v, ok := parseFloat(section["marginal_utility_exponent"]); ok {
		next.MarginalUtilityExponent = v
	}

	return next
}
