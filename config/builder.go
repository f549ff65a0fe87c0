package config

import (
	"sort"

	"github.com/jpalmerr/munirpanel"
)

// SessionOptions converts the selected environment and timing settings into
// options for [munirpanel.Connect].
func SessionOptions(cfg *Config) []munirpanel.SessionOption {
	adapter := cfg.Adapter()

	opts := []munirpanel.SessionOption{
		munirpanel.WithInterval(cfg.PollInterval.Duration()),
	}
	if cfg.QuietPeriod != 0 {
		opts = append(opts, munirpanel.WithQuietPeriod(cfg.QuietPeriod.Duration()))
	}
	if adapter.Timeout != 0 {
		opts = append(opts, munirpanel.WithTimeout(adapter.Timeout.Duration()))
	}
	if len(adapter.Headers) > 0 {
		opts = append(opts, munirpanel.WithHeaders(mapToKeyValuePairs(adapter.Headers)...))
	}
	return opts
}

// PanelOptions converts parsed configuration into options for
// [munirpanel.New]. The adapter base URL is cfg.Adapter().BaseURL.
func PanelOptions(cfg *Config) []munirpanel.Option {
	opts := []munirpanel.Option{
		munirpanel.WithPort(cfg.Port),
		munirpanel.WithResource(cfg.Resource),
		munirpanel.WithSessionOptions(SessionOptions(cfg)...),
	}
	if cfg.Title != "" {
		opts = append(opts, munirpanel.WithTitle(cfg.Title))
	}
	if cfg.Subsystem != "" {
		opts = append(opts, munirpanel.WithSubsystem(cfg.Subsystem))
	}
	return opts
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
