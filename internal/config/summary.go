package config

import (
	"hash/fnv"
	"reflect"
)

func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// SummarizeChange lists the top-level sections that differ between two configs.
// Only section names are returned, never values, so the result is safe to log.
func SummarizeChange(oldCfg, newCfg *Config) []string {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	sections := []struct {
		name     string
		old, new any
	}{
		{"receiver", oldCfg.Receiver, newCfg.Receiver},
		{"primary", oldCfg.Primary, newCfg.Primary},
		{"fallback", oldCfg.Fallback, newCfg.Fallback},
		{"paging", oldCfg.Paging, newCfg.Paging},
		{"alerts", oldCfg.Alerts, newCfg.Alerts},
		{"store", oldCfg.Store, newCfg.Store},
		{"threshold_store", oldCfg.ThresholdStore, newCfg.ThresholdStore},
		{"logging", oldCfg.Logging, newCfg.Logging},
		{"metrics", oldCfg.Metrics, newCfg.Metrics},
		{"dry_run", oldCfg.DryRun, newCfg.DryRun},
	}
	var changed []string
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			changed = append(changed, s.name)
		}
	}
	return changed
}
