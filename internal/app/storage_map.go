package app

import (
	"fmt"
	"strings"
	"time"

	"notifyrelay/internal/config"
	"notifyrelay/internal/storage"
)

func mapStoreConfig(path string, sc config.StoreConfig) (storage.Config, error) {
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	out := storage.Config{
		Driver:        driver,
		Path:          strings.TrimSpace(sc.Path),
		PruneSchedule: strings.TrimSpace(sc.PruneSchedule),
	}
	switch driver {
	case "", "memory":
		out.Driver = "memory"
	case "file":
		if out.Path == "" {
			return storage.Config{}, fmt.Errorf("%s.path is required when %s.driver=file", path, path)
		}
	case "sqlite", "sqlite3":
		if out.Path == "" {
			return storage.Config{}, fmt.Errorf("%s.path is required when %s.driver=sqlite", path, path)
		}
		busy, err := config.ParseDurationOrDefault(path+".busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		out.Driver = "sqlite"
		out.BusyTimeout = busy
	case "redis":
		out.Addr = strings.TrimSpace(sc.Addr)
		out.Password = sc.Password
		out.DB = sc.DB
		out.KeyPrefix = sc.KeyPrefix
	default:
		return storage.Config{}, fmt.Errorf("unknown %s.driver: %s", path, driver)
	}
	return out, nil
}

// sameStore reports whether two store configs address the same backend, in
// which case a single connection is shared.
func sameStore(a, b storage.Config) bool {
	if a.Driver != b.Driver {
		return false
	}
	switch a.Driver {
	case "memory":
		return true
	case "redis":
		return a.Addr == b.Addr && a.DB == b.DB && a.KeyPrefix == b.KeyPrefix
	default:
		return a.Path == b.Path
	}
}
