package app

import (
	"fmt"
	"strings"
	"time"

	"sponsorsync/internal/config"
	"sponsorsync/internal/httpapi"
	"sponsorsync/internal/scheduler"
	"sponsorsync/internal/source"
	"sponsorsync/internal/storage"
)

const (
	defaultAddr          = "127.0.0.1:8080"
	defaultInterval      = 5 * time.Minute
	defaultFetchTimeout  = 10 * time.Second
	defaultCalendarScan  = 90 * 24 * time.Hour
	defaultReadTimeout   = 10 * time.Second
	defaultWriteTimeout  = 10 * time.Second
	defaultIdleTimeout   = 60 * time.Second
)

func mapServerConfig(cfg *config.Config) (httpapi.Config, error) {
	sc := cfg.Server

	read, err := config.ParseDurationOrDefault("server.read_timeout", sc.ReadTimeout, defaultReadTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("server.write_timeout", sc.WriteTimeout, defaultWriteTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("server.idle_timeout", sc.IdleTimeout, defaultIdleTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	if sc.SyncRatePerSec < 0 {
		return httpapi.Config{}, fmt.Errorf("server.sync_rate_per_sec must be >= 0")
	}

	addr := strings.TrimSpace(sc.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	return httpapi.Config{
		Addr:           addr,
		APIKey:         sc.APIKey,
		AllowInsecure:  sc.AllowInsecure,
		ReadTimeout:    read,
		WriteTimeout:   write,
		IdleTimeout:    idle,
		SyncRatePerSec: sc.SyncRatePerSec,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	interval, err := config.ParseDurationOrDefault("scheduler.interval", cfg.Scheduler.Interval, defaultInterval)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{Enabled: cfg.Scheduler.Enabled, Interval: interval}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", driver)
	}
}

func mapFetchTimeout(cfg *config.Config) (time.Duration, error) {
	raw := strings.TrimSpace(cfg.Sync.FetchTimeout)
	if raw == "" {
		return defaultFetchTimeout, nil
	}
	// "0s" explicitly disables the fetch deadline.
	return config.ParseDurationField("sync.fetch_timeout", raw)
}

// sourceNames resolves the configured adapter list, in merge order.
func sourceNames(cfg *config.Config) []string {
	if len(cfg.Sync.Sources) == 0 {
		return []string{"salesforce", "asana", "google_calendar"}
	}
	out := make([]string, 0, len(cfg.Sync.Sources))
	for _, s := range cfg.Sync.Sources {
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out
}

func mapGoogleCalendarConfig(cfg *config.Config) (source.GoogleCalendarConfig, bool, error) {
	gc := cfg.Sync.GoogleCalendar
	if gc == nil || !gc.Live {
		return source.GoogleCalendarConfig{}, false, nil
	}
	if strings.TrimSpace(gc.CredentialsFile) == "" {
		return source.GoogleCalendarConfig{}, false, fmt.Errorf("sync.google_calendar.credentials_file is required when live=true")
	}
	if strings.TrimSpace(gc.TokenFile) == "" {
		return source.GoogleCalendarConfig{}, false, fmt.Errorf("sync.google_calendar.token_file is required when live=true")
	}
	window, err := config.ParseDurationOrDefault("sync.google_calendar.window", gc.Window, defaultCalendarScan)
	if err != nil {
		return source.GoogleCalendarConfig{}, false, err
	}
	calID := strings.TrimSpace(gc.CalendarID)
	if calID == "" {
		calID = "primary"
	}
	return source.GoogleCalendarConfig{
		CalendarID:      calID,
		CredentialsFile: gc.CredentialsFile,
		TokenFile:       gc.TokenFile,
		Window:          window,
	}, true, nil
}
