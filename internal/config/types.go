package config

// Config is the daemon's whole configuration. JSON and YAML files are both
// accepted; YAML is coerced to JSON so one strict decoder covers both.
//
// All duration fields are Go duration strings (e.g. "500ms", "10s", "5m").
type Config struct {
	Server    ServerConfig    `json:"server"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Sync      SyncConfig      `json:"sync"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
}

// ServerConfig controls the task API server.
//
// Security note:
//   - Prefer binding to localhost.
//   - Binding to a non-loopback address requires api_key, or an explicit
//     allow_insecure.
type ServerConfig struct {
	Addr          string `json:"addr,omitempty"` // default: "127.0.0.1:8080"
	APIKey        string `json:"api_key,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// SyncRatePerSec bounds manual sync triggers per second (default 5).
	SyncRatePerSec int `json:"sync_rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the periodic refresh job.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// Interval between refresh ticks (default "5m").
	Interval string `json:"interval,omitempty"`
}

// SyncConfig controls the sync engine and its source adapters.
type SyncConfig struct {
	// Sponsors pre-registered for periodic refresh at startup. Sponsors
	// synced on demand are registered automatically.
	Sponsors []string `json:"sponsors,omitempty"`

	// Sources lists the adapters to fetch from, in merge order. Empty means
	// all three: salesforce, asana, google_calendar.
	Sources []string `json:"sources,omitempty"`

	// FetchTimeout bounds the whole fetch phase of one sponsor's sync.
	// "0s" disables.
	FetchTimeout string `json:"fetch_timeout,omitempty"`

	GoogleCalendar *GoogleCalendarConfig `json:"google_calendar,omitempty"`
}

// GoogleCalendarConfig switches the google_calendar source between the
// built-in fixture and the live Calendar API.
type GoogleCalendarConfig struct {
	Live            bool   `json:"live"`
	CalendarID      string `json:"calendar_id,omitempty"` // default: "primary"
	CredentialsFile string `json:"credentials_file,omitempty"`
	TokenFile       string `json:"token_file,omitempty"`
	// Window is how far ahead events are pulled (default "2160h" = 90 days).
	Window string `json:"window,omitempty"`
}

// StorageConfig controls the optional sync-run audit ledger.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./sponsorsync_store" }
type StorageConfig struct {
	Driver      string `json:"driver"` // none|file|sqlite
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}
