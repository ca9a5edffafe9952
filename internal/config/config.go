package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

const (
	DefaultTimezone       = "America/Sao_Paulo"
	DefaultCalendarID     = "primary"
	DefaultTasklistID     = "@default"
	DefaultSummary        = "Sem título"
	DefaultTitleMaxLen    = 250
	DefaultTaskPageSize   = 100
	DefaultEventPageSize  = 2500
	DefaultRefreshCron    = "0 */6 * * *"
	DefaultBackfillDays   = 1
	DefaultHorizonDays    = 60
	DefaultMaxOccurrences = 500
)

// KeywordsConfig drives classification and title cleanup.
type KeywordsConfig struct {
	// Ignore keywords win over task keywords.
	Ignore []string `yaml:"ignore" json:"ignore"`
	Task   []string `yaml:"task" json:"task"`
	// StripPrefixes are source markers removed from the start of task titles.
	StripPrefixes []string `yaml:"strip_prefixes" json:"strip_prefixes"`
}

// GoogleConfig points at the OAuth client file and the cached user token.
type GoogleConfig struct {
	Credentials string `yaml:"credentials" json:"credentials"`
	Token       string `yaml:"token" json:"token"`
}

// ExpandConfig controls optional recurrence expansion.
type ExpandConfig struct {
	Enabled        bool `yaml:"enabled" json:"enabled"`
	BackfillDays   int  `yaml:"backfill_days" json:"backfill_days"`
	HorizonDays    int  `yaml:"horizon_days" json:"horizon_days"`
	MaxOccurrences int  `yaml:"max_occurrences" json:"max_occurrences"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Feed is either an http(s) URL or a local file path.
	Feed string `yaml:"feed" json:"feed"`

	// Timezone is the IANA zone entries are normalized into.
	Timezone string `yaml:"timezone" json:"timezone"`

	CalendarID string `yaml:"calendar_id" json:"calendar_id"`
	TasklistID string `yaml:"tasklist_id" json:"tasklist_id"`

	Keywords KeywordsConfig `yaml:"keywords" json:"keywords"`

	TitleMaxLen    int    `yaml:"title_max_len" json:"title_max_len"`
	DefaultSummary string `yaml:"default_summary" json:"default_summary"`

	TaskPageSize  int `yaml:"task_page_size" json:"task_page_size"`
	EventPageSize int `yaml:"event_page_size" json:"event_page_size"`

	// RefreshCron is the cron schedule used by `calsync watch`.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Listen enables the status server in watch mode when non-empty.
	Listen    string           `yaml:"listen" json:"listen"`
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// CacheDir enables the ETag/Last-Modified cache for remote feeds.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Google GoogleConfig `yaml:"google" json:"google"`
	Expand ExpandConfig `yaml:"expand" json:"expand"`
}

func defaultIgnoreKeywords() []string {
	return []string{"Aula", "Presença"}
}

func defaultTaskKeywords() []string {
	return []string{"Exercícios", "Entrega", "Oficina", "Tarefa", "Tarefas", "Atividade"}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timezone:   DefaultTimezone,
		CalendarID: DefaultCalendarID,
		TasklistID: DefaultTasklistID,
		Keywords: KeywordsConfig{
			Ignore:        defaultIgnoreKeywords(),
			Task:          defaultTaskKeywords(),
			StripPrefixes: []string{"[TAREFA] "},
		},
		TitleMaxLen:    DefaultTitleMaxLen,
		DefaultSummary: DefaultSummary,
		TaskPageSize:   DefaultTaskPageSize,
		EventPageSize:  DefaultEventPageSize,
		RefreshCron:    DefaultRefreshCron,
		Google: GoogleConfig{
			Credentials: "credentials.json",
			Token:       "token.json",
		},
		Expand: ExpandConfig{
			BackfillDays:   DefaultBackfillDays,
			HorizonDays:    DefaultHorizonDays,
			MaxOccurrences: DefaultMaxOccurrences,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly. Keyword lists are only
// defaulted when absent (nil); an explicit empty list is respected.
func (c *Config) Normalize() {
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.CalendarID == "" {
		c.CalendarID = DefaultCalendarID
	}
	if c.TasklistID == "" {
		c.TasklistID = DefaultTasklistID
	}
	if c.Keywords.Ignore == nil {
		c.Keywords.Ignore = defaultIgnoreKeywords()
	}
	if c.Keywords.Task == nil {
		c.Keywords.Task = defaultTaskKeywords()
	}
	if c.Keywords.StripPrefixes == nil {
		c.Keywords.StripPrefixes = []string{"[TAREFA] "}
	}
	if c.TitleMaxLen <= 0 {
		c.TitleMaxLen = DefaultTitleMaxLen
	}
	if c.DefaultSummary == "" {
		c.DefaultSummary = DefaultSummary
	}
	if c.TaskPageSize <= 0 {
		c.TaskPageSize = DefaultTaskPageSize
	}
	if c.EventPageSize <= 0 {
		c.EventPageSize = DefaultEventPageSize
	}
	if c.RefreshCron == "" {
		c.RefreshCron = DefaultRefreshCron
	}
	if c.Google.Credentials == "" {
		c.Google.Credentials = "credentials.json"
	}
	if c.Google.Token == "" {
		c.Google.Token = "token.json"
	}
	if c.Expand.BackfillDays < 0 {
		c.Expand.BackfillDays = DefaultBackfillDays
	}
	if c.Expand.HorizonDays <= 0 {
		c.Expand.HorizonDays = DefaultHorizonDays
	}
	if c.Expand.MaxOccurrences <= 0 {
		c.Expand.MaxOccurrences = DefaultMaxOccurrences
	}
}

// Validate reports configuration values that would make a run fail later.
func (c *Config) Validate() error {
	var errs []error
	if c.Feed == "" {
		errs = append(errs, errors.New("feed is empty"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh %q: %w", c.RefreshCron, err))
	}
	return errors.Join(errs...)
}

// Location resolves Timezone. Call Validate first to surface a bad zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data next to path and renames it into place with
// 0600 permissions. The OAuth token file uses it too.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".calsync-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
