package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/jeebs/internal/api"
	"github.com/starford/jeebs/internal/autonomy"
	"github.com/starford/jeebs/internal/proposal"
	"github.com/starford/jeebs/internal/workspace"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Workspace WorkspaceConfig   `yaml:"workspace"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Evolution EvolutionConfig   `yaml:"evolution"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Workspace.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Evolution.Validate()
}

// ApplyEnv overlays the JEEBS_* environment variables.
func (c *Config) ApplyEnv() {
	c.Workspace.Root = getEnv("JEEBS_WORKSPACE_ROOT", c.Workspace.Root)
	c.SQLite.Path = getEnv("JEEBS_DB_PATH", c.SQLite.Path)

	e := &c.Evolution
	e.Enabled = getEnvBool("JEEBS_AUTONOMY_ENABLED", e.Enabled)
	e.CycleIntervalSecs = getEnvInt("JEEBS_AUTONOMY_INTERVAL_SECS", e.CycleIntervalSecs)
	e.MinProposalIntervalSecs = getEnvInt("JEEBS_AUTONOMY_MIN_PROPOSAL_INTERVAL_SECS", e.MinProposalIntervalSecs)
	e.PendingCap = getEnvInt("JEEBS_AUTONOMY_PENDING_CAP", e.PendingCap)
	e.MaxChangeBytes = getEnvInt("JEEBS_EVOLUTION_MAX_CHANGE_BYTES", e.MaxChangeBytes)
	e.MaxTotalBytes = getEnvInt("JEEBS_EVOLUTION_MAX_TOTAL_BYTES", e.MaxTotalBytes)
	e.NotificationCap = getEnvInt("JEEBS_NOTIFICATION_CAP", e.NotificationCap)
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// WorkspaceConfig holds the directory proposals are applied to.
type WorkspaceConfig struct {
	Root string `yaml:"root"`
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): every request acts as Actor with full rights.
//   - "token": Bearer token authentication; Token must be non-empty.
//     ViewerToken, if set, grants read-only access.
type AuthConfig struct {
	Mode        string `yaml:"mode"`
	Token       string `yaml:"token"`
	ViewerToken string `yaml:"viewer_token"`
	Actor       string `yaml:"actor"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if c.Actor == "" {
		c.Actor = "root"
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	if c.ViewerToken != "" && c.ViewerToken == c.Token {
		return fmt.Errorf("auth: viewer_token must differ from token")
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// API converts the auth settings for the HTTP layer.
func (c *AuthConfig) API() api.AuthConfig {
	return api.AuthConfig{
		Enabled:     c.AuthEnabled(),
		Token:       c.Token,
		ViewerToken: c.ViewerToken,
		Actor:       c.Actor,
	}
}

// EvolutionConfig controls the think-cycle, the queue and the write sandbox.
type EvolutionConfig struct {
	Enabled                 bool     `yaml:"enabled"`
	CycleIntervalSecs       int      `yaml:"cycle_interval_seconds"`
	MinProposalIntervalSecs int      `yaml:"min_proposal_interval_seconds"`
	PendingCap              int      `yaml:"pending_cap"`
	MaxChangeBytes          int      `yaml:"max_change_bytes"`
	MaxTotalBytes           int      `yaml:"max_total_bytes"`
	NotificationCap         int      `yaml:"notification_cap"`
	AllowedPrefixes         []string `yaml:"allowed_prefixes"`
	AllowedRootFiles        []string `yaml:"allowed_root_files"`
	WatchWorkspace          bool     `yaml:"watch_workspace"`
}

// Validate clamps the interval settings into range and validates the rest.
func (c *EvolutionConfig) Validate() error {
	c.CycleIntervalSecs = autonomy.ClampSeconds(c.CycleIntervalSecs)
	c.MinProposalIntervalSecs = autonomy.ClampSeconds(c.MinProposalIntervalSecs)
	return validation.ValidateStruct(c,
		validation.Field(&c.PendingCap, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxChangeBytes, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxTotalBytes, validation.Required, validation.Min(c.MaxChangeBytes).
			Error("must be no less than max_change_bytes")),
		validation.Field(&c.NotificationCap, validation.Required, validation.Min(1)),
		validation.Field(&c.AllowedPrefixes, validation.Required,
			validation.Each(validation.Required, validation.By(trailingSlash))),
	)
}

func trailingSlash(v any) error {
	s, _ := v.(string)
	if len(s) > 0 && s[len(s)-1] != '/' {
		return fmt.Errorf("%q must end with /", s)
	}
	return nil
}

// Settings returns the scheduler settings.
func (c *EvolutionConfig) Settings() autonomy.Settings {
	return autonomy.Settings{
		Enabled:    c.Enabled,
		Interval:   time.Duration(c.CycleIntervalSecs) * time.Second,
		Cooldown:   time.Duration(c.MinProposalIntervalSecs) * time.Second,
		PendingCap: c.PendingCap,
	}
}

// Policy returns the write sandbox policy.
func (c *EvolutionConfig) Policy() workspace.Policy {
	return workspace.Policy{
		AllowedPrefixes:  c.AllowedPrefixes,
		AllowedRootFiles: c.AllowedRootFiles,
		MaxChangeBytes:   c.MaxChangeBytes,
		MaxTotalBytes:    c.MaxTotalBytes,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	policy := workspace.DefaultPolicy()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Workspace: WorkspaceConfig{
			Root: ".",
		},
		SQLite: SQLiteConfig{
			Path: "./jeebs.db",
		},
		Auth: AuthConfig{
			Mode:  AuthModeDisabled,
			Actor: "root",
		},
		Evolution: EvolutionConfig{
			Enabled:                 true,
			CycleIntervalSecs:       autonomy.DefaultIntervalSecs,
			MinProposalIntervalSecs: autonomy.DefaultCooldownSecs,
			PendingCap:              autonomy.DefaultPendingCap,
			MaxChangeBytes:          policy.MaxChangeBytes,
			MaxTotalBytes:           policy.MaxTotalBytes,
			NotificationCap:         proposal.DefaultNotificationCap,
			AllowedPrefixes:         append([]string(nil), policy.AllowedPrefixes...),
			AllowedRootFiles:        append([]string(nil), policy.AllowedRootFiles...),
			WatchWorkspace:          true,
		},
	}
}
