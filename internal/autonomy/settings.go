package autonomy

import "time"

// Bounds and defaults of the scheduler settings, in seconds.
const (
	MinIntervalSecs     = 30
	MaxIntervalSecs     = 86400
	DefaultIntervalSecs = 300
	DefaultCooldownSecs = 900
	DefaultPendingCap   = 12
)

// Settings control the think-cycle loop.
type Settings struct {
	Enabled    bool
	Interval   time.Duration
	Cooldown   time.Duration
	PendingCap int
}

// DefaultSettings returns the built-in scheduler settings.
func DefaultSettings() Settings {
	return Settings{
		Enabled:    true,
		Interval:   DefaultIntervalSecs * time.Second,
		Cooldown:   DefaultCooldownSecs * time.Second,
		PendingCap: DefaultPendingCap,
	}
}

// ClampSeconds bounds an interval setting to [MinIntervalSecs, MaxIntervalSecs].
func ClampSeconds(v int) int {
	return min(max(v, MinIntervalSecs), MaxIntervalSecs)
}

// withDefaults fills zero values. It does not clamp; configuration does.
func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Interval <= 0 {
		s.Interval = d.Interval
	}
	if s.Cooldown <= 0 {
		s.Cooldown = d.Cooldown
	}
	if s.PendingCap <= 0 {
		s.PendingCap = d.PendingCap
	}
	return s
}
