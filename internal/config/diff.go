package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PromptTemplateChanged is true when the summarisation prompt template
	// differs. The new template can be swapped into the running service.
	PromptTemplateChanged bool

	// BoundsChanged is true when the selection bounds differ.
	BoundsChanged bool

	// SweepIntervalChanged is true when the sweeper interval differs.
	// Applying this change requires a sweeper restart.
	SweepIntervalChanged bool
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.PromptTemplateChanged || d.BoundsChanged || d.SweepIntervalChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.Summary.PromptTemplate, new.Summary.PromptTemplate) {
		d.PromptTemplateChanged = true
	}

	oldB, newB := old.Summary.Bounds, new.Summary.Bounds
	switch {
	case oldB == nil && newB == nil:
	case oldB == nil || newB == nil:
		d.BoundsChanged = true
	case *oldB != *newB:
		d.BoundsChanged = true
	}

	if old.Summary.SweepIntervalSeconds != new.Summary.SweepIntervalSeconds {
		d.SweepIntervalChanged = true
	}

	return d
}
