package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded without tearing down an
// active voice session are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	MaxConcurrentSTTChanged bool
	NewMaxConcurrentSTT     int

	MaxConcurrentTTSChanged bool
	NewMaxConcurrentTTS     int

	IdleTimeoutChanged bool
	NewIdleTimeoutSec  int

	InterruptEnabledChanged bool
	NewInterruptEnabled     bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restarting the
// session's gateway connection or re-establishing the STT stream.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Voice.Pipeline.MaxConcurrentSTT != new.Voice.Pipeline.MaxConcurrentSTT {
		d.MaxConcurrentSTTChanged = true
		d.NewMaxConcurrentSTT = new.Voice.Pipeline.MaxConcurrentSTT
	}

	if old.Voice.Pipeline.MaxConcurrentTTS != new.Voice.Pipeline.MaxConcurrentTTS {
		d.MaxConcurrentTTSChanged = true
		d.NewMaxConcurrentTTS = new.Voice.Pipeline.MaxConcurrentTTS
	}

	if old.Voice.Pipeline.IdleTimeoutSec != new.Voice.Pipeline.IdleTimeoutSec {
		d.IdleTimeoutChanged = true
		d.NewIdleTimeoutSec = new.Voice.Pipeline.IdleTimeoutSec
	}

	if old.Voice.Pipeline.InterruptEnabled != new.Voice.Pipeline.InterruptEnabled {
		d.InterruptEnabledChanged = true
		d.NewInterruptEnabled = new.Voice.Pipeline.InterruptEnabled
	}

	return d
}

// Changed reports whether any tracked field differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.MaxConcurrentSTTChanged || d.MaxConcurrentTTSChanged ||
		d.IdleTimeoutChanged || d.InterruptEnabledChanged
}
