package config_test

import (
	"testing"

	"github.com/mossgate/voxbridge/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.Server{LogLevel: config.LogInfo},
		Voice: config.Voice{
			Pipeline: config.Pipeline{MaxConcurrentTTS: 4, IdleTimeoutSec: 300},
		},
	}
	d := config.Diff(cfg, cfg)
	if d.Changed() {
		t.Error("expected no changes for identical configs")
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.Server{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.Server{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_MaxConcurrentTTSChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Voice: config.Voice{Pipeline: config.Pipeline{MaxConcurrentTTS: 2}}}
	new := &config.Config{Voice: config.Voice{Pipeline: config.Pipeline{MaxConcurrentTTS: 8}}}

	d := config.Diff(old, new)
	if !d.MaxConcurrentTTSChanged {
		t.Error("expected MaxConcurrentTTSChanged=true")
	}
	if d.NewMaxConcurrentTTS != 8 {
		t.Errorf("expected NewMaxConcurrentTTS=8, got %d", d.NewMaxConcurrentTTS)
	}
}

func TestDiff_MaxConcurrentSTTChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Voice: config.Voice{Pipeline: config.Pipeline{MaxConcurrentSTT: 2}}}
	new := &config.Config{Voice: config.Voice{Pipeline: config.Pipeline{MaxConcurrentSTT: 6}}}

	d := config.Diff(old, new)
	if !d.MaxConcurrentSTTChanged {
		t.Error("expected MaxConcurrentSTTChanged=true")
	}
	if d.NewMaxConcurrentSTT != 6 {
		t.Errorf("expected NewMaxConcurrentSTT=6, got %d", d.NewMaxConcurrentSTT)
	}
}

func TestDiff_IdleTimeoutChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Voice: config.Voice{Pipeline: config.Pipeline{IdleTimeoutSec: 300}}}
	new := &config.Config{Voice: config.Voice{Pipeline: config.Pipeline{IdleTimeoutSec: 60}}}

	d := config.Diff(old, new)
	if !d.IdleTimeoutChanged {
		t.Error("expected IdleTimeoutChanged=true")
	}
	if d.NewIdleTimeoutSec != 60 {
		t.Errorf("expected NewIdleTimeoutSec=60, got %d", d.NewIdleTimeoutSec)
	}
}

func TestDiff_InterruptEnabledChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Voice: config.Voice{Pipeline: config.Pipeline{InterruptEnabled: true}}}
	new := &config.Config{Voice: config.Voice{Pipeline: config.Pipeline{InterruptEnabled: false}}}

	d := config.Diff(old, new)
	if !d.InterruptEnabledChanged {
		t.Error("expected InterruptEnabledChanged=true")
	}
	if d.NewInterruptEnabled {
		t.Error("expected NewInterruptEnabled=false")
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server: config.Server{LogLevel: config.LogInfo},
		Voice:  config.Voice{Pipeline: config.Pipeline{MaxConcurrentTTS: 2, IdleTimeoutSec: 300}},
	}
	new := &config.Config{
		Server: config.Server{LogLevel: config.LogWarn},
		Voice:  config.Voice{Pipeline: config.Pipeline{MaxConcurrentTTS: 6, IdleTimeoutSec: 120}},
	}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if !d.MaxConcurrentTTSChanged {
		t.Error("expected MaxConcurrentTTSChanged=true")
	}
	if !d.IdleTimeoutChanged {
		t.Error("expected IdleTimeoutChanged=true")
	}
	if !d.Changed() {
		t.Error("expected Changed()=true")
	}
}
