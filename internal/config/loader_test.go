package config_test

import (
	"strings"
	"testing"

	"github.com/mossgate/voxbridge/internal/config"
)

func TestValidate_DirectCall(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Discord: config.Discord{BotToken: "test-bot-token"},
		Voice: config.Voice{
			Enabled: true,
			Audio:   config.Audio{InputSampleRate: 48000, SttSampleRate: 16000},
		},
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: noisy
voice:
  enabled: true
  stt:
    provider: carrier-pigeon
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
	if !strings.Contains(errStr, "voice.stt.provider") {
		t.Errorf("error should mention voice.stt.provider, got: %v", err)
	}
}

func TestValidate_VoiceDisabledSkipsChecks(t *testing.T) {
	t.Parallel()
	// When voice is disabled, none of the voice.* fields are validated even
	// if they would otherwise be invalid.
	yaml := `
voice:
  enabled: false
  stt:
    provider: carrier-pigeon
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/voxbridge.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
