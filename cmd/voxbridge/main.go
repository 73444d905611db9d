// Command voxbridge is the main entry point for the Voxbridge Discord voice
// pipeline: STT → LLM agent → sentence-segmented TTS → ordered playback.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"go.opentelemetry.io/otel"

	"github.com/mossgate/voxbridge/internal/app"
	"github.com/mossgate/voxbridge/internal/config"
	"github.com/mossgate/voxbridge/internal/observe"
	"github.com/mossgate/voxbridge/pkg/agentbridge"
	"github.com/mossgate/voxbridge/pkg/agentbridge/anyllm"
	agentmock "github.com/mossgate/voxbridge/pkg/agentbridge/mock"
	"github.com/mossgate/voxbridge/pkg/agentbridge/openai"
	"github.com/mossgate/voxbridge/pkg/provider/stt"
	sttmock "github.com/mossgate/voxbridge/pkg/provider/stt/mock"
	"github.com/mossgate/voxbridge/pkg/provider/stt/whispercpp"
	"github.com/mossgate/voxbridge/pkg/provider/stt/ws"
	"github.com/mossgate/voxbridge/pkg/provider/tts"
	"github.com/mossgate/voxbridge/pkg/provider/tts/aivis"
	"github.com/mossgate/voxbridge/pkg/provider/tts/elevenlabs"
	ttsmock "github.com/mossgate/voxbridge/pkg/provider/tts/mock"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxbridge: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxbridge: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxbridge starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"voice_enabled", cfg.Voice.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var shutdownObserve func(context.Context) error
	var metrics *observe.Metrics
	if cfg.Server.ListenAddr != "" {
		shutdownObserve, err = observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "voxbridge"})
		if err != nil {
			slog.Error("failed to initialise telemetry providers", "err", err)
			return 1
		}
		metrics, err = observe.NewMetrics(otel.GetMeterProvider())
		if err != nil {
			slog.Error("failed to initialise metrics", "err", err)
			return 1
		}
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	var discordSession *discordgo.Session
	if cfg.Voice.Enabled {
		discordSession, err = discordgo.New("Bot " + cfg.Discord.BotToken)
		if err != nil {
			slog.Error("failed to construct discord session", "err", err)
			return 1
		}
		discordSession.Identify.Intents = discordgo.IntentsGuildVoiceStates | discordgo.IntentsGuilds
		if err := discordSession.Open(); err != nil {
			slog.Error("failed to open discord gateway connection", "err", err)
			return 1
		}
		defer discordSession.Close()
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, reg, discordSession, metrics)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("voxbridge ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if shutdownObserve != nil {
		if err := shutdownObserve(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires every provider implementation that ships
// with voxbridge into reg, under the provider names voice.stt.provider,
// voice.tts.provider, and agent.name select.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT(config.STTWS, func(c config.STT) (stt.Provider, error) {
		opts := []ws.Option{}
		if c.APIKey != "" {
			opts = append(opts, ws.WithAPIKey(c.APIKey))
		}
		if c.WS.ReconnectIntervalMs > 0 || c.WS.MaxReconnectAttempts > 0 {
			opts = append(opts, ws.WithReconnect(
				time.Duration(c.WS.ReconnectIntervalMs)*time.Millisecond,
				c.WS.MaxReconnectAttempts,
			))
		}
		return ws.New(c.WS.Endpoint, opts...), nil
	})
	reg.RegisterSTT(config.STTWhisperCpp, func(c config.STT) (stt.Provider, error) {
		return whispercpp.New(c.ModelPath)
	})
	reg.RegisterSTT(config.STTMock, func(c config.STT) (stt.Provider, error) {
		return sttmock.New(), nil
	})

	reg.RegisterTTS(config.TTSAivisSpeech, func(c config.TTS) (tts.Provider, error) {
		return aivis.New(c.Endpoint)
	})
	reg.RegisterTTS(config.TTSElevenLabs, func(c config.TTS) (tts.Provider, error) {
		opts := []elevenlabs.Option{}
		if c.Model != "" {
			opts = append(opts, elevenlabs.WithModel(c.Model))
		}
		return elevenlabs.New(c.APIKey, opts...)
	})
	reg.RegisterTTS(config.TTSMock, func(c config.TTS) (tts.Provider, error) {
		return ttsmock.New(), nil
	})

	reg.RegisterAgent("anyllm", func(e config.Entry) (agentbridge.Bridge, error) {
		providerName, _ := e.Options["provider"].(string)
		var llmOpts []anyllmlib.Option
		if e.APIKey != "" {
			llmOpts = append(llmOpts, anyllmlib.WithAPIKey(e.APIKey))
		}
		if e.BaseURL != "" {
			llmOpts = append(llmOpts, anyllmlib.WithBaseURL(e.BaseURL))
		}
		var bridgeOpts []anyllm.Option
		if prompt, ok := e.Options["system_prompt"].(string); ok && prompt != "" {
			bridgeOpts = append(bridgeOpts, anyllm.WithSystemPrompt(prompt))
		}
		return anyllm.New(providerName, e.Model, llmOpts, bridgeOpts...)
	})
	reg.RegisterAgent("openai", func(e config.Entry) (agentbridge.Bridge, error) {
		var opts []openai.Option
		if e.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(e.BaseURL))
		}
		if prompt, ok := e.Options["system_prompt"].(string); ok && prompt != "" {
			opts = append(opts, openai.WithSystemPrompt(prompt))
		}
		return openai.New(e.APIKey, e.Model, opts...)
	})
	reg.RegisterAgent("mock", func(e config.Entry) (agentbridge.Bridge, error) {
		return agentmock.New(), nil
	})
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║          Voxbridge — startup summary      ║")
	fmt.Println("╠══════════════════════════════════════════╣")
	printField("Agent", fieldValue(cfg.Agent.Name, cfg.Agent.Model))
	printField("Voice enabled", fmt.Sprintf("%t", cfg.Voice.Enabled))
	if cfg.Voice.Enabled {
		printField("STT provider", string(cfg.Voice.STT.Provider))
		printField("TTS provider", string(cfg.Voice.TTS.Provider))
		printField("Interrupts", fmt.Sprintf("%t", cfg.Voice.Pipeline.InterruptEnabled))
	}
	if cfg.Server.ListenAddr != "" {
		printField("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚══════════════════════════════════════════╝")
}

func fieldValue(name, model string) string {
	if name == "" {
		return "(not configured)"
	}
	if model != "" {
		return name + " / " + model
	}
	return name
}

func printField(label, value string) {
	if len(value) > 22 {
		value = value[:19] + "…"
	}
	fmt.Printf("║  %-14s: %-22s ║\n", label, value)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
