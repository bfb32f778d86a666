package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harunnryd/telira/pkg/captions"
	"github.com/harunnryd/telira/pkg/configutil"
	"github.com/harunnryd/telira/pkg/logging"
	"github.com/harunnryd/telira/pkg/media"
	mediamock "github.com/harunnryd/telira/pkg/media/mock"
	"github.com/harunnryd/telira/pkg/providers/deepgram"
	provmock "github.com/harunnryd/telira/pkg/providers/mock"
	"github.com/harunnryd/telira/pkg/ringtone"
	"github.com/harunnryd/telira/pkg/runner"
	"github.com/harunnryd/telira/pkg/signaling"
	sigmock "github.com/harunnryd/telira/pkg/signaling/mock"
	"github.com/harunnryd/telira/pkg/signaling/twilio"
	"github.com/harunnryd/telira/pkg/telira"
)

type deepgramSettings struct {
	APIKey     string `mapstructure:"api_key"`
	APIBaseURL string `mapstructure:"api_base_url"`
	Model      string `mapstructure:"model"`
	Language   string `mapstructure:"language"`
}

type twilioSettings struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
	ServerAddr string `mapstructure:"server_addr"`
	PublicURL  string `mapstructure:"public_url"`
	VoicePath  string `mapstructure:"voice_path"`
	StatusPath string `mapstructure:"status_path"`
}

type mockCaptionSettings struct {
	Transcripts []string `mapstructure:"transcripts"`
}

func registerProviders(reg *telira.Registry) {
	reg.RegisterUserAgent("twilio", func(cfg telira.Config) (signaling.UserAgent, error) {
		schema := configutil.Schema{
			Required: []string{"account_sid", "auth_token", "from_number"},
			Optional: []string{"server_addr", "public_url", "voice_path", "status_path"},
		}
		if err := configutil.ValidateSettings(cfg.Signaling.Settings, schema); err != nil {
			return nil, err
		}
		var settings twilioSettings
		if err := configutil.DecodeSettings(cfg.Signaling.Settings, &settings); err != nil {
			return nil, err
		}
		return twilio.New(twilio.Config{
			AccountSID: settings.AccountSID,
			AuthToken:  settings.AuthToken,
			FromNumber: settings.FromNumber,
			ServerAddr: settings.ServerAddr,
			PublicURL:  settings.PublicURL,
			VoicePath:  settings.VoicePath,
			StatusPath: settings.StatusPath,
		}), nil
	})
	reg.RegisterUserAgent("mock", func(cfg telira.Config) (signaling.UserAgent, error) {
		return sigmock.NewUserAgent(), nil
	})

	reg.RegisterLink("deepgram", func(cfg telira.Config) (captions.LinkFactory, error) {
		schema := configutil.Schema{
			Required: []string{"api_key"},
			Optional: []string{"api_base_url", "model", "language"},
		}
		if err := configutil.ValidateSettings(cfg.Captions.Settings, schema); err != nil {
			return nil, err
		}
		var settings deepgramSettings
		if err := configutil.DecodeSettings(cfg.Captions.Settings, &settings); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.APIKey, "captions.settings.api_key"); err != nil {
			return nil, err
		}
		return deepgram.NewLinkFactory(deepgram.Config{
			APIKey:     settings.APIKey,
			APIBaseURL: settings.APIBaseURL,
			Model:      settings.Model,
			Language:   settings.Language,
		}), nil
	})
	reg.RegisterLink("mock", func(cfg telira.Config) (captions.LinkFactory, error) {
		var settings mockCaptionSettings
		if err := configutil.DecodeSettings(cfg.Captions.Settings, &settings); err != nil {
			return nil, err
		}
		return func(channel captions.Channel) (captions.Link, error) {
			results := make([]provmock.Result, 0, len(settings.Transcripts))
			for _, text := range settings.Transcripts {
				results = append(results, provmock.Result{Text: text})
			}
			return provmock.NewLink(channel, results...), nil
		}, nil
	})
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := telira.LoadConfig(*configPath)
	if err != nil {
		slog.Error("config_load_failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := logging.InitLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	slog.SetDefault(logger)

	reg := telira.NewRegistry()
	registerProviders(reg)

	engine, err := telira.NewEngine(telira.EngineOptions{
		Config:    cfg,
		Providers: reg,
		Capture:   mediamock.NewCapture(),
		Mixer:     mediamock.NewMixer(),
		Recorders: func(stream media.Stream, channel string) media.Recorder {
			return mediamock.NewRecorder(channel)
		},
		Player: ringtone.NopPlayer{},
	})
	if err != nil {
		slog.Error("engine_build_failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("engine_stopped", slog.String("error", err.Error()))
		}
	}()
	go func() {
		for line := range engine.Captions() {
			slog.Info("caption", slog.String("line", line))
		}
	}()

	if err := engine.Register(ctx); err != nil {
		slog.Error("registration_failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	run := runner.NewLifecycleRunner(engine, runner.Hooks{
		OnStart: func() { slog.Info("telira_started") },
		OnStop:  func() { slog.Info("telira_stopped") },
	}, 10*time.Second)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		_ = run.Stop()
	}()

	if err := run.Run(ctx); err != nil {
		slog.Error("shutdown_error", slog.String("error", err.Error()))
	}
}
