package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"windy/internal/audio"
	"windy/internal/bus"
	"windy/internal/config"
	"windy/internal/dialogue"
	"windy/internal/ipc"
	"windy/internal/player"
	"windy/internal/proxy"
	"windy/internal/respond"
	"windy/internal/sanitize"
	"windy/internal/transcribe"
	"windy/internal/tts"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	configFile := cli.StringP("config", "c", "", "Config file path")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address for remote backends")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	if err := godotenv.Load(*envFile); err != nil {
		log.Debug("No env file loaded", "path", *envFile, "err", err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}

	httpClient, err := proxy.NewHTTPClient(*proxyAddr, proxy.DefaultTimeout)
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", *proxyAddr, "err", err)
		os.Exit(1)
	}

	rec := audio.NewRecorder(cfg.Audio.SampleRate, cfg.Audio.FrameSize, log.Default())
	if err := rec.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer rec.Close()

	capturer := audio.NewCapturer(
		rec,
		audio.MethodsFromConfig(cfg.Audio.Fallback, os.Stdin, os.Stdout),
		nil,
		audio.OptionsFromConfig(cfg.Audio),
		log.Default(),
	)

	log.Debug("Loaded recorder")

	stt, closeSTT := transcribe.FromConfig(cfg.Transcription, httpClient, log.Default())
	defer closeSTT()

	log.Debug("Loaded transcription", "engines", stt.Engines())

	responder, err := respond.FromConfig(cfg.Response, httpClient, log.Default())
	if err != nil {
		log.Error("Failed to set up response backend", "err", err)
		os.Exit(1)
	}

	synth, err := tts.FromConfig(cfg.Speech, httpClient, log.Default())
	if err != nil {
		log.Error("Failed to set up speech synthesis", "err", err)
		os.Exit(1)
	}

	sanitizer := sanitize.New(sanitize.Options{
		MaxWords:  cfg.Response.MaxWords,
		HardLimit: cfg.Response.HardLimit,
		MinLength: cfg.Response.MinLength,
		Phrases:   append(append([]string{}, cfg.Phrases.Wake...), cfg.Phrases.Sleep...),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := ipc.NewServer(cfg.Runtime.SocketPath, log.Default())
	if err := srv.Start(); err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}
	defer srv.Close()

	deps := dialogue.Deps{
		Capturer:    capturer,
		Transcriber: stt,
		Responder:   responder,
		Sanitizer:   sanitizer,
		Synthesizer: synth,
		Player:      player.FromConfig(cfg.Player, log.Default()),
		Control:     srv.Requests(),
		OnState:     func(s dialogue.State) { srv.SetState(s.String()) },
		Log:         log.Default(),
	}

	// the bus outlives ctx so the shutdown event still goes out
	busCtx, stopBus := context.WithCancel(context.Background())
	busDone := make(chan struct{})
	if cfg.Runtime.BusURL != "" {
		events := bus.New(cfg.Runtime.BusURL, config.DefaultAppName, cfg.Runtime.BusReconn, log.Default())
		go func() {
			events.Run(busCtx)
			close(busDone)
		}()
		deps.Events = events
	} else {
		close(busDone)
	}

	machine, err := dialogue.New(dialogue.OptionsFromConfig(cfg), deps)
	if err != nil {
		stopBus()
		log.Error("Failed to build dialogue", "err", err)
		os.Exit(1)
	}

	log.Info("Boot up - successful", "name", cfg.Assistant.Name)

	machine.Run(ctx)

	log.Info("Shutting down")

	stopBus()
	<-busDone
}
