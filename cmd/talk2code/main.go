package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"
	log "log/slog"

	"talk2code/internal/audio"
	"talk2code/internal/config"
	"talk2code/internal/ipc"
	"talk2code/internal/metrics"
	"talk2code/internal/models"
	"talk2code/internal/notify"
	"talk2code/internal/proxy"
	"talk2code/internal/session"
	"talk2code/internal/web"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	configPath := cli.StringP("config", "c", "", "YAML config file")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "", "Log level")
	addr := cli.StringP("addr", "a", "", "Web UI listen address")
	socksAddr := cli.StringP("proxy", "p", "", "Socks proxy for HTTP model backends")
	cli.Parse()

	godotenv.Load(*envFile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		log.Error("Bad environment", "err", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if *socksAddr != "" {
		cfg.LLM.Proxy = *socksAddr
	}

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[cfg.Log.Level],
	})))

	log.Info("Booting up")

	if err := cfg.Validate(); err != nil {
		log.Error("Invalid config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient, err := proxy.NewHTTPClient(cfg.LLM.Proxy, cfg.LLM.Timeout)
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", cfg.LLM.Proxy, "err", err)
		os.Exit(1)
	}

	loader := models.FromConfig(cfg, httpClient)
	if _, _, err := loader.Load(ctx); err != nil {
		if errors.Is(err, models.ErrModelMissing) {
			log.Error("Model missing", "err", err)
		} else {
			log.Error("Failed to load models", "err", err)
		}
		os.Exit(1)
	}
	defer loader.Close()

	log.Debug("Loaded models", "backend", cfg.LLM.Backend)

	var capture audio.Capturer
	rec := audio.NewRecorder()
	if err := rec.Init(); err != nil {
		log.Warn("No audio input, record mode disabled", "err", err)
	} else {
		defer rec.Close()
		capture = rec
		log.Debug("Loaded recorder")
	}

	acq := audio.NewAcquirer(capture, audio.Options{
		Duration:       cfg.Audio.RecordDuration,
		SampleRate:     cfg.Audio.SampleRate,
		TempDir:        cfg.Audio.TempDir,
		MaxUploadBytes: cfg.Audio.MaxUploadBytes,
	})

	m := metrics.New()
	opts := session.Options{
		TranscribeTimeout: cfg.Whisper.Timeout,
		GenerateTimeout:   cfg.LLM.Timeout,
		Metrics:           m,
	}
	if cfg.Audio.Chime {
		opts.Chime = notify.ChimeOrLog
	}
	sess := session.New(acq, loader, opts)

	if cfg.IPC.Socket != "" {
		srv, err := ipc.StartServer(cfg.IPC.Socket, handleControl(sess))
		if err != nil {
			log.Error("Failed ipc server", "err", err)
			os.Exit(1)
		}
		defer srv.Close()
		log.Debug("Control socket ready", "path", cfg.IPC.Socket)
	}

	log.Info("Boot up - successful")

	if cfg.HTTP.Addr == "" {
		<-ctx.Done()
		return
	}

	ui, err := web.NewServer(sess, web.Options{
		RecordDuration: cfg.Audio.RecordDuration,
		MaxUploadBytes: cfg.Audio.MaxUploadBytes,
		Metrics:        m,
	})
	if err != nil {
		log.Error("Failed to build web ui", "err", err)
		os.Exit(1)
	}
	if err := ui.ListenAndServe(ctx, cfg.HTTP.Addr); err != nil {
		log.Error("Web ui stopped", "err", err)
	}
}
