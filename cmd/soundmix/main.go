package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/glebovdev/soundmix/internal/api"
	"github.com/glebovdev/soundmix/internal/cache"
	"github.com/glebovdev/soundmix/internal/config"
	"github.com/glebovdev/soundmix/internal/focus"
	"github.com/glebovdev/soundmix/internal/mixer"
	"github.com/glebovdev/soundmix/internal/player"
	"github.com/glebovdev/soundmix/internal/service"
	"github.com/glebovdev/soundmix/internal/sound"
	"github.com/glebovdev/soundmix/internal/soundplayer"
	"github.com/glebovdev/soundmix/internal/ui"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	versionFlag = flag.Bool("version", false, "Show version information")
	debugFlag   = flag.Bool("debug", false, "Enable debug logging")
	presetFlag  = flag.String("preset", "", "Start playing the saved preset `NAME`")
	libraryFlag = flag.String("library", "", "Override the sound library `URL`")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s v%s - %s\n\n", config.AppName, config.AppVersion, config.AppDescription)
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()

		configPath, err := config.GetConfigPath()
		if err == nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				fmt.Fprintf(os.Stderr, "\nConfig file: %s\n", configPath)
			} else {
				fmt.Fprintf(os.Stderr, "\nConfig file will be created on first use.\n")
			}
		}
	}
}

func setupLogging(debug bool) {
	if !debug {
		// Avoid TUI corruption by only logging errors to /dev/null
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		logFile, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0644)
		if err == nil {
			log.Logger = log.Output(logFile)
		}
		return
	}

	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	cacheDir, err := cache.GetCacheDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not get cache dir: %v\n", err)
		cacheDir = os.TempDir()
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log dir: %v\n", err)
	}
	logPath := filepath.Join(cacheDir, "debug.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log file: %v\n", err)
		logFile = os.Stderr
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: logFile, TimeFormat: "15:04:05"})
	fmt.Printf("Debug log: %s\n", logPath)
	log.Info().Msgf("Starting %s v%s (debug mode)", config.AppName, config.AppVersion)

	if configPath, err := config.GetConfigPath(); err == nil {
		log.Debug().Msgf("Config: %s", configPath)
	}
	log.Debug().Msgf("Cache: %s", cacheDir)
}

// configureMixer pushes the persisted playback settings into the mixer.
func configureMixer(m *mixer.Manager, cfg *config.Config) {
	m.SetFadeInDuration(cfg.FadeInDuration())
	m.SetFadeOutDuration(cfg.FadeOutDuration())
	m.SetPremiumSegmentsEnabled(cfg.PremiumSegments)
	m.SetAutoStopAfterPause(cfg.AutoStopDuration())

	bitrate, err := sound.ParseBitrate(cfg.Bitrate)
	if err != nil {
		log.Warn().Err(err).Msg("Invalid bitrate in config, using default")
		bitrate = sound.DefaultBitrate
	}
	m.SetAudioBitrate(bitrate)

	attrs, err := focus.ParseUsage(cfg.AudioUsage)
	if err != nil {
		log.Warn().Err(err).Msg("Invalid audio usage in config, using media")
	}
	m.SetAudioAttributes(attrs)
}

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", config.AppName, config.AppVersion)
		fmt.Println(config.AppDescription)
		os.Exit(0)
	}

	setupLogging(*debugFlag)

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
	}

	if *presetFlag != "" {
		if _, ok := cfg.Presets[*presetFlag]; !ok {
			fmt.Fprintf(os.Stderr, "Unknown preset %q. Saved presets: %v\n", *presetFlag, cfg.PresetNames())
			os.Exit(2)
		}
	}

	libraryURL := cfg.LibraryURL
	if *libraryFlag != "" {
		libraryURL = *libraryFlag
	}
	log.Debug().Msgf("Library: %s", libraryURL)

	metaCache, err := cache.NewCache()
	if err != nil {
		log.Warn().Err(err).Msg("Metadata cache disabled")
		metaCache = nil
	}

	apiClient := api.NewLibraryClient(libraryURL)
	soundService := service.NewSoundService(apiClient, metaCache)

	output := player.NewSpeakerOutput()
	opener := player.NewHTTPOpener(libraryURL)
	factory := soundplayer.NewLocalFactory(soundService, func() soundplayer.MediaPlayer {
		return player.NewMediaPlayer(output, opener)
	}, uint64(time.Now().UnixNano()))

	var host focus.Host
	if cfg.AudioFocus {
		host = focus.NewArbiter()
	}

	mixerUI := ui.NewUI(soundService, cfg, *presetFlag)
	mix := mixer.New(factory, host, mixerUI)
	configureMixer(mix, cfg)
	mixerUI.SetMixer(mix)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, cleaning up...")
		mixerUI.Shutdown()
	}()

	log.Info().Msg("Starting UI...")

	uiDone := make(chan error, 1)

	// Run UI in a goroutine so we can handle signals properly
	go func() {
		uiDone <- mixerUI.Run()
	}()

	runErr := <-uiDone

	mix.Release()
	output.Close()

	if runErr != nil {
		log.Error().Err(runErr).Msg("Error running UI")
		os.Exit(1)
	}
	log.Info().Msg("SoundMix CLI stopped")
}
