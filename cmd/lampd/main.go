// Package main provides the entry point for the LED lamp color-mixing daemon.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bestelampe/lampd/internal/config"
	"github.com/bestelampe/lampd/internal/control"
	"github.com/bestelampe/lampd/internal/dbus"
	"github.com/bestelampe/lampd/internal/driver"
	"github.com/bestelampe/lampd/internal/gamut"
	"github.com/bestelampe/lampd/internal/hid"
	"github.com/bestelampe/lampd/internal/mixer"
	"github.com/bestelampe/lampd/internal/schedule"
	"github.com/bestelampe/lampd/internal/udev"
)

var (
	verbose    bool
	configPath string
	dryRun     bool
	noDBus     bool
	systemBus  bool
	rootCmd    = &cobra.Command{
		Use:   "lampd",
		Short: "Color-mixing daemon for multi-channel LED lamps",
		Long: `lampd drives a lamp built from several LED channels of different colors.

It converts a target color temperature and brightness into one drive
fraction per channel by mixing the three channels whose chromaticities
surround the target, smooths target changes over time, and exposes the
target on D-Bus. Channels are driven through GPIO PWM pins or USB HID
LED controllers.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Log channel duties instead of driving hardware")
	rootCmd.Flags().BoolVar(&noDBus, "no-dbus", false, "Do not export the D-Bus control interface")
	rootCmd.Flags().BoolVar(&systemBus, "system-bus", false, "Export the D-Bus interface on the system bus")

	rootCmd.AddCommand(newMixCmd(), newGamutCmd(), newChannelCmd(), newDutiesCmd())
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// outputDriver is a channel driver that owns hardware resources.
type outputDriver interface {
	mixer.ChannelDriver
	io.Closer
}

// openDriver creates the configured output driver. The returned manager is
// non-nil for USB HID controllers only.
func openDriver(cfg *config.Config) (outputDriver, *hid.Manager, error) {
	if dryRun {
		return driver.NewLog(cfg.ChannelNames()), nil, nil
	}

	switch cfg.Driver.Type {
	case config.DriverPWM:
		frequency, err := cfg.Frequency()
		if err != nil {
			return nil, nil, err
		}
		pwm, err := driver.OpenPWM(cfg.Driver.Pins, frequency)
		if err != nil {
			return nil, nil, err
		}
		return pwm, nil, nil
	case config.DriverHID:
		manager := hid.NewManager(hid.WithUSBIDs(cfg.Driver.VendorID, cfg.Driver.ProductID))
		return manager, manager, nil
	default:
		return driver.NewLog(cfg.ChannelNames()), nil, nil
	}
}

// loadGamut loads the configuration and builds the gamut it describes.
func loadGamut() (*config.Config, *gamut.Gamut, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	g, err := gamut.Build(cfg.ChannelSpecs(), cfg.GamutOptions()...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build gamut: %w", err)
	}
	return cfg, g, nil
}

func run() error {
	log.Info().Msg("Starting lampd")

	cfg, g, err := loadGamut()
	if err != nil {
		return err
	}
	log.Info().
		Int("channels", g.Len()).
		Int("triangles", len(g.Triangles())).
		Str("driver", cfg.Driver.Type).
		Msg("Gamut loaded")

	out, manager, err := openDriver(cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s driver: %w", cfg.Driver.Type, err)
	}

	state, err := control.NewState(cfg.InitialTarget())
	if err != nil {
		return err
	}
	m := mixer.New(g, out, cfg.MixerOptions()...)

	var serverOpts []dbus.ServerOption
	if manager != nil {
		serverOpts = append(serverOpts, dbus.WithControllers(manager))
	}
	if systemBus {
		serverOpts = append(serverOpts, dbus.WithSystemBus())
	}

	loopOpts := []control.LoopOption{control.WithInterval(cfg.Interval)}
	// The server is created before the loop so that hot-plug handlers can
	// emit signals. Without --no-dbus it is started below.
	var loop *control.Loop
	server := dbus.NewServer(state, g.Channels(), dutiesFunc(func() []float64 { return loop.Duties() }), serverOpts...)
	if manager != nil {
		loopOpts = append(loopOpts, control.WithErrorHandler(createDeviceErrorHandler(manager, server)))
	}
	loop = control.NewLoop(state, m, loopOpts...)

	if !noDBus {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start D-Bus server")
		}
		state.Subscribe(server.EmitTargetChanged)
	}

	var monitor *udev.Monitor
	if manager != nil {
		if _, err := refreshControllersWithRetry(manager, 0); err != nil {
			log.Error().Err(err).Msg("Failed to enumerate LED controllers")
		}
		if count := manager.Count(); count == 0 {
			log.Warn().Msg("No LED controllers found")
		} else {
			log.Info().Int("count", count).Msg("Found LED controllers")
		}

		monitor = udev.NewMonitor(createHotplugHandler(manager, server),
			udev.WithUSBIDs(cfg.Driver.VendorID, cfg.Driver.ProductID),
			udev.WithRecoveryHandler(createRecoveryHandler(manager, server)),
		)
		if err := monitor.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start udev monitor (hot-plug detection disabled)")
		}
	}

	scenes := make([]schedule.Scene, len(cfg.Schedule))
	for i, s := range cfg.Schedule {
		scenes[i] = schedule.Scene{Spec: s.Spec, Temperature: s.Temperature, Brightness: s.Brightness, Speed: s.Speed}
	}
	scheduler, err := schedule.New(state, scenes)
	if err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	if scheduler.Len() > 0 {
		scheduler.Start()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("Daemon running, press Ctrl+C to stop")
	loop.Run(ctx)

	// Cleanup
	log.Info().Msg("Shutting down...")
	<-scheduler.Stop().Done()
	if monitor != nil {
		if err := monitor.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop udev monitor")
		}
	}
	if err := server.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop D-Bus server")
	}
	m.Report()
	if err := m.Off(); err != nil {
		log.Error().Err(err).Msg("Failed to switch channels off")
	}
	if err := out.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close driver")
	}

	log.Info().Msg("Daemon stopped")
	return nil
}

// dutiesFunc adapts a function to dbus.DutyReporter.
type dutiesFunc func() []float64

func (f dutiesFunc) Duties() []float64 {
	return f()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Failed to execute command")
	}
}
