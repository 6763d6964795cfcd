// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bestelampe/lampd/internal/color"
	"github.com/bestelampe/lampd/internal/driver"
	"github.com/bestelampe/lampd/internal/gamut"
	"github.com/bestelampe/lampd/internal/hid"
	"github.com/bestelampe/lampd/internal/mixer"
)

// withOutput loads the configuration, opens the configured driver and
// passes a mixer writing to it to fn.
func withOutput(fn func(m *mixer.Mixer) error) error {
	cfg, g, err := loadGamut()
	if err != nil {
		return err
	}

	out, manager, err := openDriver(cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s driver: %w", cfg.Driver.Type, err)
	}
	return driveOutput(out, manager, mixer.New(g, out, cfg.MixerOptions()...), fn)
}

// driveOutput runs fn against m and releases out afterwards. The duties
// written by fn stay on the hardware.
func driveOutput(out outputDriver, manager *hid.Manager, m *mixer.Mixer, fn func(m *mixer.Mixer) error) error {
	defer func() {
		if err := releaseOutput(out); err != nil {
			log.Error().Err(err).Msg("Failed to release driver")
		}
	}()

	if manager != nil {
		if _, err := refreshControllersWithRetry(manager, 0); err != nil {
			return err
		}
		if manager.Count() == 0 {
			return hid.ErrControllerNotFound
		}
	}

	if err := fn(m); err != nil {
		return err
	}
	m.Report()
	return nil
}

// releaser is implemented by drivers whose Close switches the outputs off.
type releaser interface {
	Release() error
}

// releaseOutput lets go of out without switching its outputs off. HID
// controllers keep their duties after the handle is closed.
func releaseOutput(out outputDriver) error {
	if r, ok := out.(releaser); ok {
		return r.Release()
	}
	return out.Close()
}

func newChannelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channel NAME FRACTION",
		Short: "Drive a single channel and switch all others off",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fraction, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid fraction %q: %w", args[1], err)
			}
			return withOutput(func(m *mixer.Mixer) error {
				return m.SetChannel(args[0], fraction)
			})
		},
	}
}

func newDutiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "duties FRACTION...",
		Short: "Write raw drive fractions, one per configured channel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fractions, err := parseFractions(args)
			if err != nil {
				return err
			}
			return withOutput(func(m *mixer.Mixer) error {
				return m.SetDuties(fractions)
			})
		},
	}
}

func parseFractions(args []string) ([]float64, error) {
	fractions := make([]float64, len(args))
	for i, arg := range args {
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid fraction %q: %w", arg, err)
		}
		fractions[i] = f
	}
	return fractions, nil
}

func newMixCmd() *cobra.Command {
	var (
		temperature float64
		level       float64
		rgb         string
	)

	cmd := &cobra.Command{
		Use:   "mix",
		Short: "Print the channel duties for a color without driving hardware",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, g, err := loadGamut()
			if err != nil {
				return err
			}

			m := mixer.New(g, driver.NewLog(cfg.ChannelNames()), cfg.MixerOptions()...)

			var result mixer.Result
			if rgb != "" {
				c, err := colorful.Hex(rgb)
				if err != nil {
					return fmt.Errorf("invalid color %q: %w", rgb, err)
				}
				xyz, err := color.FromRGB(c, 1)
				if err != nil {
					return err
				}
				xy, err := xyz.Chromaticity()
				if err != nil {
					return err
				}
				result, err = m.SetChromaticityAndBrightness(xy, level)
				if err != nil {
					return err
				}
			} else {
				result, err = m.SetTemperatureAndBrightness(temperature, level)
				if err != nil {
					return err
				}
			}

			printResult(cmd.OutOrStdout(), g, result)
			return nil
		},
	}

	cmd.Flags().Float64VarP(&temperature, "temperature", "t", 2700, "Color temperature in Kelvin")
	cmd.Flags().Float64VarP(&level, "brightness", "b", 1, "Linear brightness in [0, 1]")
	cmd.Flags().StringVar(&rgb, "rgb", "", "Mix the chromaticity of an sRGB color such as #ff8000 instead")
	return cmd
}

func printResult(w io.Writer, g *gamut.Gamut, result mixer.Result) {
	fmt.Fprintf(w, "target     %s\n", result.Target)
	fmt.Fprintf(w, "luminance  %.6f\n", result.Luminance)
	if !result.Matched {
		fmt.Fprintln(w, "triangle   none (outside of gamut)")
	} else {
		names := g.Names(result.Triangle)
		fmt.Fprintf(w, "triangle   %s\n", strings.Join(names[:], " "))
		fmt.Fprintf(w, "weights    %.4f %.4f %.4f\n", result.Weights[0], result.Weights[1], result.Weights[2])
	}
	if result.Clamped {
		fmt.Fprintln(w, "clamped    yes")
	}
	if result.Saturated {
		fmt.Fprintln(w, "saturated  yes")
	}
	for i, f := range result.Fractions {
		fmt.Fprintf(w, "%-10s %.6f\n", g.Channel(i).Name, f)
	}
}

func newGamutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gamut",
		Short: "Print the configured channels and their triangulation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, g, err := loadGamut()
			if err != nil {
				return err
			}
			printGamut(cmd.OutOrStdout(), g)
			return nil
		},
	}
}

func printGamut(w io.Writer, g *gamut.Gamut) {
	fmt.Fprintln(w, "channels:")
	for _, ch := range g.Channels() {
		fmt.Fprintf(w, "  %-4s %s max %.1f\n", ch.Name, ch.Color, ch.MaxBrightness)
	}

	fmt.Fprintln(w, "triangles:")
	for _, tri := range g.Triangles() {
		names := g.Names(tri)
		fmt.Fprintf(w, "  %s\n", strings.Join(names[:], " "))
	}

	fmt.Fprintln(w, "boundary:")
	for _, e := range g.Boundary() {
		fmt.Fprintf(w, "  %s-%s\n", g.Channel(e[0]).Name, g.Channel(e[1]).Name)
	}

	fmt.Fprintln(w, "locus:")
	for _, temperature := range locusSamples {
		xy, err := color.TemperatureToXY(temperature, color.Reject)
		if err != nil {
			continue
		}
		coverage := "outside"
		if g.Contains(xy) {
			coverage = "inside"
		}
		fmt.Fprintf(w, "  %5.0f K %s %s\n", temperature, xy, coverage)
	}
}

// locusSamples are the color temperatures whose coverage the gamut command
// reports.
var locusSamples = []float64{1800, 2200, 2700, 3000, 4000, 5000, 6500, 8000, 10000}
