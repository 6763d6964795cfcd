// SPDX-License-Identifier: GPL-3.0-only

// Package dbus provides the D-Bus control surface of the lamp daemon.
package dbus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/bestelampe/lampd/internal/brightness"
	"github.com/bestelampe/lampd/internal/color"
	"github.com/bestelampe/lampd/internal/control"
	"github.com/bestelampe/lampd/internal/gamut"
	"github.com/bestelampe/lampd/internal/hid"
)

// ErrRateLimitExceeded is returned when target change requests exceed the rate limit.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ErrInvalidStep is returned when an invalid brightness step value is provided.
var ErrInvalidStep = errors.New("step must be between 1 and 100")

// ErrInvalidColor is returned for RGB strings that cannot be parsed or have
// no chromaticity.
var ErrInvalidColor = errors.New("invalid RGB color")

const (
	// rateLimitPerSecond is the maximum number of target changes per second.
	rateLimitPerSecond = 20

	// rateLimitBurst is the maximum burst size for target changes.
	rateLimitBurst = 5
)

const (
	// ServiceName is the D-Bus service name.
	ServiceName = "io.github.bestelampe.Lampd"

	// ObjectPath is the D-Bus object path.
	ObjectPath = "/io/github/bestelampe/Lampd"

	// InterfaceName is the D-Bus interface name.
	InterfaceName = "io.github.bestelampe.Lampd"
)

// IntrospectXML is the D-Bus introspection XML for the service.
const IntrospectXML = `
<node name="` + ObjectPath + `">
  <interface name="` + InterfaceName + `">
    <method name="GetTarget">
      <arg name="temperature" type="d" direction="out"/>
      <arg name="brightness" type="d" direction="out"/>
      <arg name="speed" type="d" direction="out"/>
    </method>
    <method name="SetTarget">
      <arg name="temperature" type="d" direction="in"/>
      <arg name="brightness" type="d" direction="in"/>
      <arg name="speed" type="d" direction="in"/>
    </method>
    <method name="SetTemperature">
      <arg name="temperature" type="d" direction="in"/>
    </method>
    <method name="GetBrightness">
      <arg name="brightness" type="u" direction="out"/>
    </method>
    <method name="SetBrightness">
      <arg name="brightness" type="u" direction="in"/>
    </method>
    <method name="IncreaseBrightness">
      <arg name="step" type="u" direction="in"/>
    </method>
    <method name="DecreaseBrightness">
      <arg name="step" type="u" direction="in"/>
    </method>
    <method name="CyclePreset">
      <arg name="temperature" type="d" direction="out"/>
    </method>
    <method name="SetRGB">
      <arg name="hex" type="s" direction="in"/>
      <arg name="brightness" type="d" direction="in"/>
    </method>
    <method name="ListChannels">
      <arg name="channels" type="a(sddd)" direction="out"/>
    </method>
    <method name="GetDuties">
      <arg name="duties" type="ad" direction="out"/>
    </method>
    <method name="ListControllers">
      <arg name="controllers" type="a(ss)" direction="out"/>
    </method>
    <method name="GetControllerDuties">
      <arg name="serial" type="s" direction="in"/>
      <arg name="duties" type="ad" direction="out"/>
    </method>
    <signal name="TargetChanged">
      <arg name="temperature" type="d"/>
      <arg name="brightness" type="d"/>
      <arg name="speed" type="d"/>
    </signal>
    <signal name="ControllerAdded">
      <arg name="serial" type="s"/>
      <arg name="productName" type="s"/>
    </signal>
    <signal name="ControllerRemoved">
      <arg name="serial" type="s"/>
    </signal>
  </interface>
  ` + introspect.IntrospectDataString + `
</node>
`

// TargetController is the part of control.State the server writes to.
type TargetController interface {
	Snapshot() control.Target
	Set(t control.Target) error
	SetTemperature(temperature float64) (control.Target, error)
	SetBrightness(level float64) (control.Target, error)
	SetColor(xy color.XY, level float64) (control.Target, error)
	StepBrightness(delta int) (control.Target, error)
	CyclePreset() (control.Target, error)
}

// DutyReporter reports the last written channel fractions.
type DutyReporter interface {
	Duties() []float64
}

// ControllerLister lists connected USB LED controllers and reads back
// their duties.
type ControllerLister interface {
	ListControllers() []hid.DeviceInfo
	ControllerDuties(serial string, channels int) ([]float64, error)
}

// ChannelInfo represents an LED channel returned via D-Bus.
// Serializes to D-Bus type (sddd).
type ChannelInfo struct {
	Name          string
	X             float64
	Y             float64
	MaxBrightness float64
}

// ControllerInfo represents a USB LED controller returned via D-Bus.
// Serializes to D-Bus type (ss).
type ControllerInfo struct {
	Serial      string
	ProductName string
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithControllers sets the source for ListControllers.
func WithControllers(lister ControllerLister) ServerOption {
	return func(s *Server) {
		s.controllers = lister
	}
}

// WithSystemBus exports the service on the system bus instead of the
// session bus.
func WithSystemBus() ServerOption {
	return func(s *Server) {
		s.connect = dbus.ConnectSystemBus
	}
}

// Server implements the D-Bus control surface.
//
// Thread safety:
//   - Handlers only touch the TargetController, which serializes all writes.
//   - The connMu mutex protects the D-Bus connection field for signal emission.
type Server struct {
	conn        *dbus.Conn
	connMu      sync.RWMutex // Protects conn field only
	connect     func(...dbus.ConnOption) (*dbus.Conn, error)
	state       TargetController
	channels    []gamut.Channel
	duties      DutyReporter
	controllers ControllerLister
	rateLimiter *rate.Limiter
}

// NewServer creates a new D-Bus server for the given target and channels.
func NewServer(state TargetController, channels []gamut.Channel, duties DutyReporter, opts ...ServerOption) *Server {
	s := &Server{
		connect:     dbus.ConnectSessionBus,
		state:       state,
		channels:    channels,
		duties:      duties,
		rateLimiter: rate.NewLimiter(rateLimitPerSecond, rateLimitBurst),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start connects to the bus and exports the service.
func (s *Server) Start() error {
	conn, err := s.connect()
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}

	// Ensure connection is closed if setup fails
	success := false
	defer func() {
		if !success {
			if closeErr := conn.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("Failed to close D-Bus connection during cleanup")
			}
		}
	}()

	if err := conn.Export(s, ObjectPath, InterfaceName); err != nil {
		return fmt.Errorf("failed to export server: %w", err)
	}

	err = conn.Export(introspect.Introspectable(IntrospectXML), ObjectPath, "org.freedesktop.DBus.Introspectable")
	if err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already taken", ServiceName)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	success = true
	log.Info().Str("service", ServiceName).Msg("D-Bus service started")
	return nil
}

// Stop disconnects from the bus.
func (s *Server) Stop() error {
	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// allow applies the rate limit shared by all methods that change the target.
func (s *Server) allow(method string) *dbus.Error {
	if !s.rateLimiter.Allow() {
		log.Warn().Str("method", method).Msg("Rate limit exceeded")
		return dbus.MakeFailedError(ErrRateLimitExceeded)
	}
	return nil
}

// GetTarget returns the current target temperature, brightness and speed.
func (s *Server) GetTarget() (float64, float64, float64, *dbus.Error) {
	t := s.state.Snapshot()
	return t.Temperature, t.Brightness, t.Speed, nil
}

// SetTarget replaces the whole target. Any RGB color is dropped.
func (s *Server) SetTarget(temperature, level, speed float64) *dbus.Error {
	if err := s.allow("SetTarget"); err != nil {
		return err
	}

	target := control.Target{Temperature: temperature, Brightness: level, Speed: speed}
	if err := s.state.Set(target); err != nil {
		log.Error().Err(err).Msg("Failed to set target")
		return dbus.MakeFailedError(err)
	}

	log.Debug().
		Float64("temperature", temperature).
		Float64("brightness", level).
		Float64("speed", speed).
		Msg("Set target")
	return nil
}

// SetTemperature sets the target color temperature in Kelvin.
func (s *Server) SetTemperature(temperature float64) *dbus.Error {
	if err := s.allow("SetTemperature"); err != nil {
		return err
	}

	if _, err := s.state.SetTemperature(temperature); err != nil {
		log.Error().Err(err).Float64("temperature", temperature).Msg("Failed to set temperature")
		return dbus.MakeFailedError(err)
	}

	log.Debug().Float64("temperature", temperature).Msg("Set temperature")
	return nil
}

// GetBrightness returns the target brightness as a percentage (0-100).
func (s *Server) GetBrightness() (uint32, *dbus.Error) {
	return uint32(brightness.FractionToPercent(s.state.Snapshot().Brightness)), nil
}

// SetBrightness sets the target brightness as a percentage (0-100).
func (s *Server) SetBrightness(percent uint32) *dbus.Error {
	if err := s.allow("SetBrightness"); err != nil {
		return err
	}

	if percent > uint32(brightness.MaxPercent) {
		percent = uint32(brightness.MaxPercent)
	}

	// #nosec G115 -- percent is clamped to 0-100, safe for uint8
	level := brightness.PercentToFraction(uint8(percent))
	if _, err := s.state.SetBrightness(level); err != nil {
		log.Error().Err(err).Uint32("brightness", percent).Msg("Failed to set brightness")
		return dbus.MakeFailedError(err)
	}

	log.Debug().Uint32("brightness", percent).Msg("Set brightness")
	return nil
}

// IncreaseBrightness raises the target brightness by step percent.
// The step parameter must be between 1 and 100.
func (s *Server) IncreaseBrightness(step uint32) *dbus.Error {
	return s.stepBrightness("IncreaseBrightness", step, 1)
}

// DecreaseBrightness lowers the target brightness by step percent.
// The step parameter must be between 1 and 100.
func (s *Server) DecreaseBrightness(step uint32) *dbus.Error {
	return s.stepBrightness("DecreaseBrightness", step, -1)
}

func (s *Server) stepBrightness(method string, step uint32, sign int) *dbus.Error {
	if err := s.allow(method); err != nil {
		return err
	}

	if step == 0 || step > uint32(brightness.MaxPercent) {
		return dbus.MakeFailedError(ErrInvalidStep)
	}

	target, err := s.state.StepBrightness(sign * int(step))
	if err != nil {
		return dbus.MakeFailedError(err)
	}

	log.Debug().
		Str("method", method).
		Uint32("step", step).
		Float64("new", target.Brightness).
		Msg("Stepped brightness")
	return nil
}

// CyclePreset switches to the next preset temperature and returns it.
func (s *Server) CyclePreset() (float64, *dbus.Error) {
	if err := s.allow("CyclePreset"); err != nil {
		return 0, err
	}

	target, err := s.state.CyclePreset()
	if err != nil {
		return 0, dbus.MakeFailedError(err)
	}

	log.Debug().Float64("temperature", target.Temperature).Msg("Cycled preset")
	return target.Temperature, nil
}

// SetRGB mixes the chromaticity of an sRGB color such as "#ff8000" at the
// given linear brightness in [0, 1] until the next temperature is set.
func (s *Server) SetRGB(hex string, level float64) *dbus.Error {
	if err := s.allow("SetRGB"); err != nil {
		return err
	}

	c, err := colorful.Hex(hex)
	if err != nil {
		return dbus.MakeFailedError(fmt.Errorf("%w: %q: %w", ErrInvalidColor, hex, err))
	}

	xyz, err := color.FromRGB(c, 1)
	if err != nil {
		return dbus.MakeFailedError(fmt.Errorf("%w: %q: %w", ErrInvalidColor, hex, err))
	}
	xy, err := xyz.Chromaticity()
	if err != nil {
		return dbus.MakeFailedError(fmt.Errorf("%w: %q: %w", ErrInvalidColor, hex, err))
	}

	if _, err := s.state.SetColor(xy, level); err != nil {
		log.Error().Err(err).Str("color", hex).Msg("Failed to set color")
		return dbus.MakeFailedError(err)
	}

	log.Debug().Str("color", hex).Str("xy", xy.String()).Float64("brightness", level).Msg("Set RGB color")
	return nil
}

// ListChannels returns the calibration of every LED channel in index order.
func (s *Server) ListChannels() ([]ChannelInfo, *dbus.Error) {
	result := make([]ChannelInfo, len(s.channels))
	for i, ch := range s.channels {
		result[i] = ChannelInfo{Name: ch.Name, X: ch.Color.X, Y: ch.Color.Y, MaxBrightness: ch.MaxBrightness}
	}
	return result, nil
}

// GetDuties returns the drive fraction of every channel in index order.
func (s *Server) GetDuties() ([]float64, *dbus.Error) {
	if s.duties == nil {
		return make([]float64, len(s.channels)), nil
	}
	return s.duties.Duties(), nil
}

// ListControllers returns the connected USB LED controllers.
// Returns an array of structs: [{Serial, ProductName}, ...]
func (s *Server) ListControllers() ([]ControllerInfo, *dbus.Error) {
	if s.controllers == nil {
		return []ControllerInfo{}, nil
	}

	controllers := s.controllers.ListControllers()
	result := make([]ControllerInfo, len(controllers))
	for i, c := range controllers {
		result[i] = ControllerInfo{Serial: c.Serial, ProductName: c.Product}
	}

	log.Debug().Int("count", len(result)).Msg("Listed controllers")
	return result, nil
}

// GetControllerDuties reads the duty of every channel back from the
// controller with the given serial. Unlike GetDuties this reports what the
// hardware holds, not what was last written.
func (s *Server) GetControllerDuties(serial string) ([]float64, *dbus.Error) {
	if s.controllers == nil {
		return nil, dbus.MakeFailedError(fmt.Errorf("%w: serial %s", hid.ErrControllerNotFound, serial))
	}

	duties, err := s.controllers.ControllerDuties(serial, len(s.channels))
	if err != nil {
		log.Warn().Err(err).Str("serial", serial).Msg("Failed to read controller duties")
		return nil, dbus.MakeFailedError(err)
	}
	return duties, nil
}

// emit sends a signal if the server is connected.
func (s *Server) emit(signal string, values ...interface{}) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return
	}

	if err := conn.Emit(ObjectPath, InterfaceName+"."+signal, values...); err != nil {
		log.Error().Err(err).Str("signal", signal).Msg("Failed to emit signal")
	}
}

// EmitTargetChanged emits the TargetChanged signal. It has the signature of
// a control.State subscriber.
func (s *Server) EmitTargetChanged(target control.Target) {
	s.emit("TargetChanged", target.Temperature, target.Brightness, target.Speed)
}

// EmitControllerAdded emits the ControllerAdded signal.
func (s *Server) EmitControllerAdded(serial, productName string) {
	s.emit("ControllerAdded", serial, productName)
	log.Info().Str("serial", serial).Str("product", productName).Msg("Controller added")
}

// EmitControllerRemoved emits the ControllerRemoved signal.
func (s *Server) EmitControllerRemoved(serial string) {
	s.emit("ControllerRemoved", serial)
	log.Info().Str("serial", serial).Msg("Controller removed")
}
