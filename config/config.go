// Package config holds the controller's authoritative configuration tree
// (spec §3), its YAML-backed load/save path, and the generic deep merge
// (§4.1.1) used to apply client UpdateConfig messages. LED environment
// smoothing (led.Interpolate) has its own recursion of the same shape
// and does not use this package's Value tree.
package config

import (
	"fmt"
	"math"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// WinchCalibration converts raw sensor counts to physical units (spec §3).
type WinchCalibration struct {
	ForceZeroCount int32   `yaml:"force_zero_count"`
	KgPerCount     float64 `yaml:"kg_per_count"`
	MPerCount      float64 `yaml:"m_per_count"`
}

// Kg converts a raw force count to kilograms.
func (c WinchCalibration) Kg(counts int32) float64 {
	return c.KgPerCount * float64(counts-c.ForceZeroCount)
}

// M converts a raw position count to meters.
func (c WinchCalibration) M(counts int32) float64 {
	return c.MPerCount * float64(counts)
}

// CountsFromM is the inverse of M, used to turn a commanded velocity in
// m/s into counts/tick during motion integration.
func (c WinchCalibration) CountsFromM(meters float64) float64 {
	if c.MPerCount == 0 {
		return 0
	}
	return meters / c.MPerCount
}

// CountsFromKg is the inverse of Kg, used to convert a kg-valued force
// limit (spec §4.2: "force limits... unit-converted through the
// calibration, force kg→counts") into the raw count units the sensor
// readings and firmware commands are expressed in.
func (c WinchCalibration) CountsFromKg(kg float64) float64 {
	if c.KgPerCount == 0 {
		return float64(c.ForceZeroCount)
	}
	return kg/c.KgPerCount + float64(c.ForceZeroCount)
}

// ForceLimits gate the winch's mech-status classifier (spec §4.2) and,
// together with FilterParam, are echoed to firmware as the
// ForceCommand (original_source/src/message.rs). All four motion/
// lockout fields are kg-valued; see config.WinchCalibration.CountsFromKg.
type ForceLimits struct {
	FilterParam  float64 `yaml:"filter_param"`
	NegMotionMin float64 `yaml:"neg_motion_min"`
	PosMotionMax float64 `yaml:"pos_motion_max"`
	LockoutBelow float64 `yaml:"lockout_below"`
	LockoutAbove float64 `yaml:"lockout_above"`
}

// PWMCarrier is one of the two configured PWM carriers (low/high motion).
type PWMCarrier struct {
	Hz float64 `yaml:"hz"`
}

type WinchParams struct {
	Location           [3]float64       `yaml:"location"`
	Address            string           `yaml:"address"`
	Calibration        WinchCalibration `yaml:"calibration"`
	Force               ForceLimits      `yaml:"force"`
	ForceReturnVelocityMax float64      `yaml:"force_return_velocity_max"`
	PWMVelocityThreshold   float64      `yaml:"pwm_velocity_threshold"`
	PWMLowMotion           PWMCarrier   `yaml:"pwm_low_motion"`
	PWMHighMotion          PWMCarrier   `yaml:"pwm_high_motion"`
	PWMFilterParam         float64      `yaml:"pwm_filter_param"`
	PWMBias                float64      `yaml:"pwm_bias"`
	PWMMinimum             float64      `yaml:"pwm_minimum"`
	DeadbandPosition       int32        `yaml:"deadband_position"`
	DeadbandVelocity       float64      `yaml:"deadband_velocity"`
	PIDGainsP              float64      `yaml:"pid_gain_p"`
	PIDGainsI              float64      `yaml:"pid_gain_i"`
	PIDGainsD              float64      `yaml:"pid_gain_d"`
	PIDFilterP             float64      `yaml:"pid_filter_p"`
	PIDDecayI              float64      `yaml:"pid_decay_i"`
	PIDFilterD             float64      `yaml:"pid_filter_d"`
	WatchdogDeadlineMillis int64        `yaml:"watchdog_deadline_millis"`
}

type BotParams struct {
	ControllerAddress       string  `yaml:"controller_address"`
	FlyerAddress            string  `yaml:"flyer_address"`
	ManualControlVelocityMPerSec float64 `yaml:"manual_control_velocity_m_per_sec"`
	AccelerationCap         float64 `yaml:"acceleration_cap"`
	FilterParam             float64 `yaml:"filter_param"`
}

// GimbalTrackingGain is one entry of a per-axis gain list (spec §4.4
// stage 2): "width" gates which edge distances this entry reacts to.
type GimbalTrackingGain struct {
	Width  float64 `yaml:"width"`
	PGain  float64 `yaml:"p_gain"`
	IGain  float64 `yaml:"i_gain"`
}

type GimbalAngleLimits struct {
	Lower float64 `yaml:"lower"`
	Upper float64 `yaml:"upper"`
}

type GimbalParams struct {
	MaxRate             float64              `yaml:"max_rate"`
	YawGains            []GimbalTrackingGain `yaml:"yaw_gains"`
	PitchGains          []GimbalTrackingGain `yaml:"pitch_gains"`
	YawLimits           GimbalAngleLimits    `yaml:"yaw_limits"`
	PitchLimits         GimbalAngleLimits    `yaml:"pitch_limits"`
	LimiterGain         float64              `yaml:"limiter_gain"`
	SlowdownExtent       float64              `yaml:"slowdown_extent"`
	HoldP               float64              `yaml:"hold_p"`
	HoldI               float64              `yaml:"hold_i"`
	TrackingIDecayRate  float64              `yaml:"tracking_i_decay_rate"`
	HoldIDecayRate      float64              `yaml:"hold_i_decay_rate"`
	YawCenterCal        int32                `yaml:"yaw_center_cal"`
	PitchCenterCal      int32                `yaml:"pitch_center_cal"`
	RollCenterCal       int32                `yaml:"roll_center_cal"`
}

// LightingScheme names a saved color/wavelength/exponent configuration
// for the LED shader (spec §3, §4.7).
type LightingScheme struct {
	Name              string     `yaml:"name"`
	Color             [3]float64 `yaml:"color"`
	FlashColor        [3]float64 `yaml:"flash_color"`
	Wavelength        float64    `yaml:"wavelength"`
	FlashExponent     float64    `yaml:"flash_exponent"`
	WaveAmplitude     float64    `yaml:"wave_amplitude"`
	Brightness        float64    `yaml:"brightness"`
}

type LightAnimatorConfig struct {
	FrameRate   float64 `yaml:"frame_rate"`
	FilterParam float64 `yaml:"filter_param"`
}

// ScheduleEntry fires LightingScheme named Scheme at HourUTC:MinuteUTC
// local wall-clock time every day (spec §3 "time-of-day schedule map",
// detailed in SPEC_FULL.md's scheduled-lighting-scheme supplement).
type ScheduleEntry struct {
	HourUTC   int    `yaml:"hour"`
	MinuteUTC int    `yaml:"minute"`
	Scheme    string `yaml:"scheme"`
}

type LightingConfig struct {
	ActiveScheme string                    `yaml:"active_scheme"`
	Schemes      map[string]LightingScheme `yaml:"schemes"`
	Animator     LightAnimatorConfig       `yaml:"animator"`
	Schedule     []ScheduleEntry           `yaml:"schedule"`
}

type VisionParams struct {
	BorderRect           [4]float64 `yaml:"border_rect"`
	ManualDeadzone       float64    `yaml:"manual_deadzone"`
	ManualSpeed          float64    `yaml:"manual_speed"`
	RestoringForce       float64    `yaml:"restoring_force"`
	DefaultTrackingArea  float64    `yaml:"default_tracking_area"`
	MinTrackingArea      float64    `yaml:"min_tracking_area"`
	MaxTrackingArea      float64    `yaml:"max_tracking_area"`
	SnapMinProb          float64    `yaml:"snap_min_prob"`
	SnapLabels           []string   `yaml:"snap_labels"`
}

type OverlayParams struct {
	ParticleCount               int        `yaml:"particle_count"`
	ParticleSize                float64    `yaml:"particle_size"`
	ParticleColor               [4]float64 `yaml:"particle_color"`
	ParticleSprite              [4]int32   `yaml:"particle_sprite"`
	ParticleMinDistance         float64    `yaml:"particle_min_distance"`
	ParticleMinDistanceGain     float64    `yaml:"particle_min_distance_gain"`
	ParticleEdgeGain            float64    `yaml:"particle_edge_gain"`
	ParticlePerpendicularGain   float64    `yaml:"particle_perpendicular_gain"`
	ParticleDamping             float64    `yaml:"particle_damping"`
}

// WebParams configures the embedded HTTP discovery endpoint and the
// separate raw WebSocket server (spec §6: "HTTP: static files + GET /ws
// returns JSON {uri}"), grounded on original_source/src/config.rs's
// WebConfig — the HTTP and WebSocket listeners bind to distinct
// addresses/ports, matching the original's http_bind_addr/ws_bind_addr
// split.
type WebParams struct {
	HTTPAddr           string `yaml:"http_addr"`
	WSAddr             string `yaml:"ws_addr"`
	WebRootPath        string `yaml:"web_root_path"`
	ConnectionFilePath string `yaml:"connection_file_path"`
	OpenBrowser        bool   `yaml:"open_browser"`
}

// WSURI is the ws:// URI advertised to clients via GET /ws.
func (w WebParams) WSURI() string {
	return "ws://" + w.WSAddr
}

// HTTPURI is the http:// URI written to the connection file and QR code,
// carrying the per-process auth secret as a query fragment so scanning
// the code both opens the page and supplies the key (spec §6's
// "connection file"). portOverride, when non-zero, replaces the
// configured HTTP port — the HTTP_URI_PORT environment override (spec
// §6's "optional overrides for the advertised HTTP port").
func (w WebParams) HTTPURI(secretKey string, portOverride int) string {
	host, port, err := net.SplitHostPort(w.HTTPAddr)
	if err != nil {
		host, port = w.HTTPAddr, ""
	}
	if portOverride != 0 {
		port = fmt.Sprintf("%d", portOverride)
	}
	return fmt.Sprintf("http://%s/#?k=%s", net.JoinHostPort(host, port), secretKey)
}

// Config is the controller's authoritative state tree (spec §3). It is
// mutated only through the controller goroutine; every other goroutine
// that needs a read-only view takes one through SharedFile.Snapshot.
type Config struct {
	Mode      string                 `yaml:"mode"`
	Bot       BotParams              `yaml:"bot"`
	Winches   []WinchParams          `yaml:"winches"`
	Gimbal    GimbalParams           `yaml:"gimbal"`
	Web       WebParams              `yaml:"web"`
	Lighting  LightingConfig         `yaml:"lighting"`
	Vision    VisionParams           `yaml:"vision"`
	Overlay   OverlayParams          `yaml:"overlay"`
}

// Default returns a complete, internally consistent zero-state config —
// every divisor non-zero, every angle-limit pair ordered — so a fresh
// install never has to guess at a working starting point.
func Default() *Config {
	return &Config{
		Mode: "Halted",
		Bot: BotParams{
			ControllerAddress:            "0.0.0.0:9923",
			FlyerAddress:                 "10.0.0.2:9923",
			ManualControlVelocityMPerSec: 0.3,
			AccelerationCap:              1.0,
			FilterParam:                  0.2,
		},
		Winches: nil,
		Web: WebParams{
			HTTPAddr:           "0.0.0.0:8080",
			WSAddr:             "0.0.0.0:8081",
			WebRootPath:        "./web-root",
			ConnectionFilePath: "./connection.txt",
			OpenBrowser:        false,
		},
		Gimbal: GimbalParams{
			MaxRate:            2000,
			YawLimits:          GimbalAngleLimits{Lower: -1400, Upper: 1400},
			PitchLimits:        GimbalAngleLimits{Lower: -600, Upper: 600},
			LimiterGain:        0.5,
			SlowdownExtent:     200,
			HoldP:              0.02,
			HoldI:              0.002,
			TrackingIDecayRate: 0.05,
			HoldIDecayRate:     0.05,
		},
		Lighting: LightingConfig{
			ActiveScheme: "default",
			Schemes: map[string]LightingScheme{
				"default": {Name: "default", Color: [3]float64{0, 1, 0.4}, FlashColor: [3]float64{1, 0, 0}, Wavelength: 0.3, FlashExponent: 2, WaveAmplitude: 0.3, Brightness: 1},
			},
			Animator: LightAnimatorConfig{FrameRate: 60, FilterParam: 0.2},
		},
		Vision: VisionParams{
			BorderRect:          [4]float64{0.1, 0.1, 0.8, 0.8},
			ManualDeadzone:      0.05,
			ManualSpeed:         1.0,
			RestoringForce:      0.2,
			DefaultTrackingArea: 0.2,
			MinTrackingArea:     0.02,
			MaxTrackingArea:     0.6,
			SnapMinProb:         0.5,
		},
		Overlay: OverlayParams{
			ParticleCount:             24,
			ParticleSize:              0.01,
			ParticleColor:             [4]float64{1, 1, 1, 0.8},
			ParticleMinDistance:       0.03,
			ParticleMinDistanceGain:   4,
			ParticleEdgeGain:          0.6,
			ParticlePerpendicularGain: 0.3,
			ParticleDamping:           0.15,
		},
	}
}

// Load reads a YAML document at path over a Default() config: fields
// absent from the document keep their default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the invariants spec §3 calls out explicitly: finite
// non-zero calibration divisors, ordered angle limits, non-negative
// tracking-gain widths.
func (c *Config) Validate() error {
	for i, w := range c.Winches {
		if k := w.Calibration.MPerCount; k == 0 || math.IsNaN(k) || math.IsInf(k, 0) {
			return fmt.Errorf("winch %d: m_per_count must be finite and non-zero", i)
		}
		if k := w.Calibration.KgPerCount; k == 0 || math.IsNaN(k) || math.IsInf(k, 0) {
			return fmt.Errorf("winch %d: kg_per_count must be finite and non-zero", i)
		}
		if w.Address != "" {
			if _, _, err := net.SplitHostPort(w.Address); err != nil {
				return fmt.Errorf("winch %d: invalid address %q: %w", i, w.Address, err)
			}
		}
	}
	if c.Gimbal.YawLimits.Lower > c.Gimbal.YawLimits.Upper {
		return fmt.Errorf("gimbal: yaw_limits.lower must be <= upper")
	}
	if c.Gimbal.PitchLimits.Lower > c.Gimbal.PitchLimits.Upper {
		return fmt.Errorf("gimbal: pitch_limits.lower must be <= upper")
	}
	for _, g := range append(append([]GimbalTrackingGain{}, c.Gimbal.YawGains...), c.Gimbal.PitchGains...) {
		if g.Width < 0 {
			return fmt.Errorf("gimbal: tracking gain width must be non-negative")
		}
	}
	return nil
}

// Clone deep-copies via round-trip through YAML, the simplest way to get
// an independent copy of a tree this shape without hand-writing a copier
// for every nested struct.
func (c *Config) Clone() *Config {
	data, err := yaml.Marshal(c)
	if err != nil {
		panic(fmt.Errorf("config: clone marshal: %w", err))
	}
	out := &Config{}
	if err := yaml.Unmarshal(data, out); err != nil {
		panic(fmt.Errorf("config: clone unmarshal: %w", err))
	}
	return out
}

// consolidationWindow is how long the save worker waits after the last
// update before writing, coalescing bursts of rapid config changes into
// one disk write (spec §5 item 5, grounded on original_source/src/
// config.rs's CONSOLIDATION_MILLIS).
const consolidationWindow = 1000 * time.Millisecond

// SharedFile is the one piece of state in this process genuinely shared
// across goroutines outside the bus: a mutex-guarded snapshot the
// controller writes and Gamepad/Web read (spec §5 "Shared resources").
// It also owns the debounced atomic-save worker.
type SharedFile struct {
	path string

	mu  sync.RWMutex
	cur *Config

	pending chan *Config
}

// NewSharedFile wraps an already-loaded config and starts its save
// worker. The worker runs for the life of the process; nothing closes
// pending.
func NewSharedFile(path string, initial *Config) *SharedFile {
	sf := &SharedFile{
		path:    path,
		cur:     initial,
		pending: make(chan *Config, 1),
	}
	go sf.saveWorker()
	return sf
}

// Snapshot returns the current config. Callers must not mutate the
// result; Clone it first if they need a scratch copy.
func (sf *SharedFile) Snapshot() *Config {
	sf.mu.RLock()
	defer sf.mu.RUnlock()
	return sf.cur
}

// Replace installs a new config snapshot (called by the controller after
// a successful merge) and queues it for a debounced save.
func (sf *SharedFile) Replace(cfg *Config) {
	sf.mu.Lock()
	sf.cur = cfg
	sf.mu.Unlock()

	select {
	case sf.pending <- cfg:
	default:
		// A save is already queued or in its consolidation window;
		// drain and replace so the worker picks up the latest value.
		select {
		case <-sf.pending:
		default:
		}
		sf.pending <- cfg
	}
}

// saveWorker blocks for the next pending config, sleeps out the
// consolidation window to absorb any configs that arrive in the
// meantime, then atomic-writes the latest value it has — write to a
// temp file in the same directory, then rename, so a crash mid-write
// never corrupts the on-disk config (spec §6 "Atomic replace on save
// (write temp + rename)").
func (sf *SharedFile) saveWorker() {
	for cfg := range sf.pending {
		time.Sleep(consolidationWindow)

		// Drain any newer values queued during the sleep.
		latest := cfg
	drain:
		for {
			select {
			case newer := <-sf.pending:
				latest = newer
			default:
				break drain
			}
		}

		if err := atomicWriteYAML(sf.path, latest); err != nil {
			// Save failures are not fatal (spec §7: only an unreadable
			// config file at startup is fatal); the next change will
			// retry.
			continue
		}
	}
}

func atomicWriteYAML(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".config-*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("config: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("config: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("config: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("config: rename: %w", err)
	}
	return nil
}

// MergeUpdate applies a client-supplied UpdateConfig value (an untyped
// tree, as decoded from JSON or YAML) onto the current config using the
// generic deep merge (§4.1.1), returning the new typed Config on success.
func (sf *SharedFile) MergeUpdate(update interface{}) (*Config, error) {
	cur := sf.Snapshot()

	data, err := yaml.Marshal(cur)
	if err != nil {
		return nil, fmt.Errorf("config: marshal base: %w", err)
	}
	var baseTree interface{}
	if err := yaml.Unmarshal(data, &baseTree); err != nil {
		return nil, fmt.Errorf("config: decode base: %w", err)
	}

	merged := Encode(Merge(Decode(baseTree), Decode(update)))

	mergedData, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("config: marshal merged: %w", err)
	}
	next := &Config{}
	if err := yaml.Unmarshal(mergedData, next); err != nil {
		return nil, fmt.Errorf("config: decode merged: %w", err)
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return next, nil
}
