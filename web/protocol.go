package web

import "github.com/skyline-rigging/flyer-controller/bus"

// serverMessage is the server→client envelope (spec §6). Exactly one
// field is populated per message, mirroring the original's internally-
// tagged Rust enum as a struct with omitempty pointer/slice fields — the
// JSON shape this produces, `{"Auth":{...}}` or `{"Stream":[...]}`, is
// the literal wire format spec §6 specifies.
type serverMessage struct {
	Auth       *authChallenge  `json:"Auth,omitempty"`
	AuthStatus *bool           `json:"AuthStatus,omitempty"`
	Stream     []streamEntry   `json:"Stream,omitempty"`
	Error      *clientError    `json:"Error,omitempty"`
}

type authChallenge struct {
	Challenge string `json:"challenge"`
}

type clientErrorCode string

const (
	errorCodeParseFailed         clientErrorCode = "ParseFailed"
	errorCodeAuthRequired        clientErrorCode = "AuthRequired"
	errorCodeUpdateConfigFailed  clientErrorCode = "UpdateConfigFailed"
)

type clientError struct {
	Code    clientErrorCode `json:"code"`
	Message string          `json:"message,omitempty"`
}

// streamEntry is one telemetry envelope re-timestamped relative to the
// connection's own start (spec §6 "timestamp: ms_since_connect"), wrapping
// whichever bus.Message the controller published.
type streamEntry struct {
	Timestamp float64     `json:"timestamp"`
	Message   interface{} `json:"message"`
}

// clientMessage is the client→server envelope (spec §6): Auth response,
// Command, or a raw UpdateConfig tree.
type clientMessage struct {
	Auth         *authResponse   `json:"Auth,omitempty"`
	Command      *commandPayload `json:"Command,omitempty"`
	UpdateConfig interface{}     `json:"UpdateConfig,omitempty"`
}

type authResponse struct {
	Digest string `json:"digest"`
}

// commandPayload is the JSON shape of bus.Command: one populated field
// per variant, matching spec §6's "Command variants accepted over the
// wire" list exactly.
type commandPayload struct {
	SetMode               *setModePayload        `json:"SetMode,omitempty"`
	ManualControlReset    *struct{}              `json:"ManualControlReset,omitempty"`
	ManualControlValue    *manualControlValuePayload    `json:"ManualControlValue,omitempty"`
	CameraObjectDetection *cameraObjectDetectionPayload `json:"CameraObjectDetection,omitempty"`
	CameraRegionTracking  *cameraRegionTrackingPayload   `json:"CameraRegionTracking,omitempty"`
	GimbalMotorEnable     *bool                  `json:"GimbalMotorEnable,omitempty"`
	GimbalPacket          []byte                 `json:"GimbalPacket,omitempty"`
	GimbalValueWrite      *gimbalValueWritePayload       `json:"GimbalValueWrite,omitempty"`
	GimbalValueRequests   []gimbalValueRequestPayload    `json:"GimbalValueRequests,omitempty"`
}

type setModePayload struct {
	Kind    string `json:"kind"`
	WinchID int    `json:"winch_id,omitempty"`
}

type manualControlValuePayload struct {
	Axis  string  `json:"axis"`
	Value float32 `json:"value"`
}

type rectPayload struct {
	X, Y, W, H float32
}

type cameraObjectDetectionPayload struct {
	Rect  rectPayload `json:"rect"`
	Label string      `json:"label"`
	Prob  float32     `json:"prob"`
}

type cameraRegionTrackingPayload struct {
	Rect rectPayload `json:"rect"`
}

type gimbalValueWritePayload struct {
	Index  int   `json:"index"`
	Target int   `json:"target"`
	Value  int16 `json:"value"`
}

type gimbalValueRequestPayload struct {
	Index      int  `json:"index"`
	Target     int  `json:"target"`
	Continuous bool `json:"continuous"`
}

// axisByName resolves the wire-format axis name to a bus.Axis, mirroring
// bus.Mode's own String()-based encoding of modes.
func axisByName(name string) (bus.Axis, bool) {
	switch name {
	case "RelativeX":
		return bus.AxisRelativeX, true
	case "RelativeY":
		return bus.AxisRelativeY, true
	case "RelativeZ":
		return bus.AxisRelativeZ, true
	case "Yaw":
		return bus.AxisYaw, true
	case "Pitch":
		return bus.AxisPitch, true
	default:
		return 0, false
	}
}

// modeByPayload resolves a setModePayload into a bus.Mode.
func modeByPayload(p setModePayload) (bus.Mode, bool) {
	switch p.Kind {
	case "Halted":
		return bus.Mode{Kind: bus.ModeHalted}, true
	case "Normal":
		return bus.Mode{Kind: bus.ModeNormal}, true
	case "ManualFlyer":
		return bus.Mode{Kind: bus.ModeManualFlyer}, true
	case "ManualWinch":
		return bus.Mode{Kind: bus.ModeManualWinch, WinchID: p.WinchID}, true
	default:
		return bus.Mode{}, false
	}
}

func toRect(r rectPayload) bus.Rect { return bus.Rect{X: r.X, Y: r.Y, W: r.W, H: r.H} }

// toCommand converts the wire-format command payload into the internal
// bus.Command the controller dispatches on. Returns ok=false for an
// empty or unrecognized payload (treated by the caller as a parse
// failure).
func toCommand(p commandPayload) (bus.Command, bool) {
	switch {
	case p.SetMode != nil:
		mode, ok := modeByPayload(*p.SetMode)
		if !ok {
			return nil, false
		}
		return bus.SetMode{Mode: mode}, true

	case p.ManualControlReset != nil:
		return bus.ManualControlReset{}, true

	case p.ManualControlValue != nil:
		axis, ok := axisByName(p.ManualControlValue.Axis)
		if !ok {
			return nil, false
		}
		return bus.ManualControlValue{Axis: axis, Value: p.ManualControlValue.Value}, true

	case p.CameraObjectDetection != nil:
		d := p.CameraObjectDetection
		return bus.CameraObjectDetection{Rect: toRect(d.Rect), Label: d.Label, Prob: d.Prob}, true

	case p.CameraRegionTracking != nil:
		return bus.CameraRegionTracking{Rect: toRect(p.CameraRegionTracking.Rect)}, true

	case p.GimbalMotorEnable != nil:
		return bus.GimbalMotorEnable{Enable: *p.GimbalMotorEnable}, true

	case p.GimbalPacket != nil:
		return bus.GimbalPacket{Raw: p.GimbalPacket}, true

	case p.GimbalValueWrite != nil:
		w := p.GimbalValueWrite
		return bus.GimbalValueWrite{Index: w.Index, Target: w.Target, Value: w.Value}, true

	case p.GimbalValueRequests != nil:
		reqs := make([]bus.GimbalValueRequest, len(p.GimbalValueRequests))
		for i, r := range p.GimbalValueRequests {
			reqs[i] = bus.GimbalValueRequest{Index: r.Index, Target: r.Target, Continuous: r.Continuous}
		}
		return bus.GimbalValueRequests{Requests: reqs}, true

	default:
		return nil, false
	}
}
