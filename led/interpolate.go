package led

import "encoding/json"

// Interpolate blends stored LightEnvironment toward target by factor t
// (spec §4.7's "rolling interpolated environment"): same recursive
// structure as config.Merge, but numeric leaves blend linearly instead
// of being replaced, while strings/bools/nulls pass through unchanged.
// Grounded on original_source/src/led/interpolate.rs's
// number/array/object_interpolate functions, operating on the generic
// tree produced by a JSON round-trip of LightEnvironment (this package
// deliberately does not share config.Value's type so the two packages
// stay decoupled — they implement the same shape independently, per
// spec §9's design note that the merge/interpolate algorithm should not
// be coupled to one serialization library's runtime type).
func Interpolate(stored, target *LightEnvironment, t float64) (*LightEnvironment, error) {
	storedData, err := json.Marshal(stored)
	if err != nil {
		return nil, err
	}
	targetData, err := json.Marshal(target)
	if err != nil {
		return nil, err
	}

	var storedTree, targetTree interface{}
	if err := json.Unmarshal(storedData, &storedTree); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(targetData, &targetTree); err != nil {
		return nil, err
	}

	blended := interpolateValue(storedTree, targetTree, t)

	blendedData, err := json.Marshal(blended)
	if err != nil {
		return nil, err
	}
	out := &LightEnvironment{}
	if err := json.Unmarshal(blendedData, out); err != nil {
		return nil, err
	}
	return out, nil
}

func interpolateValue(a, b interface{}, t float64) interface{} {
	switch bt := b.(type) {
	case float64:
		at, ok := a.(float64)
		if !ok {
			return bt
		}
		return at + (bt-at)*t
	case map[string]interface{}:
		at, ok := a.(map[string]interface{})
		if !ok {
			return bt
		}
		out := make(map[string]interface{}, len(bt))
		for k, bv := range bt {
			out[k] = interpolateValue(at[k], bv, t)
		}
		return out
	case []interface{}:
		at, ok := a.([]interface{})
		if !ok || len(at) != len(bt) {
			// Length mismatch (e.g. the winch list changed) can't be
			// interpolated element-for-element; jump straight to the
			// target rather than guess at a pairing.
			return bt
		}
		out := make([]interface{}, len(bt))
		for i := range bt {
			out[i] = interpolateValue(at[i], bt[i], t)
		}
		return out
	default:
		return bt
	}
}
