package config

// Value is the generic, serialization-library-agnostic tree used by the
// deep merge (spec §4.1.1). The LED animator's temporal smoothing
// (led.Interpolate) walks its own tree and does not use it. Per spec §9's
// design note, this is deliberately its own tagged recursion rather than
// something built on yaml.Node or map[string]interface{} directly, so the
// merge algorithm isn't coupled to any one serialization library's
// runtime representation.
//
// A Value is one of: nil, bool, a number (float64, or int where yaml.v3
// decoded an integer), string, []Value, or map[string]Value. Decode/Encode
// convert to and from the plain
// interface{} trees that encoding/json and yaml.v3 produce.
type Value interface{}

// Decode converts a plain interface{} tree (as produced by yaml.Unmarshal
// into an `interface{}`, or json.Unmarshal) into the Value tree merge
// operates on. yaml.v3 already decodes objects as map[string]interface{}
// and arrays as []interface{}, so this is mostly a pass-through; it exists
// to give merge a single, documented input shape independent of which
// decoder produced it.
func Decode(v interface{}) Value {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]Value, len(t))
		for k, vv := range t {
			out[k] = Decode(vv)
		}
		return out
	case []interface{}:
		out := make([]Value, len(t))
		for i, vv := range t {
			out[i] = Decode(vv)
		}
		return out
	default:
		return v
	}
}

// Encode is the inverse of Decode, producing a plain interface{} tree
// suitable for yaml.Marshal/json.Marshal.
func Encode(v Value) interface{} {
	switch t := v.(type) {
	case map[string]Value:
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			out[k] = Encode(vv)
		}
		return out
	case []Value:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			out[i] = Encode(vv)
		}
		return out
	default:
		return v
	}
}

// Merge applies update U onto base B per spec §4.1.1:
//
//   - U object, B object: for each (k, u) in U, u == nil in object
//     position deletes B[k]; otherwise merge recursively, creating
//     missing keys.
//   - U array, B array: for each index i, U[i] == nil skips (keeps
//     base); otherwise merge recursively; indices beyond len(B) are
//     appended.
//   - Otherwise: U replaces B outright.
//
// Both null semantics (skip for arrays, delete for objects) are contract,
// not incidental — they're what lets a client send a sparse update that
// only touches the fields it means to change.
func Merge(base, update Value) Value {
	if uo, ok := update.(map[string]Value); ok {
		bo, baseIsObject := base.(map[string]Value)
		if !baseIsObject {
			bo = map[string]Value{}
		}
		out := make(map[string]Value, len(bo)+len(uo))
		for k, v := range bo {
			out[k] = v
		}
		for k, u := range uo {
			if u == nil {
				delete(out, k)
				continue
			}
			out[k] = Merge(out[k], u)
		}
		return out
	}

	if ua, ok := update.([]Value); ok {
		ba, baseIsArray := base.([]Value)
		if !baseIsArray {
			ba = nil
		}
		n := len(ua)
		if len(ba) > n {
			n = len(ba)
		}
		out := make([]Value, 0, n)
		for i := 0; i < n; i++ {
			var b Value
			if i < len(ba) {
				b = ba[i]
			}
			if i >= len(ua) {
				out = append(out, b)
				continue
			}
			u := ua[i]
			if u == nil {
				out = append(out, b)
				continue
			}
			out = append(out, Merge(b, u))
		}
		return out
	}

	return update
}
