package graph

import (
	"maps"
	"reflect"
)

// State is the record a graph threads through its steps.
type State map[string]any

// Clone returns a shallow copy of the state.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	return maps.Clone(s)
}

// Reducer merges an update for one key into the existing value.
type Reducer func(existing, update any) any

// Schema assigns reducers to state keys. Keys without a reducer are
// overwritten by updates.
type Schema map[string]Reducer

// Apply merges patch onto state and returns the result. state is not
// modified.
func (sc Schema) Apply(state, patch State) State {
	out := state.Clone()
	for k, v := range patch {
		if r := sc[k]; r != nil {
			out[k] = r(out[k], v)
			continue
		}
		out[k] = v
	}
	return out
}

// Append accumulates list values. Slices of the same type are concatenated
// into a fresh slice; anything else is folded into a []any.
func Append(existing, update any) any {
	if existing == nil {
		return update
	}
	if update == nil {
		return existing
	}
	ev, uv := reflect.ValueOf(existing), reflect.ValueOf(update)
	if ev.Kind() == reflect.Slice && uv.Kind() == reflect.Slice && ev.Type() == uv.Type() {
		out := reflect.MakeSlice(ev.Type(), 0, ev.Len()+uv.Len())
		out = reflect.AppendSlice(out, ev)
		out = reflect.AppendSlice(out, uv)
		return out.Interface()
	}
	var out []any
	out = appendValues(out, ev)
	out = appendValues(out, uv)
	return out
}

func appendValues(dst []any, v reflect.Value) []any {
	if v.Kind() != reflect.Slice {
		return append(dst, v.Interface())
	}
	for i := range v.Len() {
		dst = append(dst, v.Index(i).Interface())
	}
	return dst
}
