// Package payload provides the typed parameter sets carried by store requests.
//
// A payload is an Object mapping field names to sealed Value types. Unlike a
// plain map[string]any, every value has a fixed kind (String, Int, Float, Bool,
// Array, Object, Null) so factories can bind columns without reflection and
// canonical JSON is stable across processes.
//
// This package imports nothing internal.
package payload
