// Package sandbox runs tenant plugin snippets inside an embedded Lua VM.
//
// A snippet reads the global input table and assigns the global output.
// The VM is created per run with only pure libraries (base subset, table,
// string, math) plus a small set of Python-style helpers such as sum, len
// and sorted. No module, file, OS or debug facilities are reachable.
// Each run is offloaded to a bounded worker pool and cancelled through the
// VM context when the wall-clock budget expires.
package sandbox
