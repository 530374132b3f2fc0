// Package scsynth turns synthd's engine configuration into an scsynth
// command line.
//
// It knows scsynth's flags and their built-in defaults, so the generated
// argument list only carries what the operator actually changed. It also
// resolves the executable and names the OSC destination the supervisor
// sends to.
package scsynth
