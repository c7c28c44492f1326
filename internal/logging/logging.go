// Package logging wires the zap sub-loggers shared across portkey's
// components, one named logger per package in the spirit of the
// bracketed [tag] log lines this daemon's components used to write by hand.
package logging

import (
	"go.uber.org/zap"
)

// New builds a production-style JSON logger unless debug is set, in
// which case it switches to zap's human-friendlier development encoder.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// Named returns a child logger tagged with component, mirroring the
// "[component] message" convention this daemon's ancestors used with
// log.Printf before structured fields replaced bracket tags.
func Named(base *zap.Logger, component string) *zap.SugaredLogger {
	return base.Named(component).Sugar()
}
