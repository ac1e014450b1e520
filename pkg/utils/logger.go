package utils

import "go.uber.org/zap"

// NewLogger returns a zap logger for the process. Debug selects the
// development config (human-readable console output at debug level); the
// default is the production config (JSON at info level).
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
