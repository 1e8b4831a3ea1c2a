package telemetry

import "go.uber.org/zap"

// NewLogger builds the process-wide structured logger. Production builds
// use the JSON encoder; tests and local runs can fall back to NewDevelopment.
func NewLogger(production bool) (*zap.Logger, error) {
	if production {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
