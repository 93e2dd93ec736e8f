package server

import (
	"os"

	"github.com/raystack/salt/log"
)

// NewLogger builds the structured logger shared by every subsystem.
func NewLogger(level string) log.Logger {
	if level == "" {
		level = "info"
	}
	return log.NewLogrus(
		log.LogrusWithLevel(level),
		log.LogrusWithWriter(os.Stderr),
	)
}
