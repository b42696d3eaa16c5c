// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"
	"os"

	"watsoniot-bridge/go-backend/internal/config"
	"watsoniot-bridge/go-backend/internal/platform/privacylog"
)

// New returns a sanitizing slog logger writing to w (stdout when nil).
func New(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = os.Stdout
	}
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	if cfg.Format == "text" {
		base = slog.NewTextHandler(w, opts)
	} else {
		base = slog.NewJSONHandler(w, opts)
	}
	return slog.New(privacylog.WrapHandler(base)).With("service", "wiotp-bridge"), nil
}
