// Package debug implements the protocol trace logging enabled by the
// $WAYLAND_DEBUG environment variable.
package debug

import (
	"os"
	"strconv"

	"github.com/charmbracelet/log"
)

var logger *log.Logger

func init() {
	debugLevel, err := strconv.ParseInt(os.Getenv("WAYLAND_DEBUG"), 10, 0)
	if err != nil || debugLevel <= 0 {
		return
	}

	logger = log.NewWithOptions(os.Stderr, log.Options{
		Prefix: "wl",
		Level:  log.DebugLevel,
	})
}

func Printf(str string, args ...any) {
	if logger == nil {
		return
	}
	logger.Debugf(str, args...)
}
