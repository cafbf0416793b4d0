package testutil

import (
	"os"
	"sync"
	"testing"

	"github.com/bitmark-inc/logger"
)

var (
	loggerOnce sync.Once
	loggerErr  error
)

// SetupLogger initialises the process-wide logger once, writing critical
// messages only to a throwaway directory. Call it before constructing any
// component that opens a logger channel.
func SetupLogger(t testing.TB) {
	t.Helper()
	loggerOnce.Do(func() {
		dir, err := os.MkdirTemp("", "tolmarket-log-")
		if err != nil {
			loggerErr = err
			return
		}
		// logger rejects Count below 10 and Size below 20000.
		loggerErr = logger.Initialise(logger.Configuration{
			Directory: dir,
			File:      "testing.log",
			Size:      1048576,
			Count:     10,
			Console:   false,
			Levels: map[string]string{
				logger.DefaultTag: "critical",
			},
		})
	})
	if loggerErr != nil {
		t.Fatalf("logger: %v", loggerErr)
	}
}
