package smoke

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/skincheck/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging sends logs to out and, when logFile is set, appends them to
// that file too. The returned closer releases the file.
func SetupLogging(out io.Writer, logFile string, verbose, json bool) (io.Closer, error) {
	var closer io.Closer = io.NopCloser(nil)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(out, f)
		closer = f
	}

	if err := logger.Init(logger.WithOutput(out), logger.WithJSON(json)); err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	level := "info"
	if verbose {
		level = "debug"
	}
	if err := logger.SetLevelString(level); err != nil {
		return nil, err
	}
	return closer, nil
}
