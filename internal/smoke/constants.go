package smoke

import "time"

// Generated sample defaults.
const (
	defaultSize   = 64
	spotOpacity   = 0.85
	spotBlurSigma = 1.5
)

// Worker configuration constants.
const (
	workerChannelMultiplier = 2
	progressInterval        = time.Second
)

// Runner configuration constants.
const (
	maxLatestAttempts    = 5
	percentageMultiplier = 100
	reportFilePermission = 0o600
	directoryPermission  = 0o750
)
