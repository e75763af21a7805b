package resolve

import "errors"

// ErrConsistencyAnomaly marks an output index with no matching label or a
// score outside [0, 1]. It is
// logged and counted, never returned to callers.
var ErrConsistencyAnomaly = errors.New("consistency anomaly")
