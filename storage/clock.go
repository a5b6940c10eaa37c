package storage

import "time"

// nowFn is overridable in tests that need deterministic timestamps.
var nowFn = func() int64 { return time.Now().Unix() }
