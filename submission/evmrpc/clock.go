package evmrpc

import "time"

var nowFn = func() int64 { return time.Now().Unix() }
