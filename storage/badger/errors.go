package badger

import "errors"

// errStopScan ends a prefix scan early without reporting an error.
var errStopScan = errors.New("stop scan")
