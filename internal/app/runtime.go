package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

const testModeEnv = "STOCKLEDGER_TEST_MODE"

var testMode atomic.Bool

func init() {
	RefreshTestMode()
}

// InTestMode reports whether binaries should skip listeners, schedulers and
// the request rate limit.
func InTestMode() bool {
	return testMode.Load()
}

// RefreshTestMode re-reads STOCKLEDGER_TEST_MODE after environment changes.
func RefreshTestMode() {
	on, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	testMode.Store(on)
}
