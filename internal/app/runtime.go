package app

import (
	"os"
	"sync"
)

// TestModeEnv is set by the testing package so mains and wiring skip network side effects.
const TestModeEnv = "ECONOMATO_TEST_MODE"

var inTestMode = sync.OnceValue(func() bool {
	return os.Getenv(TestModeEnv) == "1"
})

// InTestMode reports whether the process runs under go test.
func InTestMode() bool {
	return inTestMode()
}
