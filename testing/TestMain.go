// Package testing flags the process as a test run. Test files import it for its side effect.
package testing

import (
	"os"
	stdtesting "testing"
)

const testModeEnv = "ECONOMATO_TEST_MODE"

func init() {
	_ = os.Setenv(testModeEnv, "1")
}

// TestMain can be aliased by packages that need their own main.
func TestMain(m *stdtesting.M) {
	_ = os.Setenv(testModeEnv, "1")
	os.Exit(m.Run())
}
