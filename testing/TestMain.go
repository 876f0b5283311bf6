// Package testing flips the application into test mode when imported by a
// test binary, so main packages and background loops skip real startup.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
		if os.Getenv("AUTH_TOKEN_SECRET") == "" {
			_ = os.Setenv("AUTH_TOKEN_SECRET", "test-secret")
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain can be delegated to from a package TestMain.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
