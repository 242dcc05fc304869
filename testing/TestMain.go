// Package testing is blank-imported by tests that load runtime config. It
// switches binaries into test mode and points Redis at a closed port so no
// test reaches a developer's local services by accident.
package testing

import (
	"os"
	stdtesting "testing"
)

var testEnv = map[string]string{
	"GLASSFLOW_TEST_MODE": "1",
	"REDIS_ADDR":          "127.0.0.1:0",
	"LOG_FORMAT":          "json",
}

func init() {
	for key, value := range testEnv {
		if _, set := os.LookupEnv(key); set && key != "GLASSFLOW_TEST_MODE" {
			continue
		}
		_ = os.Setenv(key, value)
	}
}

// TestMain runs the package tests with the test environment applied.
func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
