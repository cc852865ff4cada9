package cmd

import (
	"os"
	"testing"
)

// chdir changes the working directory for the duration of the test, like
// testing.T.Chdir (Go 1.24+), which the Go 1.21 toolchain lacks.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
