//go:build linux || darwin || freebsd

package buildio

import (
	"errors"
	"os"
	"testing"
	"time"
)

// Bodies used by the process tests. They run in a re-executed copy of the
// test binary.
const (
	bodyExitOK     = "buildio-test-exit-ok"
	bodyExitSeven  = "buildio-test-exit-seven"
	bodyFail       = "buildio-test-fail"
	bodyPanic      = "buildio-test-panic"
	bodySleep      = "buildio-test-sleep"
	bodyCheckEnv   = "buildio-test-check-env"
	bodyPrintDir   = "buildio-test-print-dir"
	testEnvKey     = "BUILDIO_TEST_VALUE"
	testEnvValue   = "from-parent"
	testFailureMsg = "boom"
)

func init() {
	RegisterBody(bodyExitOK, func() error { return nil })
	RegisterBody(bodyExitSeven, func() error {
		os.Exit(7)
		return nil
	})
	RegisterBody(bodyFail, func() error { return errors.New(testFailureMsg) })
	RegisterBody(bodyPanic, func() error { panic("kaboom") })
	RegisterBody(bodySleep, func() error {
		time.Sleep(time.Hour)
		return nil
	})
	RegisterBody(bodyCheckEnv, func() error {
		if got := os.Getenv(testEnvKey); got != testEnvValue {
			return errors.New("missing " + testEnvKey)
		}
		if _, ok := os.LookupEnv(envErrorPrefix); ok {
			return errors.New("control variable leaked into body")
		}
		return nil
	})
}

func init() {
	RegisterBody(bodyPrintDir, func() error {
		dir, err := os.Getwd()
		if err != nil {
			return err
		}
		_, err = os.Stdout.WriteString(dir)
		return err
	})
}

func TestMain(m *testing.M) {
	if InitChild() {
		return
	}
	os.Exit(m.Run())
}
