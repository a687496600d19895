package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("no-op logger should not call the previous logger")
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should not be nil by default")
	}
}

func TestRunLogf(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	RunLogf("abc123")("braking at %.1fs", 2.5)
	if want := "[run abc123] braking at 2.5s"; got != want {
		t.Errorf("RunLogf output = %q, want %q", got, want)
	}
}

func TestRunLogf_FollowsSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	logf := RunLogf("r1")

	n := 0
	SetLogger(func(string, ...interface{}) { n++ })
	logf("tick")
	if n != 1 {
		t.Errorf("expected the run logger to use the current package logger, calls = %d", n)
	}
}
