package errors

import (
	"io"
	"strings"
	"testing"
)

func TestNewAddsLocation(t *testing.T) {
	err := New("bad %s", "thing")
	if !strings.HasPrefix(err.Error(), "[errors_test.go:") {
		t.Errorf("expected location prefix, got %q", err.Error())
	}
	if !strings.HasSuffix(err.Error(), "bad thing") {
		t.Errorf("expected message suffix, got %q", err.Error())
	}
}

func TestWrapfKeepsChain(t *testing.T) {
	if Wrapf(nil, "ignored") != nil {
		t.Fatal("Wrapf(nil) should be nil")
	}

	err := Wrapf(io.EOF, "reading %s", "turns")
	if !Is(err, io.EOF) {
		t.Errorf("wrapped error lost its cause: %v", err)
	}
	if !strings.Contains(err.Error(), "reading turns: EOF") {
		t.Errorf("unexpected message %q", err.Error())
	}
	if Unwrap(err) != io.EOF {
		t.Errorf("Unwrap returned %v", Unwrap(err))
	}
}

type codeErr struct{ code int }

func (c *codeErr) Error() string { return "code" }

func TestAs(t *testing.T) {
	err := Wrapf(&codeErr{code: 7}, "outer")
	var target *codeErr
	if !As(err, &target) {
		t.Fatal("As did not find wrapped error")
	}
	if target.code != 7 {
		t.Errorf("expected code 7, got %d", target.code)
	}
}
