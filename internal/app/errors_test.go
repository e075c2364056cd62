package app

import (
	"errors"
	"testing"
)

func TestOperationError(t *testing.T) {
	tests := []struct {
		err  *OperationError
		want string
	}{
		{&OperationError{Op: "open"}, "open"},
		{&OperationError{Op: "open", Target: "a.go"}, "open a.go"},
		{&OperationError{Op: "open", Target: "a.go", Err: ErrDocumentNotFound}, "open a.go: document not found"},
	}

	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}

	err := &OperationError{Op: "close", Err: ErrDocumentNotFound}
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Error("errors.Is() did not match the wrapped error")
	}
	if !errors.Is(err, err) {
		t.Error("errors.Is() did not match the same instance")
	}
	if errors.Is(err, &OperationError{Op: "close"}) {
		t.Error("errors.Is() matched a different instance")
	}

	var nilErr *OperationError
	if nilErr.Error() != "" || nilErr.Unwrap() != nil || nilErr.Is(ErrShutdown) {
		t.Error("nil *OperationError should be inert")
	}
}

func TestInitError(t *testing.T) {
	err := &InitError{Component: "settings", Err: ErrShutdown}
	if got := err.Error(); got != "initializing settings: application shut down" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, ErrShutdown) {
		t.Error("errors.Is() did not match the wrapped error")
	}
}

func TestErrorList(t *testing.T) {
	var list ErrorList
	if list.AsError() != nil {
		t.Error("empty AsError() != nil")
	}

	list.Add(nil)
	list.Add(ErrDocumentNotFound)
	if got := list.Error(); got != "document not found" {
		t.Errorf("Error() = %q", got)
	}
	list.Add(ErrShutdown)
	if got := list.Error(); got != "2 errors: first: document not found" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(list.AsError(), ErrShutdown) {
		t.Error("errors.Is() did not search every error")
	}
}
