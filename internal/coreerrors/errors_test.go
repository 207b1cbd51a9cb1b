package coreerrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsFatalForFatalKinds(t *testing.T) {
	fatalKinds := []Kind{
		KindUnknownTool,
		KindCyclicDependency,
		KindStalledExecution,
		KindContractConflict,
	}
	for _, k := range fatalKinds {
		if !k.IsFatal() {
			t.Errorf("expected %s to be fatal", k)
		}
	}
}

func TestIsFatalForNonFatalKinds(t *testing.T) {
	nonFatalKinds := []Kind{
		KindResourceDenied,
		KindToolFailure,
		KindTimeout,
		KindUpstreamFailure,
	}
	for _, k := range nonFatalKinds {
		if k.IsFatal() {
			t.Errorf("expected %s to not be fatal", k)
		}
	}
}

func TestNewWrapsToolAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := New(KindToolFailure, "T23A_SPACY_NER", cause)

	if err.Kind != KindToolFailure {
		t.Errorf("expected kind %s, got %s", KindToolFailure, err.Kind)
	}
	if err.ToolID != "T23A_SPACY_NER" {
		t.Errorf("expected tool id T23A_SPACY_NER, got %s", err.ToolID)
	}
	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose the cause")
	}
}

func TestErrorStringIncludesToolID(t *testing.T) {
	err := New(KindTimeout, "T01_PDF_LOADER", errors.New("deadline exceeded"))
	got := err.Error()
	want := "timeout: T01_PDF_LOADER: deadline exceeded"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorStringOmitsEmptyToolID(t *testing.T) {
	err := New(KindCyclicDependency, "", errors.New("cycle detected"))
	got := err.Error()
	want := "cyclic_dependency: cycle detected"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNewfFormatsMessage(t *testing.T) {
	err := Newf(KindUnknownTool, "T99_MISSING", "tool %s not registered", "T99_MISSING")
	if err.Error() != "unknown_tool: T99_MISSING: tool T99_MISSING not registered" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestKindOfFindsWrappedCoreError(t *testing.T) {
	inner := New(KindResourceDenied, "T68_PAGE_RANK", errors.New("no cpu budget"))
	outer := fmt.Errorf("allocating resources: %w", inner)

	kind, ok := KindOf(outer)
	if !ok {
		t.Fatal("expected KindOf to find the wrapped CoreError")
	}
	if kind != KindResourceDenied {
		t.Errorf("expected kind %s, got %s", KindResourceDenied, kind)
	}
}

func TestKindOfReturnsFalseForPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	if ok {
		t.Error("expected KindOf to return false for a non-CoreError")
	}
}
