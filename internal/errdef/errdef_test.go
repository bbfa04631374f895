package errdef

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapNilPassesThrough(t *testing.T) {
	t.Parallel()

	if err := Wrap(CodeStorage, nil, "save"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestCodeOfNested(t *testing.T) {
	t.Parallel()

	root := New(CodeHTTP, "dial %s", "example.com")
	wrapped := fmt.Errorf("outer: %w", root)
	if got := CodeOf(wrapped); got != CodeHTTP {
		t.Fatalf("expected %s, got %s", CodeHTTP, got)
	}
	if got := CodeOf(errors.New("plain")); got != CodeUnknown {
		t.Fatalf("expected unknown code, got %s", got)
	}
}

func TestMessageKeepsAnnotation(t *testing.T) {
	t.Parallel()

	err := Wrap(CodeParse, errors.New("unexpected token"), "decode collection")
	if got := Message(err); got != "decode collection" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := err.Error(); got != "decode collection: unexpected token" {
		t.Fatalf("unexpected error text %q", got)
	}
}
