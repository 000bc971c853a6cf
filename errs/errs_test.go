package errs

import (
	"errors"
	"testing"
)

func TestResourceErrorUnwrap(t *testing.T) {
	cause := errors.New("extent too small")
	err := Resource(ExtentMismatch, "color-target", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}

	var re *ResourceError
	if !errors.As(err, &re) {
		t.Fatal("expected errors.As to recover *ResourceError")
	}
	if re.Kind != ExtentMismatch || re.Resource != "color-target" {
		t.Fatalf("unexpected fields: %+v", re)
	}
}

func TestRendergraphErrorNamesPasses(t *testing.T) {
	err := Rendergraph(Cycle, []string{"P", "Q"}, nil)
	msg := err.Error()
	if !contains(msg, "P") || !contains(msg, "Q") {
		t.Fatalf("expected error message to name both passes, got %q", msg)
	}
}

func TestFrameErrorWithoutPass(t *testing.T) {
	err := Frame(DeviceLost, "", nil)
	if contains(err.Error(), "at pass") {
		t.Fatalf("unexpected pass clause in %q", err.Error())
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
