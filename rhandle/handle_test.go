package rhandle

import "testing"

func TestProduceHandleIdempotentByName(t *testing.T) {
	r := NewRegistry()

	a, err := r.ProduceHandle(KindImage, "color")
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.ProduceHandle(KindImage, "color")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("expected idempotent handle for same name, got %v != %v", a, b)
	}
}

func TestProduceHandleUnnamedAlwaysFresh(t *testing.T) {
	r := NewRegistry()

	a, _ := r.ProduceHandle(KindBuffer, "")
	b, _ := r.ProduceHandle(KindBuffer, "")
	if a == b {
		t.Fatalf("expected distinct handles for unnamed resources, got %v == %v", a, b)
	}
}

func TestProduceHandleKindMismatch(t *testing.T) {
	r := NewRegistry()
	if _, err := r.ProduceHandle(KindImage, "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ProduceHandle(KindBuffer, "x"); err == nil {
		t.Fatal("expected error reusing a name under a different kind")
	}
}

func TestHandleKindRoundTrip(t *testing.T) {
	r := NewRegistry()
	h, _ := r.ProduceHandle(KindTLAS, "scene-tlas")
	if h.Kind() != KindTLAS {
		t.Fatalf("expected kind TLAS, got %s", h.Kind())
	}
	if !h.Valid() {
		t.Fatal("expected handle to be valid")
	}
	if Invalid.Valid() {
		t.Fatal("zero handle must be invalid")
	}
}

func TestSetInfoRejectsRedeclaration(t *testing.T) {
	r := NewRegistry()
	h, _ := r.ProduceHandle(KindBuffer, "vbo")

	if err := r.SetInfo(h, struct{ Size uint64 }{Size: 1024}); err != nil {
		t.Fatal(err)
	}
	if err := r.SetInfo(h, struct{ Size uint64 }{Size: 2048}); err == nil {
		t.Fatal("expected re-declaration of info to fail")
	}
}

func TestNameFallsBackToStringForm(t *testing.T) {
	r := NewRegistry()
	h, _ := r.ProduceHandle(KindImage, "")
	if r.Name(h) != h.String() {
		t.Fatalf("expected unnamed handle's Name to equal its String form")
	}
}
