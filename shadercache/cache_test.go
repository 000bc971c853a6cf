package shadercache

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

// stubCompiler returns canned bytecode/reflection without shelling out,
// so the cache's keying and idempotence can be tested without a real
// GLSL toolchain or a live Vulkan device.
type stubCompiler struct {
	calls int
}

func (s *stubCompiler) Compile(path string, stage Stage, macros []string) ([]byte, Reflection, error) {
	s.calls++
	return []byte("bytecode:" + path), Reflection{
		Bindings: []BindingInfo{
			MakeBindingInfo(0, 1, 1, TypeUniformBuffer, 64, stage.VKShaderStage(), 0, 0),
			MakeBindingInfo(0, 0, 1, TypeCombinedImageSampler, 0, stage.VKShaderStage(), 0, 0),
		},
	}, nil
}

func TestCreateIsKeyedAndIdempotent(t *testing.T) {
	sc := &stubCompiler{}
	c := New(nil, sc)

	a, err := c.Create("shader.vert", StageVertex, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Create("shader.vert", StageVertex, nil)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("expected the same cached *Module for an equal key")
	}
	if sc.calls != 1 {
		t.Fatalf("expected exactly one compile call, got %d", sc.calls)
	}
}

func TestCreateDistinguishesByStageAndMacros(t *testing.T) {
	sc := &stubCompiler{}
	c := New(nil, sc)

	if _, err := c.Create("s.glsl", StageVertex, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Create("s.glsl", StageFragment, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Create("s.glsl", StageVertex, []string{"FOO=1"}); err != nil {
		t.Fatal(err)
	}
	if sc.calls != 3 {
		t.Fatalf("expected 3 distinct compiles, got %d", sc.calls)
	}
}

func TestMacroCanonicalizationIgnoresOrder(t *testing.T) {
	sc := &stubCompiler{}
	c := New(nil, sc)

	if _, err := c.Create("s.glsl", StageFragment, []string{"A=1", "B=2"}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Create("s.glsl", StageFragment, []string{"B=2", "A=1"}); err != nil {
		t.Fatal(err)
	}
	if sc.calls != 1 {
		t.Fatalf("expected macro order to be canonicalized away, got %d compiles", sc.calls)
	}
}

func TestReflectionBindingsAreSorted(t *testing.T) {
	sc := &stubCompiler{}
	c := New(nil, sc)

	m, err := c.Create("s.glsl", StageFragment, nil)
	if err != nil {
		t.Fatal(err)
	}
	bindings := m.Reflection.Bindings
	for i := 1; i < len(bindings); i++ {
		if bindings[i-1].Packed > bindings[i].Packed {
			t.Fatalf("expected bindings sorted ascending by packed word, got %+v", bindings)
		}
	}
	if bindings[0].Binding() != 0 {
		t.Fatalf("expected binding 0 to sort first, got %d", bindings[0].Binding())
	}
}

func TestVKShaderStageMapping(t *testing.T) {
	if StageVertex.VKShaderStage() != vk.ShaderStageVertexBit {
		t.Fatal("unexpected vertex stage mapping")
	}
	if StageFragment.VKShaderStage() != vk.ShaderStageFragmentBit {
		t.Fatal("unexpected fragment stage mapping")
	}
}
