// Package shadercache implements island's shader module cache: it owns
// compiled SPIR-V bytecode and its reflection, keyed on (resolved path,
// stage, canonicalized macro list), and supports source hot-reload by
// bumping a per-module generation counter that the pipeline/descriptor-
// layout cache checks lazily on next use.
//
// Compilation itself is delegated to an external collaborator -- here
// github.com/vulkan-go/vulkan's SPIR-V consumer plus a shelled-out
// glslangValidator/glslc front end for GLSL sources, adapted from
// backend.LoadShaderModuleFromFile's "read bytes, hand to
// vkCreateShaderModule" idiom.
package shadercache

import (
	"crypto/sha256"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/neshume/island/errs"
	"github.com/neshume/island/internal/rlog"
	vk "github.com/vulkan-go/vulkan"
)

// Stage names the shader stage a module was compiled for; it is part of
// the cache key because the same source file can be compiled for multiple
// stages (e.g. a shared header) with different results.
type Stage uint8

const (
	StageVertex Stage = iota
	StageFragment
	StageCompute
	StageGeometry
	StageTessControl
	StageTessEvaluation
	StageRaygen
	StageMiss
	StageClosestHit
)

func (s Stage) VKShaderStage() vk.ShaderStageFlagBits {
	switch s {
	case StageVertex:
		return vk.ShaderStageVertexBit
	case StageFragment:
		return vk.ShaderStageFragmentBit
	case StageCompute:
		return vk.ShaderStageComputeBit
	case StageGeometry:
		return vk.ShaderStageGeometryBit
	case StageTessControl:
		return vk.ShaderStageTessellationControlBit
	case StageTessEvaluation:
		return vk.ShaderStageTessellationEvaluationBit
	case StageRaygen:
		return vk.ShaderStageRaygenBitNvx
	case StageMiss:
		return vk.ShaderStageMissBitNvx
	case StageClosestHit:
		return vk.ShaderStageClosestHitBitNvx
	default:
		return vk.ShaderStageVertexBit
	}
}

// VertexAttribute is the additional reflection vertex stages yield:
// vertex input attribute and binding descriptors.
type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   vk.Format
	Offset   uint32
}

// Reflection is everything the cache recovers from a compiled module's
// bytecode without consulting the application: its binding list and, for
// vertex stages, input attributes.
type Reflection struct {
	Bindings          []BindingInfo
	VertexAttributes  []VertexAttribute
	PushConstantBytes uint32
}

// Module is one cached, compiled shader: bytecode, its reflection, and the
// live Vulkan object. Generation is bumped by the cache when the backing
// source file changes on disk; holders compare against the generation
// they built their pipeline against to decide whether to rebuild.
type Module struct {
	Key        Key
	Bytecode   []byte
	Digest     [32]byte
	Reflection Reflection
	VK         vk.ShaderModule
	generation atomic.Uint64
}

func (m *Module) Generation() uint64 { return m.generation.Load() }

// Key identifies a cached module: resolved path, stage, and a
// canonicalized (sorted, deduplicated) macro list.
type Key struct {
	Path   string
	Stage  Stage
	Macros string // canonicalized, comma-joined "NAME=VALUE" list
}

func canonicalizeMacros(macros []string) string {
	cp := append([]string(nil), macros...)
	sort.Strings(cp)
	return strings.Join(cp, ",")
}

// Compiler is the external shader-source-compiler collaborator's
// contract: compile(path, stage, macros) -> bytecode + reflection.
type Compiler interface {
	Compile(path string, stage Stage, macros []string) ([]byte, Reflection, error)
}

// Cache is the shader module cache. It is safe for concurrent use; a
// lookup of an already-built key takes only a read lock.
type Cache struct {
	device   vk.Device
	compiler Compiler

	mu      sync.RWMutex
	modules map[Key]*Module

	watch *watcher
}

func New(device vk.Device, compiler Compiler) *Cache {
	if compiler == nil {
		compiler = ShellCompiler{}
	}
	return &Cache{device: device, compiler: compiler, modules: make(map[Key]*Module)}
}

// Create is the cache's one operation:
// create(path, stage, macro_definitions) -> ShaderModuleRef. A second call
// with an equal Key returns the same *Module without recompiling.
func (c *Cache) Create(path string, stage Stage, macros []string) (*Module, error) {
	key := Key{Path: path, Stage: stage, Macros: canonicalizeMacros(macros)}

	c.mu.RLock()
	if m, ok := c.modules[key]; ok {
		c.mu.RUnlock()
		return m, nil
	}
	c.mu.RUnlock()

	bytecode, reflection, err := c.compiler.Compile(path, stage, macros)
	if err != nil {
		return nil, errs.Pipeline(errs.ShaderCompileFailed, path, err)
	}

	SortBindings(reflection.Bindings)

	var vkModule vk.ShaderModule
	if c.device != nil {
		if err := vk.Error(vk.CreateShaderModule(c.device, &vk.ShaderModuleCreateInfo{
			SType:    vk.StructureTypeShaderModuleCreateInfo,
			CodeSize: uint(len(bytecode)),
			PCode:    sliceUint32(bytecode),
		}, nil, &vkModule)); err != nil {
			return nil, errs.Pipeline(errs.ShaderCompileFailed, path, err)
		}
	}

	m := &Module{
		Key:        key,
		Bytecode:   bytecode,
		Digest:     sha256.Sum256(bytecode),
		Reflection: reflection,
		VK:         vkModule,
	}

	c.mu.Lock()
	c.modules[key] = m
	c.mu.Unlock()

	if c.watch != nil {
		c.watch.add(path, key)
	}
	return m, nil
}

// EnableHotReload starts watching every subsequently-created module's
// source path for writes, bumping that module's generation counter on
// change; pipelines referencing the module are invalidated lazily on
// next use. Safe to call once; a second call is a no-op.
func (c *Cache) EnableHotReload() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watch != nil {
		return nil
	}
	w, err := newWatcher(c)
	if err != nil {
		return err
	}
	c.watch = w
	return nil
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watch != nil {
		c.watch.close()
	}
	for _, m := range c.modules {
		if c.device != nil && m.VK != nil {
			vk.DestroyShaderModule(c.device, m.VK, nil)
		}
	}
	c.modules = make(map[Key]*Module)
	return nil
}

func (c *Cache) bump(key Key) {
	c.mu.RLock()
	m, ok := c.modules[key]
	c.mu.RUnlock()
	if !ok {
		return
	}
	gen := m.generation.Add(1)
	rlog.Infof("shader %q (stage %d) invalidated, generation now %d", key.Path, key.Stage, gen)
}

// ShellCompiler shells out to glslangValidator (or the binary named by
// Bin; there is no automatic fallback) to turn a GLSL source file into SPIR-V, then runs a minimal in-process
// SPIR-V reflection pass over the result. Source files already containing
// SPIR-V (a ".spv" path) are loaded directly, mirroring
// backend.LoadShaderModuleFromFile's behavior for precompiled shaders.
type ShellCompiler struct {
	// Bin overrides the compiler binary name; empty selects glslangValidator.
	Bin string
}

func (s ShellCompiler) Compile(path string, stage Stage, macros []string) ([]byte, Reflection, error) {
	var bytecode []byte
	var err error

	if strings.EqualFold(filepath.Ext(path), ".spv") {
		bytecode, err = os.ReadFile(path)
		if err != nil {
			return nil, Reflection{}, err
		}
	} else {
		bytecode, err = s.shellCompile(path, stage, macros)
		if err != nil {
			return nil, Reflection{}, err
		}
	}

	reflection, err := ReflectSPIRV(bytecode, stage)
	if err != nil {
		return nil, Reflection{}, err
	}
	return bytecode, reflection, nil
}

func (s ShellCompiler) shellCompile(path string, stage Stage, macros []string) ([]byte, error) {
	bin := s.Bin
	if bin == "" {
		bin = "glslangValidator"
	}
	out := path + ".spv"
	args := []string{"-V", "-S", stageShortName(stage), "-o", out}
	for _, m := range macros {
		args = append(args, "-D"+m)
	}
	args = append(args, path)

	cmd := exec.Command(bin, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", bin, err, string(output))
	}
	defer os.Remove(out)
	return os.ReadFile(out)
}

func stageShortName(s Stage) string {
	switch s {
	case StageVertex:
		return "vert"
	case StageFragment:
		return "frag"
	case StageCompute:
		return "comp"
	case StageGeometry:
		return "geom"
	case StageTessControl:
		return "tesc"
	case StageTessEvaluation:
		return "tese"
	case StageRaygen:
		return "rgen"
	case StageMiss:
		return "rmiss"
	case StageClosestHit:
		return "rchit"
	default:
		return "vert"
	}
}

func sliceUint32(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
	}
	return out
}
