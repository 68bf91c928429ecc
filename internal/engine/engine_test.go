package engine

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rivalang/riva/internal/bytecode"
	"github.com/rivalang/riva/internal/vm"
)

func fibModule() *bytecode.Module {
	b := bytecode.NewFuncBuilder("fib", "n")
	cond := b.PushTemp()
	b.BinopImm(bytecode.OpCmpLtImm, cond, 0, 2)
	rec := b.NewLabel()
	b.CondNotBr(cond, rec)
	b.Ret(0)
	b.Bind(rec)
	t1 := b.PushTemp()
	b.BinopImm(bytecode.OpSubImm, t1, 0, 1)
	b.Call(t1, 0, t1, 1)
	t2 := b.PushTemp()
	b.BinopImm(bytecode.OpSubImm, t2, 0, 2)
	b.Call(t2, 0, t2, 1)
	b.Binop(bytecode.OpAdd, t1, t1, t2)
	b.Ret(t1)

	m := bytecode.NewModule()
	m.Main = m.AddFunction(b.MustBuild())
	return m
}

func TestFibTierTransparency(t *testing.T) {
	// 带 JIT 的引擎：递归自己就把 fib 烧热
	cfg := DefaultConfig()
	cfg.JIT.HotThreshold = 10
	hot := New(cfg, nil)
	if _, err := hot.LoadModule(fibModule()); err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}
	got, err := hot.Invoke("fib", bytecode.NewInt(30))
	if err != nil {
		t.Fatalf("fib(30) failed: %v", err)
	}
	if got.AsInt() != 832040 {
		t.Errorf("fib(30) = %v, want 832040", got)
	}
	fi, _ := hot.Globals().Funcs.LookupName("fib")
	if fi.Tier() != vm.TierCompiled {
		t.Errorf("fib tier = %s, want compiled", fi.Tier())
	}
	if st := hot.Compiler().Snapshot(); st.Compiled != 1 {
		t.Errorf("stats.Compiled = %d, want 1", st.Compiled)
	}

	// 纯解释引擎给出同样的值
	cfg = DefaultConfig()
	cfg.JIT.Enabled = false
	cold := New(cfg, nil)
	if _, err := cold.LoadModule(fibModule()); err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}
	want, err := cold.Invoke("fib", bytecode.NewInt(30))
	if err != nil {
		t.Fatalf("interpreted fib(30) failed: %v", err)
	}
	if !got.Equals(want) {
		t.Errorf("tiers disagree: compiled %v, interpreted %v", got, want)
	}
	if fi, _ := cold.Globals().Funcs.LookupName("fib"); fi.Tier() != vm.TierInterpreted {
		t.Errorf("fib tier without JIT = %s, want interpreted", fi.Tier())
	}
}

func TestBuiltins(t *testing.T) {
	e := New(nil, nil)
	var out bytes.Buffer
	e.SetStdout(&out)

	if _, err := e.Invoke("print", bytecode.NewInt(1), bytecode.NewString("hi")); err != nil {
		t.Fatalf("print failed: %v", err)
	}
	if got := out.String(); got != "1 hi\n" {
		t.Errorf("print output = %q, want %q", got, "1 hi\n")
	}

	v, err := e.Invoke("str_concat", bytecode.NewString("foo"), bytecode.NewString("bar"))
	if err != nil {
		t.Fatalf("str_concat failed: %v", err)
	}
	if v.AsString().String() != "foobar" {
		t.Errorf("str_concat = %v, want foobar", v)
	}

	_, ue, err := e.InvokeProtected("str_concat", bytecode.NewInt(1))
	if err != nil {
		t.Fatalf("protected str_concat faulted: %v", err)
	}
	if ue == nil || ue.Kind != vm.ErrKindType {
		t.Errorf("str_concat(1) error = %v, want %s", ue, vm.ErrKindType)
	}

	v, err = e.Invoke("clock_ms")
	if err != nil {
		t.Fatalf("clock_ms failed: %v", err)
	}
	if v.Type != bytecode.ValInt || v.AsInt() <= 0 {
		t.Errorf("clock_ms = %v, want a positive integer", v)
	}
}

func TestImageThroughEngine(t *testing.T) {
	data, err := bytecode.SerializeModule(fibModule())
	if err != nil {
		t.Fatalf("SerializeModule failed: %v", err)
	}

	e := New(nil, nil)
	if _, err := e.LoadImage(data); err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}
	v, err := e.Invoke("fib", bytecode.NewInt(12))
	if err != nil {
		t.Fatalf("fib(12) from image failed: %v", err)
	}
	if v.AsInt() != 144 {
		t.Errorf("fib(12) from image = %v, want 144", v)
	}
}

func TestAllocLimitIsFatal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.AllocLimit = 3
	e := New(cfg, nil)

	args := []bytecode.Value{bytecode.NewString("a"), bytecode.NewString("b")}
	var fault error
	for i := 0; i < 5; i++ {
		if _, err := e.Invoke("str_concat", args...); err != nil {
			fault = err
			break
		}
	}
	if fault == nil || !vm.IsFault(fault) {
		t.Errorf("allocator exhaustion error = %v, want an engine fault", fault)
	}
}

func TestProfileExport(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JIT.HotThreshold = 2
	e := New(cfg, nil)
	if _, err := e.LoadModule(fibModule()); err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}
	if _, err := e.Invoke("fib", bytecode.NewInt(12)); err != nil {
		t.Fatalf("fib(12) failed: %v", err)
	}

	p := e.Profile()
	var fib *FuncProfile
	for i := range p.Functions {
		if p.Functions[i].Name == "fib" {
			fib = &p.Functions[i]
		}
	}
	if fib == nil {
		t.Fatal("profile has no entry for fib")
	}
	if fib.Tier != "compiled" || fib.Calls < 2 {
		t.Errorf("fib profile = %+v, want compiled with >= 2 calls", fib)
	}
	if p.JIT == nil || p.JIT.Compiled != 1 {
		t.Errorf("jit section = %+v, want 1 compiled function", p.JIT)
	}

	data, err := e.ProfileJSON()
	if err != nil {
		t.Fatalf("ProfileJSON failed: %v", err)
	}
	if !bytes.Contains(data, []byte(`"name": "fib"`)) {
		t.Errorf("profile JSON missing fib entry:\n%s", data)
	}
}

func benchmarkFib(b *testing.B, jitEnabled bool) {
	cfg := DefaultConfig()
	cfg.JIT.Enabled = jitEnabled
	cfg.JIT.HotThreshold = 2
	e := New(cfg, nil)
	if _, err := e.LoadModule(fibModule()); err != nil {
		b.Fatalf("LoadModule failed: %v", err)
	}
	arg := bytecode.NewInt(20)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Invoke("fib", arg); err != nil {
			b.Fatalf("fib(20) failed: %v", err)
		}
	}
}

func BenchmarkFibInterpreted(b *testing.B) { benchmarkFib(b, false) }
func BenchmarkFibCompiled(b *testing.B)   { benchmarkFib(b, true) }

func TestConfigLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	content := []byte("[engine]\nstack_slots = 1024\nmax_frames = 128\n\n[jit]\nenabled = true\nhot_threshold = 7\nspeculate = false\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Engine.StackSlots != 1024 || cfg.Engine.MaxFrames != 128 {
		t.Errorf("engine config = %+v, want 1024/128", cfg.Engine)
	}
	if cfg.JIT.HotThreshold != 7 || cfg.JIT.Speculate {
		t.Errorf("jit config = %+v, want threshold 7, speculate off", cfg.JIT)
	}

	if found := FindConfigFile(dir); found != path {
		t.Errorf("FindConfigFile = %q, want %q", found, path)
	}

	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("[jit]\nhot_threshold = 0\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(bad); err == nil {
		t.Error("LoadConfig accepted a zero hot_threshold")
	}
}
