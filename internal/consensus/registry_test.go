package consensus

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
)

func builtinRegistry() *Registry {
	r := NewRegistry()
	RegisterBuiltins(r)
	return r
}

func TestRegistry_Create_Unknown(t *testing.T) {
	r := builtinRegistry()
	_, err := r.Create("unknown-engine")
	if !errors.Is(err, ErrEngineNotFound) {
		t.Fatalf("err = %v, want ErrEngineNotFound", err)
	}
}

func TestRegistry_Create_Unconfigured(t *testing.T) {
	r := builtinRegistry()
	e, err := r.Create(NoProofName)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.Name() != NoProofName {
		t.Errorf("Name = %s, want %s", e.Name(), NoProofName)
	}
	if e.ChainParams() != nil {
		t.Error("Create should return an unconfigured engine")
	}

	// Each call yields a fresh engine.
	e2, _ := r.Create(NoProofName)
	if e == e2 {
		t.Error("Create returned the same instance twice")
	}
}

func TestRegistry_CreateFromParams(t *testing.T) {
	r := builtinRegistry()
	for _, name := range []string{NoProofName, ProofOfWorkName, BasicAuthorityName} {
		p := testParams(t, name)
		e, err := r.CreateFromParams(p)
		if err != nil {
			t.Fatalf("%s: CreateFromParams: %v", name, err)
		}
		if e.ChainParams() != p {
			t.Errorf("%s: engine not bound to params", name)
		}
		if got := e.ChainParams().SealEngineName; got != name {
			t.Errorf("SealEngineName = %s, want %s", got, name)
		}
		if e.Name() != name {
			t.Errorf("Name = %s, want %s", e.Name(), name)
		}
	}
}

func TestRegistry_CreateFromParams_Errors(t *testing.T) {
	r := builtinRegistry()

	if _, err := r.CreateFromParams(nil); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("nil params err = %v, want ErrNotConfigured", err)
	}
	if _, err := r.CreateFromParams(testParams(t, "Ethash")); !errors.Is(err, ErrEngineNotFound) {
		t.Errorf("unknown engine err = %v, want ErrEngineNotFound", err)
	}

	p := testParams(t, NoProofName)
	p.ScheduleForHeight = nil
	if _, err := r.CreateFromParams(p); err == nil {
		t.Error("expected error for params without schedule lookup")
	}
}

func TestRegistry_Register_LastWins(t *testing.T) {
	r := NewRegistry()
	r.Register("engine", func() SealEngine { return NewNoProof() })
	r.Register("engine", func() SealEngine { return NewProofOfWork() })

	e, err := r.Create("engine")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok := e.(*ProofOfWork); !ok {
		t.Errorf("Create returned %T, want *ProofOfWork", e)
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"engine"}) {
		t.Errorf("Names = %v, want [engine]", got)
	}
}

func TestRegistry_Names_Sorted(t *testing.T) {
	r := builtinRegistry()
	want := []string{BasicAuthorityName, NoProofName, ProofOfWorkName}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}
}

func TestRegistry_SelfCheck(t *testing.T) {
	r := builtinRegistry()
	if err := r.SelfCheck(); err != nil {
		t.Fatalf("SelfCheck: %v", err)
	}

	r.Register("broken", func() SealEngine { return nil })
	bound := testParams(t, "sticky")
	r.Register("sticky", func() SealEngine {
		e := NewNoProof()
		e.SetChainParams(bound)
		return e
	})
	err := r.SelfCheck()
	if err == nil {
		t.Fatal("SelfCheck should report broken factories")
	}
	for _, name := range []string{"broken", "sticky"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("SelfCheck error %q does not mention %s", err, name)
		}
	}
}

func TestRegistry_Reset(t *testing.T) {
	r := builtinRegistry()
	r.Reset()
	if len(r.Names()) != 0 {
		t.Fatalf("Names after Reset = %v", r.Names())
	}
	if _, err := r.Create(NoProofName); !errors.Is(err, ErrEngineNotFound) {
		t.Errorf("err = %v, want ErrEngineNotFound", err)
	}
}

func TestRegistry_Default(t *testing.T) {
	defer Default().Reset()

	if Default() != Default() {
		t.Fatal("Default should return a single registry")
	}
	Register(NoProofName, func() SealEngine { return NewNoProof() })

	if _, err := Create(NoProofName); err != nil {
		t.Fatalf("Create: %v", err)
	}
	e, err := CreateFromParams(testParams(t, NoProofName))
	if err != nil {
		t.Fatalf("CreateFromParams: %v", err)
	}
	if e.ChainParams() == nil {
		t.Error("engine from default registry not bound")
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := builtinRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if _, err := r.Create(NoProofName); err != nil {
					t.Error(err)
					return
				}
				_ = r.Names()
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 200; j++ {
			r.Register("extra", func() SealEngine { return NewNoProof() })
		}
	}()
	wg.Wait()
}
