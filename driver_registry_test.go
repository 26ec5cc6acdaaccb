package smartermodel

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

type closingDriver struct {
	id     string
	closed bool
	err    error
}

func (c *closingDriver) ID() string { return c.id }

func (c *closingDriver) Close() error {
	c.closed = true
	return c.err
}

func TestDriverRegistry_Register(t *testing.T) {
	reg := NewDriverRegistry()
	backend := newFakeBackend("primary", nil)
	if err := reg.Register(backend); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	d, err := reg.Get("primary")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if d != backend {
		t.Error("Get should return the registered instance")
	}

	if err := reg.Register(&getOnly{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("registering a driver without id: got %v", err)
	}
}

func TestDriverRegistry_NotFound(t *testing.T) {
	reg := NewDriverRegistry()
	if _, err := reg.Get("nope"); !errors.Is(err, ErrDriverNotFound) {
		t.Errorf("Get: expected ErrDriverNotFound, got %v", err)
	}
	if _, err := reg.Implements("nope", CapGet); !errors.Is(err, ErrDriverNotFound) {
		t.Errorf("Implements: expected ErrDriverNotFound, got %v", err)
	}
}

func TestDriverRegistry_FactoryCapabilitiesWithoutConstruction(t *testing.T) {
	reg := NewDriverRegistry()
	var built atomic.Int32
	err := RegisterFactory(reg, "cache", func() (fakeCache, error) {
		built.Add(1)
		return fakeCache{newFakeBackend("cache", nil)}, nil
	})
	if err != nil {
		t.Fatalf("RegisterFactory failed: %v", err)
	}

	for _, c := range []Capability{CapGet, CapSave, CapDelete, CapSelect, CapCache} {
		ok, err := reg.Implements("cache", c)
		if err != nil || !ok {
			t.Errorf("Implements(%s) = %v, %v", c, ok, err)
		}
	}
	if ok, _ := reg.Implements("cache", CapSearch); ok {
		t.Error("fake cache does not search")
	}
	if built.Load() != 0 || reg.Constructed("cache") {
		t.Fatal("Implements must not construct the driver")
	}

	if _, err := reg.Get("cache"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if built.Load() != 1 || !reg.Constructed("cache") {
		t.Errorf("factory ran %d times, want 1", built.Load())
	}
}

func TestDriverRegistry_ComputeOnce(t *testing.T) {
	reg := NewDriverRegistry()
	var built atomic.Int32
	_ = RegisterFactory(reg, "primary", func() (*fakeBackend, error) {
		built.Add(1)
		return newFakeBackend("primary", nil), nil
	})

	var wg sync.WaitGroup
	got := make([]Driver, 32)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := reg.Get("primary")
			if err != nil {
				t.Errorf("Get failed: %v", err)
			}
			got[i] = d
		}()
	}
	wg.Wait()

	if built.Load() != 1 {
		t.Errorf("factory ran %d times, want 1", built.Load())
	}
	for i := range got {
		if got[i] != got[0] {
			t.Fatal("concurrent callers received different instances")
		}
	}
}

func TestDriverRegistry_FactoryErrorRetries(t *testing.T) {
	reg := NewDriverRegistry()
	attempts := 0
	_ = RegisterFactory(reg, "flaky", func() (*fakeBackend, error) {
		attempts++
		if attempts == 1 {
			return nil, ErrBackendUnavailable
		}
		return newFakeBackend("flaky", nil), nil
	})

	if _, err := reg.Get("flaky"); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	if _, err := reg.Get("flaky"); err != nil {
		t.Fatalf("second Get should retry the factory: %v", err)
	}
}

func TestDriverRegistry_IDsAndClose(t *testing.T) {
	reg := NewDriverRegistry()
	ok := &closingDriver{id: "b"}
	failing := &closingDriver{id: "a", err: errors.New("close failed")}
	_ = reg.Register(ok)
	_ = reg.Register(failing)
	_ = RegisterFactory(reg, "lazy", func() (*closingDriver, error) {
		t.Error("Close must not construct lazy drivers")
		return &closingDriver{id: "lazy"}, nil
	})

	if ids := reg.IDs(); len(ids) != 3 || ids[0] != "a" || ids[2] != "lazy" {
		t.Errorf("IDs = %v", ids)
	}

	err := reg.Close()
	if err == nil {
		t.Fatal("expected the close failure to surface")
	}
	if !ok.closed || !failing.closed {
		t.Error("every constructed closer should be closed")
	}
}

func TestCapabilities(t *testing.T) {
	caps := Capabilities(&getOnly{id: "g"})
	if len(caps) != 1 || caps[0] != CapGet {
		t.Errorf("Capabilities = %v", caps)
	}
	if Implements(nil, CapGet) {
		t.Error("nil driver implements nothing")
	}
	if CapDeleteQuery.String() != "delete_query" || Capability(99).String() != "unknown" {
		t.Error("unexpected capability names")
	}
}

func TestDefaultAccessors(t *testing.T) {
	if DefaultDriverRegistry() != DefaultDriverRegistry() {
		t.Error("DefaultDriverRegistry should return one instance")
	}
	if DefaultIdentityMap() != DefaultIdentityMap() {
		t.Error("DefaultIdentityMap should return one instance")
	}
	if DefaultStore().IdentityMap() != DefaultIdentityMap() {
		t.Error("DefaultStore should share the default identity map")
	}
}
