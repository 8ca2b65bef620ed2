package stipple

import (
	"errors"
	"testing"
)

func TestRegisterBackendNil(t *testing.T) {
	if err := RegisterBackend(nil); err == nil {
		t.Error("RegisterBackend(nil) should fail")
	}
}

func TestRegisterBackendInitError(t *testing.T) {
	t.Cleanup(CloseBackend)
	initErr := errors.New("no adapter")
	err := RegisterBackend(&mockBackend{name: "broken", initErr: initErr})
	if !errors.Is(err, initErr) {
		t.Fatalf("RegisterBackend error = %v, want %v", err, initErr)
	}
	if Backend() != nil {
		t.Error("backend registered despite Init failure")
	}
}

func TestRegisterBackendReplacesAndCloses(t *testing.T) {
	t.Cleanup(CloseBackend)

	first := &mockBackend{name: "first"}
	second := &mockBackend{name: "second"}
	if err := RegisterBackend(first); err != nil {
		t.Fatal(err)
	}
	if err := RegisterBackend(second); err != nil {
		t.Fatal(err)
	}
	if !first.closed {
		t.Error("replaced backend was not closed")
	}
	if Backend() != second {
		t.Error("Backend() did not return the latest registration")
	}

	CloseBackend()
	if !second.closed || Backend() != nil {
		t.Error("CloseBackend did not close and unregister")
	}
}

type providerBackend struct {
	mockBackend
	provider any
}

func (p *providerBackend) SetDeviceProvider(provider any) error {
	p.provider = provider
	return nil
}

func TestSetBackendDeviceProvider(t *testing.T) {
	t.Cleanup(CloseBackend)

	if err := SetBackendDeviceProvider("none registered"); err != nil {
		t.Errorf("no backend: got %v, want nil", err)
	}

	plain := &mockBackend{name: "plain"}
	if err := RegisterBackend(plain); err != nil {
		t.Fatal(err)
	}
	if err := SetBackendDeviceProvider("ignored"); err != nil {
		t.Errorf("unaware backend: got %v, want nil", err)
	}

	aware := &providerBackend{mockBackend: mockBackend{name: "aware"}}
	if err := RegisterBackend(aware); err != nil {
		t.Fatal(err)
	}
	if err := SetBackendDeviceProvider("device"); err != nil {
		t.Fatal(err)
	}
	if aware.provider != "device" {
		t.Errorf("provider = %v, want %q", aware.provider, "device")
	}
}

func TestEngineUsesRegisteredBackend(t *testing.T) {
	t.Cleanup(CloseBackend)

	mock := &mockBackend{name: "registered"}
	if err := RegisterBackend(mock); err != nil {
		t.Fatal(err)
	}
	eng, err := NewEngine(uniform(8, 8), WithCount(1))
	if err != nil {
		t.Fatal(err)
	}
	if eng.BackendName() != "registered" {
		t.Errorf("backend = %q, want registered", eng.BackendName())
	}
	eng.Close()
	if mock.closed {
		t.Error("engine closed a backend it does not own")
	}
}

func TestEngineFallsBackWhenRegisteredBackendDeclines(t *testing.T) {
	t.Cleanup(CloseBackend)

	mock := &mockBackend{name: "small-gpu", configureErr: ErrFallbackToCPU}
	if err := RegisterBackend(mock); err != nil {
		t.Fatal(err)
	}
	eng, err := NewEngine(uniform(8, 8), WithCount(1))
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close()
	if eng.BackendName() != "software" {
		t.Errorf("backend = %q, want software fallback", eng.BackendName())
	}
}
