package store

import (
	"context"
	"testing"
)

func TestLoggingRegistrar_Register(t *testing.T) {
	r := NewLoggingRegistrar(nil)

	reg, err := r.Register(context.Background(), "k1", "u1", map[string]any{"mode": "simple"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !reg.Success || reg.Address != "knowledge://u1/k1" {
		t.Errorf("unexpected registration: %+v", reg)
	}
	if err := r.Unregister(context.Background(), "k1", "u1"); err != nil {
		t.Errorf("Unregister failed: %v", err)
	}
}

func TestMemoryRegistrar_TracksRegistrations(t *testing.T) {
	r := NewMemoryRegistrar()
	ctx := context.Background()

	if _, err := r.Register(ctx, "k1", "u1", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Register(ctx, "k2", "u1", nil); err != nil {
		t.Fatal(err)
	}
	if !r.Registered("k1") || r.Count() != 2 {
		t.Errorf("registrations not tracked, count = %d", r.Count())
	}

	if err := r.Unregister(ctx, "k1", "u1"); err != nil {
		t.Fatal(err)
	}
	if r.Registered("k1") || r.Count() != 1 {
		t.Errorf("unregister not applied, count = %d", r.Count())
	}
}

func TestMemoryRegistrar_FailNext(t *testing.T) {
	r := NewMemoryRegistrar()
	ctx := context.Background()

	r.FailNext = true
	if _, err := r.Register(ctx, "k1", "u1", nil); err == nil {
		t.Fatal("expected injected failure")
	}

	// 失败只注入一次
	if _, err := r.Register(ctx, "k1", "u1", nil); err != nil {
		t.Fatalf("second call should succeed: %v", err)
	}
}
