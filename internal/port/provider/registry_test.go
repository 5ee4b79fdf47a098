package provider

import (
	"context"
	"strings"
	"testing"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
)

type fakeInvoker struct{ name string }

func (f *fakeInvoker) Name() string { return f.name }
func (f *fakeInvoker) Capabilities() Capabilities {
	return Capabilities{Types: []entity.Type{entity.TypeNote}}
}
func (f *fakeInvoker) Invoke(_ context.Context, _ Request) ([]*entity.Candidate, error) {
	return nil, nil
}

func TestRegistry_RegisterAndNew(t *testing.T) {
	Register("fake-reg", func(config map[string]string) (Invoker, error) {
		return &fakeInvoker{name: "fake-reg"}, nil
	})

	inv, err := New("fake-reg", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if inv.Name() != "fake-reg" {
		t.Fatalf("unexpected name %q", inv.Name())
	}
}

func TestRegistry_UnknownProvider(t *testing.T) {
	_, err := New("nope", nil)
	if err == nil || !strings.Contains(err.Error(), "unknown provider") {
		t.Fatalf("expected unknown provider error, got %v", err)
	}
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	Register("fake-dup", func(config map[string]string) (Invoker, error) {
		return &fakeInvoker{name: "fake-dup"}, nil
	})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	Register("fake-dup", func(config map[string]string) (Invoker, error) {
		return &fakeInvoker{name: "fake-dup"}, nil
	})
}

func TestCapabilities_Supports(t *testing.T) {
	caps := Capabilities{Types: []entity.Type{entity.TypeTable, entity.TypeWeld}}
	if !caps.Supports(entity.TypeWeld) {
		t.Fatal("expected WELD supported")
	}
	if caps.Supports(entity.TypeNote) {
		t.Fatal("expected NOTE unsupported")
	}
}
