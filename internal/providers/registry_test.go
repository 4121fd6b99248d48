package providers

import (
	"errors"
	"testing"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	mock := NewMockClient("")
	r.Register("mock", mock)

	got, err := r.Get("mock")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != LLMClient(mock) {
		t.Error("returned client is not the registered one")
	}

	if _, err := r.Get("missing"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("err = %v, want ErrUnknownProvider", err)
	}
}

func TestRegistryDefault(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Default(); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("empty registry default: err = %v", err)
	}

	r.Register("a", NewMockClient("a"))
	r.Register("b", NewMockClient("b"))

	// First registration becomes the default.
	def, err := r.Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if def.Name() != "mock" {
		t.Errorf("default name = %q", def.Name())
	}

	if err := r.SetDefault("b"); err != nil {
		t.Fatalf("set default: %v", err)
	}
	if err := r.SetDefault("missing"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("set default missing: err = %v", err)
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register("zeta", NewMockClient(""))
	r.Register("alpha", NewMockClient(""))

	names := r.List()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("list = %v", names)
	}
	if !r.Has("zeta") || r.Has("missing") {
		t.Error("Has misreports registrations")
	}
}

func TestNewRegistryFromSettings(t *testing.T) {
	r, err := NewRegistryFromSettings(Settings{Provider: "mock"}, nil)
	if err != nil {
		t.Fatalf("mock settings: %v", err)
	}
	if !r.Has("mock") {
		t.Error("mock provider not registered")
	}

	if _, err := NewRegistryFromSettings(Settings{Provider: "openai"}, nil); err == nil {
		t.Error("openai without API key should fail")
	}

	if _, err := NewRegistryFromSettings(Settings{Provider: "carrier-pigeon"}, nil); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("unknown provider: err = %v", err)
	}

	r, err = NewRegistryFromSettings(Settings{Provider: "openai", APIKey: "sk-test", Model: "gpt-4o-mini"}, nil)
	if err != nil {
		t.Fatalf("openai settings: %v", err)
	}
	client, err := r.Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if client.Name() != "openai" {
		t.Errorf("provider name = %q", client.Name())
	}

	if _, err := NewRegistryFromSettings(Settings{Provider: "openrouter"}, nil); err == nil {
		t.Error("openrouter without API key should fail")
	}

	r, err = NewRegistryFromSettings(Settings{Provider: "openrouter", APIKey: "sk-test", Model: "openai/gpt-4o-mini"}, nil)
	if err != nil {
		t.Fatalf("openrouter settings: %v", err)
	}
	client, err = r.Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if client.Name() != "openrouter" {
		t.Errorf("provider name = %q", client.Name())
	}
}
