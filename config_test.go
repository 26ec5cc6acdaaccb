package smartermodel

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func TestModelConfigOrders(t *testing.T) {
	cfg := ModelConfig{Backends: []string{"redis", "postgres", "s3"}}

	if got := cfg.ReadOrder(); !slices.Equal(got, []string{"redis", "postgres", "s3"}) {
		t.Errorf("ReadOrder = %v", got)
	}
	if got := cfg.WriteOrder(); !slices.Equal(got, []string{"s3", "postgres", "redis"}) {
		t.Errorf("WriteOrder = %v, want the read order reversed", got)
	}
	if got := cfg.RemoveOrder(); !slices.Equal(got, cfg.WriteOrder()) {
		t.Errorf("RemoveOrder = %v, want the write order", got)
	}
	if cfg.Backends[0] != "redis" {
		t.Error("WriteOrder must not reverse Backends in place")
	}

	cfg.SaveOrder = []string{"postgres"}
	cfg.DeleteOrder = []string{"redis", "postgres"}
	if got := cfg.WriteOrder(); !slices.Equal(got, []string{"postgres"}) {
		t.Errorf("WriteOrder override = %v", got)
	}
	if got := cfg.RemoveOrder(); !slices.Equal(got, []string{"redis", "postgres"}) {
		t.Errorf("RemoveOrder override = %v", got)
	}
}

func TestModelConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ModelConfig
		wantErr bool
	}{
		{"valid", ModelConfig{Backends: []string{"memory"}, CacheTTL: time.Minute}, false},
		{"no backends", ModelConfig{}, true},
		{"negative ttl", ModelConfig{Backends: []string{"memory"}, CacheTTL: -time.Second}, true},
		{"empty id", ModelConfig{Backends: []string{""}}, true},
		{"duplicate save order", ModelConfig{Backends: []string{"a"}, SaveOrder: []string{"a", "a"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestModelConfigIDGenerator(t *testing.T) {
	if id := (ModelConfig{}).nextID(); !IsValidID(id) {
		t.Errorf("default generator produced %q", id)
	}
	cfg := ModelConfig{IDGenerator: func() string { return "fixed" }}
	if id := cfg.nextID(); id != "fixed" {
		t.Errorf("nextID = %q, want fixed", id)
	}
}
