package infra

import (
	"strings"
	"testing"
)

func TestProvideEnvDefaults(t *testing.T) {
	e, err := ProvideEnv()
	if err != nil {
		t.Fatalf("provide env: %v", err)
	}
	if e.ServerPort != 8080 {
		t.Fatalf("expected default port 8080, got %d", e.ServerPort)
	}
	if e.StoreBackend != StoreBackendRedis {
		t.Fatalf("expected default store backend %q, got %q", StoreBackendRedis, e.StoreBackend)
	}
}

func TestProvideEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("REDIS_DB", "3")

	e, err := ProvideEnv()
	if err != nil {
		t.Fatalf("provide env: %v", err)
	}
	if e.ServerPort != 9090 || e.StoreBackend != StoreBackendMemory || e.RedisDb != 3 {
		t.Fatalf("unexpected env %+v", e)
	}
}

func TestProvideEnvErrors(t *testing.T) {
	t.Run("bad int", func(t *testing.T) {
		t.Setenv("REDIS_DB", "zero")
		_, err := ProvideEnv()
		if err == nil || !strings.Contains(err.Error(), "parse env:") {
			t.Fatalf("expected parse env error, got %v", err)
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "etcd")
		if _, err := ProvideEnv(); err == nil {
			t.Fatal("expected error")
		}
	})
}
