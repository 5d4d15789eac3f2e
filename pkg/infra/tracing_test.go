package infra

import (
	"context"
	"testing"
)

func TestSetupTracingDisabled(t *testing.T) {
	cases := []*Env{
		{OtelEnabled: true, OtelEndpoint: ""},
		{OtelEnabled: false, OtelEndpoint: "http://localhost:4318"},
	}

	for _, env := range cases {
		shutdown, err := SetupTracing(context.Background(), env, "test")
		if err != nil {
			t.Fatalf("setup tracing: %v", err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown: %v", err)
		}
	}
}
