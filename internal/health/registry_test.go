package health

import (
	"context"
	"errors"
	"testing"
)

func TestRegistryCheckAll(t *testing.T) {
	r := NewRegistry()
	r.Register("redis", CheckerFunc(func(ctx context.Context) error { return nil }))
	r.Register("postgres", CheckerFunc(func(ctx context.Context) error { return errors.New("connection refused") }))

	names := r.List()
	if len(names) != 2 || names[0] != "postgres" || names[1] != "redis" {
		t.Fatalf("unexpected names: %v", names)
	}

	results := r.CheckAll(context.Background())
	if results["redis"] != nil {
		t.Errorf("expected redis healthy, got %v", results["redis"])
	}
	if results["postgres"] == nil {
		t.Error("expected postgres error")
	}

	r.Register("postgres", CheckerFunc(func(ctx context.Context) error { return nil }))
	if err := r.CheckAll(context.Background())["postgres"]; err != nil {
		t.Errorf("expected re-registered postgres healthy, got %v", err)
	}
}
