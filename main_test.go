package main

import (
	"errors"
	"slices"
	"testing"

	"netpoller/collectors"
	"netpoller/collectors/wan"
)

func TestNewCollectorRegistry(t *testing.T) {
	r, err := newCollectorRegistry()
	if err != nil {
		t.Fatalf("newCollectorRegistry: %v", err)
	}
	want := []string{"mikrotik", "qos", "system", "wan", "wireless"}
	got := r.CollectorNames()
	if len(got) != len(want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("names = %v, want %v", got, want)
			break
		}
	}
}

func TestNewCollectorRegistryDuplicate(t *testing.T) {
	saved := collectorFactories
	t.Cleanup(func() { collectorFactories = saved })
	collectorFactories = append(slices.Clone(saved), collectorFactory{wan.Name, wan.New})

	if _, err := newCollectorRegistry(); !errors.Is(err, collectors.ErrDuplicateCollector) {
		t.Errorf("err = %v, want ErrDuplicateCollector", err)
	}
}
