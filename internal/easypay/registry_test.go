package easypay

import (
	"context"
	"sync"
	"testing"

	"commerceplatform/internal/commerce"
)

func TestRegistry_CachesClientPerStore(t *testing.T) {
	settings := &fakeSettings{settings: &commerce.Settings{AuthenticationKey: "key"}}
	registry := NewRegistry(settings, nil, testLogger())

	first, err := registry.Get(context.Background(), "store-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := registry.Get(context.Background(), "store-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if first != second {
		t.Error("repeated Get returned a different client")
	}
	if settings.storeReads != 1 {
		t.Errorf("settings were read %d times, want 1", settings.storeReads)
	}
}

func TestRegistry_GlobalAndStoreClientsAreDistinct(t *testing.T) {
	settings := &fakeSettings{settings: &commerce.Settings{AuthenticationKey: "key"}}
	registry := NewRegistry(settings, nil, testLogger())

	global, err := registry.Get(context.Background(), "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	store, err := registry.Get(context.Background(), "store-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if global == store {
		t.Error("global and store clients should be separate instances")
	}
	if settings.moduleReads != 1 || settings.storeReads != 1 {
		t.Errorf("reads = %d module, %d store; want 1 and 1", settings.moduleReads, settings.storeReads)
	}
}

func TestRegistry_ConcurrentGetConstructsOnce(t *testing.T) {
	settings := &fakeSettings{settings: &commerce.Settings{AuthenticationKey: "key"}}
	registry := NewRegistry(settings, nil, testLogger())

	const goroutines = 16
	clients := make([]GatewayAPI, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			client, err := registry.Get(context.Background(), "store-1")
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			clients[n] = client
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		if clients[i] != clients[0] {
			t.Fatalf("goroutine %d saw a different client", i)
		}
	}
	if settings.storeReads != 1 {
		t.Errorf("settings were read %d times, want 1", settings.storeReads)
	}
}

func TestRegistry_FailedConstructionNotCached(t *testing.T) {
	settings := &fakeSettings{settings: &commerce.Settings{}} // no auth key
	registry := NewRegistry(settings, nil, testLogger())

	if _, err := registry.Get(context.Background(), "store-1"); err == nil {
		t.Fatal("expected construction to fail without an authentication key")
	}

	settings.settings = &commerce.Settings{AuthenticationKey: "key"}
	if _, err := registry.Get(context.Background(), "store-1"); err != nil {
		t.Fatalf("Get after fixing settings: %v", err)
	}
	if settings.storeReads != 2 {
		t.Errorf("settings were read %d times, want 2", settings.storeReads)
	}
}
