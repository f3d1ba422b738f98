package registry

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/supportbot/chatwidget-go/internal/config"
	"go.uber.org/zap/zaptest"
)

func TestRegisterDeduplicatesAndKeepsOrder(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))

	for _, id := range []string{"a2", "a1", "a2", "a3"} {
		if err := r.Register(id); err != nil {
			t.Fatalf("Register(%q) failed: %v", id, err)
		}
	}

	if got := r.IDs(); !reflect.DeepEqual(got, []string{"a2", "a1", "a3"}) {
		t.Fatalf("unexpected ids %v", got)
	}
	if !r.Has("a1") || r.Has("a9") {
		t.Error("Has reported wrong membership")
	}
}

func TestRegisterRejectsEmpty(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	var cfgErr *config.ConfigError
	if err := r.Register(""); !errors.As(err, &cfgErr) || cfgErr.Field != "agentId" {
		t.Fatalf("expected agentId ConfigError, got %v", err)
	}
	if r.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Count())
	}
}

func TestInitRunsExactlyOnce(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	r.Register("a1")
	r.Register("a2")

	var calls int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Init(func(ids []string) error {
				mu.Lock()
				defer mu.Unlock()
				calls++
				if len(ids) != 2 {
					t.Errorf("expected 2 ids, got %v", ids)
				}
				return nil
			})
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected init to run once, ran %d times", calls)
	}
}

func TestInitFreezesRegistry(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	r.Register("a1")

	boom := errors.New("boom")
	if err := r.Init(func([]string) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected init error, got %v", err)
	}
	if err := r.Register("a2"); !errors.Is(err, ErrRegistryFrozen) {
		t.Fatalf("expected ErrRegistryFrozen, got %v", err)
	}
	if err := r.Init(func([]string) error { return nil }); !errors.Is(err, boom) {
		t.Fatalf("expected first init result to be returned again, got %v", err)
	}
}
