package testfixtures

import (
	"sync"
	"testing"
)

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	t.Parallel()

	gen := NewIDGenerator("session")
	if want := gen.Nth(1); want != "session-1" {
		t.Fatalf("unexpected predicted id %q", want)
	}

	first := gen.Next()
	second := gen.Next()
	if first != "session-1" || second != "session-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
	if gen.Issued() != 2 {
		t.Fatalf("expected 2 issued identifiers, got %d", gen.Issued())
	}
}

func TestIDGeneratorDefaultsPrefix(t *testing.T) {
	t.Parallel()

	if next := NewIDGenerator("").Next(); next != "id-1" {
		t.Fatalf("expected id-1, got %q", next)
	}
	var nilGen *IDGenerator
	if next := nilGen.NextFunc()(); next != "" {
		t.Fatalf("expected empty id from nil generator, got %q", next)
	}
}

func TestIDGeneratorIsUniqueUnderConcurrency(t *testing.T) {
	t.Parallel()

	gen := NewIDGenerator("event")
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{})
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := gen.Next()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != 400 || gen.Issued() != 400 {
		t.Fatalf("expected 400 unique ids, got %d (issued %d)", len(seen), gen.Issued())
	}
}
