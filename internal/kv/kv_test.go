package kv

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
)

// runStoreContract exercises the behavior every backend shares.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("get missing key", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(context.Background(), "items"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("set then get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.Set(ctx, "items", []byte(`[{"id":0}]`)); err != nil {
			t.Fatalf("Set() unexpected error: %v", err)
		}
		got, err := s.Get(ctx, "items")
		if err != nil {
			t.Fatalf("Get() unexpected error: %v", err)
		}
		if string(got) != `[{"id":0}]` {
			t.Errorf("Get() = %s", got)
		}
	})

	t.Run("set overwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_ = s.Set(ctx, "items", []byte("one"))
		_ = s.Set(ctx, "items", []byte("two"))

		got, _ := s.Get(ctx, "items")
		if string(got) != "two" {
			t.Errorf("Get() = %s, want two", got)
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_ = s.Set(ctx, "items", []byte("a"))
		_ = s.Set(ctx, "other", []byte("b"))
		_ = s.Delete(ctx, "other")

		got, err := s.Get(ctx, "items")
		if err != nil || string(got) != "a" {
			t.Errorf("Get(items) = %s, %v", got, err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_ = s.Set(ctx, "items", []byte("a"))
		if err := s.Delete(ctx, "items"); err != nil {
			t.Fatalf("Delete() unexpected error: %v", err)
		}
		if _, err := s.Get(ctx, "items"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() after Delete() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete missing key", func(t *testing.T) {
		s := newStore(t)
		if err := s.Delete(context.Background(), "nothing"); err != nil {
			t.Errorf("Delete() unexpected error: %v", err)
		}
	})

	t.Run("empty key", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.Get(ctx, ""); !errors.Is(err, ErrEmptyKey) {
			t.Errorf("Get() error = %v, want ErrEmptyKey", err)
		}
		if err := s.Set(ctx, "", []byte("x")); !errors.Is(err, ErrEmptyKey) {
			t.Errorf("Set() error = %v, want ErrEmptyKey", err)
		}
		if err := s.Delete(ctx, ""); !errors.Is(err, ErrEmptyKey) {
			t.Errorf("Delete() error = %v, want ErrEmptyKey", err)
		}
	})

	t.Run("update creates missing key", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		err := s.Update(ctx, "items", func(current []byte) ([]byte, error) {
			if current != nil {
				t.Errorf("current = %s, want nil for a missing key", current)
			}
			return []byte("first"), nil
		})
		if err != nil {
			t.Fatalf("Update() unexpected error: %v", err)
		}
		got, _ := s.Get(ctx, "items")
		if string(got) != "first" {
			t.Errorf("Get() = %s, want first", got)
		}
	})

	t.Run("update sees current value", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_ = s.Set(ctx, "items", []byte("a"))

		err := s.Update(ctx, "items", func(current []byte) ([]byte, error) {
			return append(current, 'b'), nil
		})
		if err != nil {
			t.Fatalf("Update() unexpected error: %v", err)
		}
		got, _ := s.Get(ctx, "items")
		if string(got) != "ab" {
			t.Errorf("Get() = %s, want ab", got)
		}
	})

	t.Run("update nil result deletes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_ = s.Set(ctx, "items", []byte("a"))

		if err := s.Update(ctx, "items", func([]byte) ([]byte, error) { return nil, nil }); err != nil {
			t.Fatalf("Update() unexpected error: %v", err)
		}
		if _, err := s.Get(ctx, "items"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("update error leaves value", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_ = s.Set(ctx, "items", []byte("keep"))
		boom := errors.New("refused")

		err := s.Update(ctx, "items", func([]byte) ([]byte, error) {
			return []byte("lost"), boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("Update() error = %v, want %v", err, boom)
		}
		got, _ := s.Get(ctx, "items")
		if string(got) != "keep" {
			t.Errorf("Get() = %s, want keep", got)
		}
	})

	t.Run("update empty key", func(t *testing.T) {
		s := newStore(t)
		err := s.Update(context.Background(), "", func([]byte) ([]byte, error) { return []byte("x"), nil })
		if !errors.Is(err, ErrEmptyKey) {
			t.Errorf("Update() error = %v, want ErrEmptyKey", err)
		}
	})

	t.Run("concurrent updates all apply", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		const workers = 20

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = s.Update(ctx, "counter", incrementCounter)
			}()
		}
		wg.Wait()

		got, _ := s.Get(ctx, "counter")
		if string(got) != strconv.Itoa(workers) {
			t.Errorf("counter = %s, want %d", got, workers)
		}
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		if err := s.Ping(context.Background()); err != nil {
			t.Errorf("Ping() unexpected error: %v", err)
		}
	})
}

// incrementCounter treats the value as a decimal counter and adds one.
func incrementCounter(current []byte) ([]byte, error) {
	n := 0
	if current != nil {
		var err error
		if n, err = strconv.Atoi(string(current)); err != nil {
			return nil, err
		}
	}
	return []byte(strconv.Itoa(n + 1)), nil
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	// Arrange
	s := NewMemoryStore()
	ctx := context.Background()
	value := []byte("abc")

	// Act
	_ = s.Set(ctx, "k", value)
	value[0] = 'x'
	got, _ := s.Get(ctx, "k")
	got[1] = 'y'
	again, _ := s.Get(ctx, "k")

	// Assert
	if string(again) != "abc" {
		t.Errorf("stored value aliased caller memory: %s", again)
	}
}

func TestMemoryStore_ContextCancellation(t *testing.T) {
	// Arrange
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Act
	_, getErr := s.Get(ctx, "k")
	setErr := s.Set(ctx, "k", nil)
	delErr := s.Delete(ctx, "k")

	// Assert
	for name, err := range map[string]error{"Get": getErr, "Set": setErr, "Delete": delErr} {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("%s() error = %v, want context.Canceled", name, err)
		}
	}
}

func TestFileStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		s, err := NewFileStore(filepath.Join(t.TempDir(), "data", "store.json"))
		if err != nil {
			t.Fatalf("NewFileStore() unexpected error: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "store.json")
	ctx := context.Background()

	first, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() unexpected error: %v", err)
	}
	if err := first.Set(ctx, "items", []byte(`[]`)); err != nil {
		t.Fatalf("Set() unexpected error: %v", err)
	}
	_ = first.Close()

	// Act
	second, _ := NewFileStore(path)
	got, err := second.Get(ctx, "items")

	// Assert
	if err != nil {
		t.Fatalf("Get() unexpected error: %v", err)
	}
	if string(got) != `[]` {
		t.Errorf("Get() = %s, want []", got)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not be left behind")
	}
}

func TestFileStore_EmptyFile(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	s, _ := NewFileStore(path)

	// Act
	_, err := s.Get(context.Background(), "items")

	// Assert
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, _ := NewFileStore(path)
	ctx := context.Background()

	// Act
	_, getErr := s.Get(ctx, "items")
	setErr := s.Set(ctx, "items", []byte("x"))
	pingErr := s.Ping(ctx)

	// Assert
	if getErr == nil || errors.Is(getErr, ErrNotFound) {
		t.Errorf("Get() error = %v, want parse error", getErr)
	}
	if setErr == nil {
		t.Error("Set() should refuse to overwrite a corrupt document")
	}
	if pingErr == nil {
		t.Error("Ping() should report a corrupt document")
	}
}

func TestFileStore_UpdateAcrossInstances(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "store.json")
	ctx := context.Background()
	const perStore = 25

	stores := make([]*FileStore, 2)
	for i := range stores {
		s, err := NewFileStore(path)
		if err != nil {
			t.Fatalf("NewFileStore() unexpected error: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		stores[i] = s
	}

	// Act
	var wg sync.WaitGroup
	errs := make(chan error, len(stores)*perStore)
	for _, s := range stores {
		wg.Add(1)
		go func(s *FileStore) {
			defer wg.Done()
			for n := 0; n < perStore; n++ {
				errs <- s.Update(ctx, "counter", incrementCounter)
			}
		}(s)
	}
	wg.Wait()
	close(errs)

	// Assert
	for err := range errs {
		if err != nil {
			t.Fatalf("Update() unexpected error: %v", err)
		}
	}
	got, err := stores[1].Get(ctx, "counter")
	if err != nil {
		t.Fatalf("Get() unexpected error: %v", err)
	}
	if want := strconv.Itoa(len(stores) * perStore); string(got) != want {
		t.Errorf("counter = %s, want %s", got, want)
	}
}

func TestFileStore_CloseKeepsLockFile(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "store.json")
	ctx := context.Background()
	first, _ := NewFileStore(path)
	second, _ := NewFileStore(path)
	_ = first.Set(ctx, "items", []byte("a"))

	// Act
	closeErr := first.Close()

	// Assert
	if closeErr != nil {
		t.Fatalf("Close() unexpected error: %v", closeErr)
	}
	if _, err := os.Stat(path + ".lock"); err != nil {
		t.Errorf("lock file should survive Close(), Stat() error = %v", err)
	}
	if err := second.Set(ctx, "items", []byte("b")); err != nil {
		t.Errorf("Set() on the other instance unexpected error: %v", err)
	}
	if err := first.Set(ctx, "items", []byte("c")); err != nil {
		t.Errorf("Set() after Close() should relock, got %v", err)
	}
	_ = second.Close()
}

func TestNewFileStore_EmptyPath(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Error("NewFileStore(\"\") expected error, got nil")
	}
}

func TestBadgerStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		s, err := NewBadgerStore("")
		if err != nil {
			t.Fatalf("NewBadgerStore() unexpected error: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestBadgerStore_PersistsOnDisk(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewBadgerStore(dir)
	if err != nil {
		t.Fatalf("NewBadgerStore() unexpected error: %v", err)
	}
	_ = first.Set(ctx, "items", []byte("persisted"))
	if err := first.Close(); err != nil {
		t.Fatalf("Close() unexpected error: %v", err)
	}

	// Act
	second, err := NewBadgerStore(dir)
	if err != nil {
		t.Fatalf("NewBadgerStore() reopen error: %v", err)
	}
	defer second.Close() //nolint:errcheck
	got, err := second.Get(ctx, "items")

	// Assert
	if err != nil || string(got) != "persisted" {
		t.Errorf("Get() = %s, %v", got, err)
	}
}

func TestBadgerStore_PingAfterClose(t *testing.T) {
	s, err := NewBadgerStore(":memory:")
	if err != nil {
		t.Fatalf("NewBadgerStore() unexpected error: %v", err)
	}
	_ = s.Close()

	if err := s.Ping(context.Background()); err == nil {
		t.Error("Ping() after Close() expected error")
	}
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	if _, err := NewRedisStore("not-a-valid-url"); err == nil {
		t.Fatal("expected error for invalid URL, got nil")
	}
}

func TestNewRedisStore_UnreachableHost(t *testing.T) {
	if _, err := NewRedisStore("redis://localhost:19999"); err == nil {
		t.Fatal("expected error when Redis is unreachable, got nil")
	}
}

// Integration tests, skipped unless REDIS_URL is set.
func TestRedisStore(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set; skipping integration tests")
	}

	runStoreContract(t, func(t *testing.T) Store {
		s, err := NewRedisStore(redisURL)
		if err != nil {
			t.Fatalf("NewRedisStore() unexpected error: %v", err)
		}
		ctx := context.Background()
		_ = s.Delete(ctx, "items")
		_ = s.Delete(ctx, "other")
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr error
	}{
		{name: "default is memory", opts: Options{}},
		{name: "memory", opts: Options{Backend: BackendMemory}},
		{name: "file", opts: Options{Backend: BackendFile, Path: filepath.Join(t.TempDir(), "s.json")}},
		{name: "badger in memory", opts: Options{Backend: BackendBadger}},
		{name: "unknown", opts: Options{Backend: "sqlite"}, wantErr: ErrUnknownBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			s, err := Open(tt.opts)

			// Assert
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Open() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() unexpected error: %v", err)
			}
			defer s.Close() //nolint:errcheck
			if err := s.Ping(context.Background()); err != nil {
				t.Errorf("Ping() unexpected error: %v", err)
			}
		})
	}
}
