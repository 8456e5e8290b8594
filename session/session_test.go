package session

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"
)

var hexID = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestNewID(t *testing.T) {
	const n = 10000
	seen := make(map[string]struct{}, n)

	for i := 0; i < n; i++ {
		id, err := NewID()
		if err != nil {
			t.Fatalf("NewID: %v", err)
		}
		if !hexID.MatchString(id) {
			t.Fatalf("id %q is not 32 lowercase hex characters", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q after %d ids", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestRegistry(t *testing.T) {
	t.Run("insert get remove", func(t *testing.T) {
		reg := NewRegistry()
		s := New(context.Background(), "abc", &bytes.Buffer{})

		if err := reg.Insert(s); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		got, err := reg.Get("abc")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != s {
			t.Error("Get returned a different session")
		}
		if reg.Len() != 1 {
			t.Errorf("Len() = %d, want 1", reg.Len())
		}

		reg.Remove("abc")
		if _, err := reg.Get("abc"); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("err = %v, want ErrSessionNotFound", err)
		}
		if reg.Len() != 0 {
			t.Errorf("Len() = %d, want 0", reg.Len())
		}
	})

	t.Run("rejects duplicate ids", func(t *testing.T) {
		reg := NewRegistry()
		_ = reg.Insert(New(context.Background(), "dup", &bytes.Buffer{}))

		err := reg.Insert(New(context.Background(), "dup", &bytes.Buffer{}))
		if !errors.Is(err, ErrSessionExists) {
			t.Errorf("err = %v, want ErrSessionExists", err)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		reg := NewRegistry()
		if _, err := reg.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("err = %v, want ErrSessionNotFound", err)
		}
		reg.Remove("missing")
	})

	t.Run("range visits snapshot", func(t *testing.T) {
		reg := NewRegistry()
		for _, id := range []string{"a", "b", "c"} {
			_ = reg.Insert(New(context.Background(), id, &bytes.Buffer{}))
		}

		visited := 0
		reg.Range(func(s *Session) bool {
			visited++
			reg.Remove(s.ID())
			return true
		})
		if visited != 3 {
			t.Errorf("visited %d sessions, want 3", visited)
		}
		if reg.Len() != 0 {
			t.Errorf("Len() = %d, want 0", reg.Len())
		}
	})

	t.Run("concurrent access", func(t *testing.T) {
		reg := NewRegistry()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id, _ := NewID()
				_ = reg.Insert(New(context.Background(), id, &bytes.Buffer{}))
				for j := 0; j < 20; j++ {
					if _, err := reg.Get(id); err != nil {
						t.Errorf("Get(%s): %v", id, err)
						return
					}
				}
				reg.Remove(id)
			}()
		}
		wg.Wait()
		if reg.Len() != 0 {
			t.Errorf("Len() = %d, want 0", reg.Len())
		}
	})
}

func TestSession_Acquire(t *testing.T) {
	t.Run("exclusive", func(t *testing.T) {
		var buf bytes.Buffer
		s := New(context.Background(), "s", &buf)

		w, release, err := s.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		_, _ = w.Write([]byte("x"))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if _, _, err := s.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("second Acquire err = %v, want DeadlineExceeded", err)
		}

		release()
		release()

		_, release2, err := s.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire after release: %v", err)
		}
		release2()
	})

	t.Run("fails once session is cancelled", func(t *testing.T) {
		s := New(context.Background(), "s", &bytes.Buffer{})
		_, release, _ := s.Acquire(context.Background())
		defer release()

		s.Cancel()
		if _, _, err := s.Acquire(context.Background()); !errors.Is(err, ErrSessionClosed) {
			t.Errorf("err = %v, want ErrSessionClosed", err)
		}
		select {
		case <-s.Done():
		default:
			t.Error("Done not closed after Cancel")
		}
	})
}
