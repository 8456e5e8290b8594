package pipe

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestPipe_ReadWrite(t *testing.T) {
	t.Run("round trips bytes", func(t *testing.T) {
		r, w := New(16)

		if _, err := w.Write([]byte("hello")); err != nil {
			t.Fatalf("Write: %v", err)
		}
		buf := make([]byte, 16)
		n, err := r.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if string(buf[:n]) != "hello" {
			t.Errorf("read %q, want %q", buf[:n], "hello")
		}
	})

	t.Run("non positive capacity uses default", func(t *testing.T) {
		_, w := New(0)
		if got := len(w.p.buf); got != DefaultCapacity {
			t.Errorf("capacity = %d, want %d", got, DefaultCapacity)
		}
	})

	t.Run("wraps around the ring buffer", func(t *testing.T) {
		r, w := New(4)
		buf := make([]byte, 3)

		_, _ = w.Write([]byte("abc"))
		if n, _ := r.Read(buf[:2]); string(buf[:n]) != "ab" {
			t.Fatalf("first read %q", buf[:n])
		}
		_, _ = w.Write([]byte("def"))

		var got bytes.Buffer
		for got.Len() < 4 {
			n, err := r.Read(buf)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			got.Write(buf[:n])
		}
		if got.String() != "cdef" {
			t.Errorf("read %q, want %q", got.String(), "cdef")
		}
	})
}

func TestPipe_Backpressure(t *testing.T) {
	r, w := New(8)
	payload := strings.Repeat("x", 20)

	done := make(chan error, 1)
	go func() {
		_, err := w.Write([]byte(payload))
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("write of 20 bytes into an 8 byte pipe must block until drained")
	case <-time.After(50 * time.Millisecond):
	}

	if got := w.Buffered(); got != 8 {
		t.Errorf("Buffered() = %d, want 8", got)
	}

	got, err := io.ReadAll(io.LimitReader(r, int64(len(payload))))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != payload {
		t.Errorf("read %q, want %q", got, payload)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Write: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("writer never unblocked")
	}
}

func TestPipe_ReaderBlocksUntilData(t *testing.T) {
	r, w := New(8)

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 8)
		n, _ := r.Read(buf)
		got <- string(buf[:n])
	}()

	select {
	case s := <-got:
		t.Fatalf("read returned %q on an empty pipe", s)
	case <-time.After(50 * time.Millisecond):
	}

	_, _ = w.Write([]byte("hi"))
	select {
	case s := <-got:
		if s != "hi" {
			t.Errorf("read %q, want %q", s, "hi")
		}
	case <-time.After(time.Second):
		t.Fatal("reader never woke up")
	}
}

func TestPipe_Close(t *testing.T) {
	t.Run("writer close drains then EOF", func(t *testing.T) {
		r, w := New(8)
		_, _ = w.Write([]byte("tail"))
		_ = w.Close()

		got, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		if string(got) != "tail" {
			t.Errorf("read %q, want %q", got, "tail")
		}
	})

	t.Run("writer close with error surfaces error", func(t *testing.T) {
		r, w := New(8)
		boom := errors.New("boom")
		_ = w.CloseWithError(boom)

		if _, err := r.Read(make([]byte, 1)); !errors.Is(err, boom) {
			t.Errorf("err = %v, want %v", err, boom)
		}
	})

	t.Run("reader close fails blocked writer", func(t *testing.T) {
		r, w := New(2)

		done := make(chan error, 1)
		go func() {
			_, err := w.Write([]byte("abcdef"))
			done <- err
		}()

		time.Sleep(20 * time.Millisecond)
		_ = r.Close()

		select {
		case err := <-done:
			if !errors.Is(err, io.ErrClosedPipe) {
				t.Errorf("err = %v, want io.ErrClosedPipe", err)
			}
		case <-time.After(time.Second):
			t.Fatal("writer never unblocked")
		}
	})

	t.Run("write after writer close fails", func(t *testing.T) {
		_, w := New(2)
		_ = w.Close()
		if _, err := w.Write([]byte("x")); !errors.Is(err, io.ErrClosedPipe) {
			t.Errorf("err = %v, want io.ErrClosedPipe", err)
		}
	})
}

func TestPair(t *testing.T) {
	p := NewPair(64)

	if _, err := p.Inbound.Write([]byte("req\n")); err != nil {
		t.Fatalf("inbound write: %v", err)
	}
	buf := make([]byte, 16)
	n, _ := p.Engine.Read(buf)
	if string(buf[:n]) != "req\n" {
		t.Errorf("engine read %q", buf[:n])
	}

	if _, err := p.Engine.Write([]byte("resp\n")); err != nil {
		t.Fatalf("engine write: %v", err)
	}
	_ = p.Close()

	out, err := io.ReadAll(p.Outbound)
	if err != nil {
		t.Fatalf("outbound ReadAll: %v", err)
	}
	if string(out) != "resp\n" {
		t.Errorf("outbound %q, want %q", out, "resp\n")
	}

	if _, err := p.Inbound.Write([]byte("late")); err == nil {
		t.Error("expected inbound write to fail after Close")
	}
}

func TestJoin(t *testing.T) {
	in := strings.NewReader("ping\n")
	var out bytes.Buffer
	d := Join(in, &out)

	buf := make([]byte, 8)
	n, _ := d.Read(buf)
	if string(buf[:n]) != "ping\n" {
		t.Errorf("read %q", buf[:n])
	}
	_, _ = d.Write([]byte("pong\n"))
	if out.String() != "pong\n" {
		t.Errorf("wrote %q", out.String())
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close on non-closers: %v", err)
	}
}
