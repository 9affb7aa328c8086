package buffer

import "bytes"

import "testing"

func TestAppendAndBytes(t *testing.T) {
	b := New()
	b.Append([]byte("hello "))
	b.Append([]byte("world"))
	if got, want := b.Len(), 11; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	if !bytes.Equal(b.Bytes(), []byte("hello world")) {
		t.Fatalf("Bytes() = %q", b.Bytes())
	}
}

func TestPrepend(t *testing.T) {
	b := New()
	b.Append([]byte("world"))
	b.Prepend([]byte("hello "))
	if !bytes.Equal(b.Bytes(), []byte("hello world")) {
		t.Fatalf("Bytes() = %q", b.Bytes())
	}
}

func TestDrainPartialChunk(t *testing.T) {
	b := New()
	b.Append([]byte("abc"))
	b.Append([]byte("def"))
	b.Drain(4)
	if got, want := b.Len(), 2; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	if !bytes.Equal(b.Bytes(), []byte("ef")) {
		t.Fatalf("Bytes() = %q", b.Bytes())
	}
}

func TestDrainExact(t *testing.T) {
	b := New()
	b.Append([]byte("abc"))
	b.Drain(3)
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer, got len %d", b.Len())
	}
	b.Append([]byte("more"))
	if !bytes.Equal(b.Bytes(), []byte("more")) {
		t.Fatalf("Bytes() after reuse = %q", b.Bytes())
	}
}

func TestDrainOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic draining more than Len()")
		}
	}()
	b := New()
	b.Append([]byte("a"))
	b.Drain(2)
}

func TestPullupCoalesces(t *testing.T) {
	b := New()
	b.Append([]byte("a"))
	b.Append([]byte("b"))
	b.Append([]byte("c"))
	flat := b.Pullup()
	if !bytes.Equal(flat, []byte("abc")) {
		t.Fatalf("Pullup() = %q", flat)
	}
	if len(b.chunks) != 1 {
		t.Fatalf("expected 1 chunk after pullup, got %d", len(b.chunks))
	}
}

func TestMove(t *testing.T) {
	a := New()
	a.Append([]byte("a"))
	other := New()
	other.Append([]byte("b"))
	a.Move(other)
	if !bytes.Equal(a.Bytes(), []byte("ab")) {
		t.Fatalf("Bytes() = %q", a.Bytes())
	}
	if other.Len() != 0 {
		t.Fatal("expected other buffer drained after Move")
	}
}

func TestCloneIndependence(t *testing.T) {
	a := New()
	a.Append([]byte("abc"))
	clone := a.Clone()
	a.Drain(3)
	if clone.Len() != 3 {
		t.Fatalf("clone mutated by drain on original, len=%d", clone.Len())
	}
}
