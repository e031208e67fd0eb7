package logging

import "testing"

func TestRingWriteDrain(t *testing.T) {
	r := NewRing(16)

	n, err := r.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write() = %d, %v, want 5, nil", n, err)
	}
	if r.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", r.Len())
	}

	dst := make([]byte, 16)
	n = r.Drain(dst)
	if n != 5 || string(dst[:n]) != "hello" {
		t.Fatalf("Drain() = %q, want %q", dst[:n], "hello")
	}
	if r.Len() != 0 {
		t.Fatalf("Len() after drain = %d, want 0", r.Len())
	}
}

func TestRingEvictsOldestOnOverflow(t *testing.T) {
	r := NewRing(4)

	r.Write([]byte("ab"))
	r.Write([]byte("cd"))
	r.Write([]byte("ef")) // overflow: "ab" evicted

	dst := make([]byte, 4)
	n := r.Drain(dst)
	if string(dst[:n]) != "cdef" {
		t.Fatalf("Drain() = %q, want %q", dst[:n], "cdef")
	}
}

func TestRingDrainShorterThanBuffer(t *testing.T) {
	r := NewRing(16)
	r.Write([]byte("abcdef"))

	dst := make([]byte, 3)
	n := r.Drain(dst)
	if n != 3 || string(dst) != "abc" {
		t.Fatalf("Drain() = %q, want %q", dst[:n], "abc")
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}

	n = r.Drain(dst)
	if n != 3 || string(dst) != "def" {
		t.Fatalf("second Drain() = %q, want %q", dst[:n], "def")
	}
}

func TestRingWriteLargerThanCapacity(t *testing.T) {
	r := NewRing(4)
	r.Write([]byte("abcdefgh"))

	dst := make([]byte, 4)
	n := r.Drain(dst)
	if string(dst[:n]) != "efgh" {
		t.Fatalf("Drain() = %q, want %q", dst[:n], "efgh")
	}
}

func TestKernelRingSingleton(t *testing.T) {
	if KernelRing() != kernelRing {
		t.Fatal("KernelRing() should return the package singleton")
	}
}
