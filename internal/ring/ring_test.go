package ring

import "testing"

func TestAppendSplitsOnNewline(t *testing.T) {
	r := New(10)
	r.Append([]byte("hello\nworld\n"))
	got := r.ReadAll()
	want := []string{"hello", "world"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestPartialLineCarry(t *testing.T) {
	r := New(10)
	r.Append([]byte("x"))
	r.Append([]byte(" y\n"))
	got := r.ReadAll()
	if len(got) != 1 || got[0] != "x y" {
		t.Fatalf("got %v, want [\"x y\"]", got)
	}
}

func TestCapacityOverwritesOldest(t *testing.T) {
	r := New(3)
	r.Append([]byte("a\nb\nc\nd\ne\n"))
	got := r.ReadAll()
	want := []string{"c", "d", "e"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestReadAllBoundedByCapacityPlusCarry(t *testing.T) {
	r := New(3)
	r.Append([]byte("a\nb\nc\nd\n"))
	r.Append([]byte("partial"))
	all := r.ReadAll()
	if len(all) > 4 {
		t.Fatalf("ReadAll length %d exceeds capacity+1", len(all))
	}
	if all[len(all)-1] != "partial" {
		t.Fatalf("expected trailing carry, got %v", all)
	}
}

func TestReadRecent(t *testing.T) {
	r := New(10)
	r.Append([]byte("a\nb\nc\nd\n"))
	got := r.ReadRecent(2)
	want := []string{"c", "d"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestClearResets(t *testing.T) {
	r := New(10)
	r.Append([]byte("a\nb\n"))
	r.Clear()
	if len(r.ReadAll()) != 0 {
		t.Fatalf("expected empty ring after Clear")
	}
	if r.Len() != 0 {
		t.Fatalf("expected zero length after Clear")
	}
}

func TestCRLFTreatedAsSingleTerminator(t *testing.T) {
	r := New(10)
	r.Append([]byte("foo\r\nbar\r\n"))
	got := r.ReadAll()
	want := []string{"foo", "bar"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// TestBareCRWithoutNewlineIsNotATerminator covers the in-place-redraw idiom
// (progress bars, readline prompt redraws) that emits a bare CR with no
// following LF: it must not complete a line, only CRLF or a bare LF should.
func TestBareCRWithoutNewlineIsNotATerminator(t *testing.T) {
	r := New(10)
	r.Append([]byte("a\rb"))
	got := r.ReadAll()
	if len(got) != 1 || got[0] != "a\rb" {
		t.Fatalf("got %v, want [\"a\\rb\"] (bare CR kept as carry, not split)", got)
	}
	if r.Len() != 0 {
		t.Fatalf("expected zero completed lines, got %d", r.Len())
	}
}
