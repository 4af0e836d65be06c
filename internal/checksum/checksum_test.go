package checksum

import "testing"

func TestSum(t *testing.T) {
	// sha256("abc")
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := Sum([]byte("abc")); got != want {
		t.Errorf("Sum = %s", got)
	}
}

func TestLinesMatchesSum(t *testing.T) {
	l := NewLines()
	l.Add("a")
	l.Add("b")
	if got, want := l.Sum(), Sum([]byte("a\nb\n")); got != want {
		t.Errorf("Lines = %s, want %s", got, want)
	}
}

func TestLinesBoundaries(t *testing.T) {
	a, b := NewLines(), NewLines()
	a.Add("ab")
	a.Add("c")
	b.Add("a")
	b.Add("bc")
	if a.Sum() == b.Sum() {
		t.Error("line boundaries should affect the digest")
	}
}
