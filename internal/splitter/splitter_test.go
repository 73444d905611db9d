package splitter

import "testing"

func TestSplitter_SplitsOnDelimiter(t *testing.T) {
	t.Parallel()

	s := New(0)
	segs := s.Push("Hello there! ")

	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1: %+v", len(segs), segs)
	}
	if segs[0].Text != "Hello there!" {
		t.Errorf("Text = %q, want %q", segs[0].Text, "Hello there!")
	}
	if segs[0].Index != 0 {
		t.Errorf("Index = %d, want 0", segs[0].Index)
	}
}

func TestSplitter_IndexesIncreaseAcrossSegments(t *testing.T) {
	t.Parallel()

	s := New(0)
	segs := s.Push("One! Two? Three.")
	// '.' is not in the delimiter set, so only "One!" and "Two?" cut here.
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(segs), segs)
	}
	if segs[0].Index != 0 || segs[1].Index != 1 {
		t.Errorf("indexes = %d,%d, want 0,1", segs[0].Index, segs[1].Index)
	}
	if segs[0].Text != "One!" || segs[1].Text != "Two?" {
		t.Errorf("got %q / %q", segs[0].Text, segs[1].Text)
	}
}

func TestSplitter_RespectsMinLengthByMerging(t *testing.T) {
	t.Parallel()

	s := New(10)
	segs := s.Push("Hi! Long enough sentence now.")
	if len(segs) != 0 {
		t.Fatalf("got %d segments before '!' qualifies, want 0 (merged): %+v", len(segs), segs)
	}

	segs = s.Push("!")
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1 after forcing a qualifying cut: %+v", len(segs), segs)
	}
	if segs[0].Text != "Hi! Long enough sentence now.!" {
		t.Errorf("Text = %q", segs[0].Text)
	}
}

func TestSplitter_SplitsOnParagraphBreak(t *testing.T) {
	t.Parallel()

	s := New(0)
	segs := s.Push("first part\n\nsecond part")
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1: %+v", len(segs), segs)
	}
	if segs[0].Text != "first part" {
		t.Errorf("Text = %q, want %q", segs[0].Text, "first part")
	}
}

func TestSplitter_JapaneseDelimiters(t *testing.T) {
	t.Parallel()

	s := New(0)
	segs := s.Push("こんにちは。元気ですか？")
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(segs), segs)
	}
	if segs[0].Text != "こんにちは。" {
		t.Errorf("Text = %q", segs[0].Text)
	}
	if segs[1].Text != "元気ですか？" {
		t.Errorf("Text = %q", segs[1].Text)
	}
}

func TestSplitter_FlushEmitsRemainder(t *testing.T) {
	t.Parallel()

	s := New(0)
	s.Push("trailing text with no delimiter")

	seg := s.Flush()
	if seg == nil {
		t.Fatal("expected a final segment")
	}
	if seg.Text != "trailing text with no delimiter" {
		t.Errorf("Text = %q", seg.Text)
	}
}

func TestSplitter_FlushEmptyReturnsNil(t *testing.T) {
	t.Parallel()

	s := New(0)
	s.Push("Done.!")
	s.Push("") // no-op

	if seg := s.Flush(); seg != nil {
		t.Errorf("expected nil after flushing an already-drained buffer, got %+v", seg)
	}
}

func TestSplitter_MultipleTokensAccumulate(t *testing.T) {
	t.Parallel()

	s := New(0)
	var all []string
	for _, tok := range []string{"Hel", "lo wor", "ld", "!", " More."} {
		for _, seg := range s.Push(tok) {
			all = append(all, seg.Text)
		}
	}
	if fin := s.Flush(); fin != nil {
		all = append(all, fin.Text)
	}

	want := []string{"Hello world!", "More."}
	if len(all) != len(want) {
		t.Fatalf("got %v, want %v", all, want)
	}
	for i := range want {
		if all[i] != want[i] {
			t.Errorf("segment %d = %q, want %q", i, all[i], want[i])
		}
	}
}
