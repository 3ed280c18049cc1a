package msglog

import (
	"sync"
	"testing"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *recordingSink) Write(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func TestRingDropsOldestFirst(t *testing.T) {
	l := New(3)
	for i := 1; i <= 5; i++ {
		l.Infof("test", "msg %d", i)
	}
	got := l.Entries()
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i, want := range []string{"msg 3", "msg 4", "msg 5"} {
		if got[i].Text != want {
			t.Fatalf("entry %d = %q, want %q", i, got[i].Text, want)
		}
	}
}

func TestTail(t *testing.T) {
	l := New(10)
	for i := 0; i < 4; i++ {
		l.Infof("test", "%d", i)
	}
	tail := l.Tail(2)
	if len(tail) != 2 || tail[0].Text != "2" || tail[1].Text != "3" {
		t.Fatalf("unexpected tail: %+v", tail)
	}
	if n := len(l.Tail(100)); n != 4 {
		t.Fatalf("expected full log, got %d", n)
	}
}

func TestSinkReceivesAppendsButNotRestores(t *testing.T) {
	l := New(5)
	sink := &recordingSink{}
	l.SetSink(sink)
	l.Restore([]Entry{{ID: "old", Text: "restored"}})
	l.Errorf("hook", "bad event: %s", "eof")

	if len(sink.entries) != 1 || sink.entries[0].Text != "bad event: eof" {
		t.Fatalf("unexpected sink entries: %+v", sink.entries)
	}
	if sink.entries[0].Level != Error || sink.entries[0].Source != "hook" {
		t.Fatalf("unexpected entry metadata: %+v", sink.entries[0])
	}
	if l.Len() != 2 {
		t.Fatalf("expected restored + appended entries, got %d", l.Len())
	}
}

func TestConcurrentAppends(t *testing.T) {
	l := New(50)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				l.Infof("g", "%d-%d", g, i)
			}
		}(g)
	}
	wg.Wait()
	if l.Len() != 50 {
		t.Fatalf("expected bounded log of 50, got %d", l.Len())
	}
}
