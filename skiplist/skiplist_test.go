package skiplist_test

import (
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/Lucky-mi/reactorkv/skiplist"
)

func TestInsertSearchRemove(t *testing.T) {
	s := skiplist.New(16)

	if !s.Insert("a", "1") {
		t.Fatal("expected first insert of \"a\" to report new")
	}
	if s.Insert("a", "2") {
		t.Fatal("expected second insert of \"a\" to report update, not new")
	}

	value, ok := s.Search("a")
	if !ok || value != "2" {
		t.Fatalf("Search(a) = %q, %v; want 2, true", value, ok)
	}

	if _, ok := s.Search("missing"); ok {
		t.Fatal("Search(missing) reported found")
	}

	if !s.Remove("a") {
		t.Fatal("expected Remove(a) to report present")
	}
	if s.Remove("a") {
		t.Fatal("expected second Remove(a) to report absent")
	}
}

func TestSizeAndClear(t *testing.T) {
	s := skiplist.New(16)
	for _, k := range []string{"x", "y", "z"} {
		s.Insert(k, k)
	}
	if got := s.Size(); got != 3 {
		t.Fatalf("Size() = %d, want 3", got)
	}

	s.Clear()
	if got := s.Size(); got != 0 {
		t.Fatalf("Size() after Clear() = %d, want 0", got)
	}
	if s.Contains("x") {
		t.Fatal("Contains(x) after Clear() reported true")
	}
}

func TestOrderedTraversalViaDump(t *testing.T) {
	s := skiplist.New(16)
	for _, k := range []string{"c", "a", "b"} {
		s.Insert(k, k)
	}
	dump := s.Dump()
	// Dump prints the upper levels first; level 0 holds every key in order.
	level0 := dump[indexOf(dump, "level 0: "):]
	ia, ib, ic := indexOf(level0, "a:a"), indexOf(level0, "b:b"), indexOf(level0, "c:c")
	if ia < 0 || ib < 0 || ic < 0 {
		t.Fatalf("Dump() missing an entry: %s", dump)
	}
	if !(ia < ib && ib < ic) {
		t.Fatalf("Dump() not in ascending key order: %s", dump)
	}
}

func TestDumpFileLoadFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/data.db"

	s := skiplist.New(16)
	s.Insert("k1", "v1")
	s.Insert("k2", "v2")

	if err := s.DumpFile(path); err != nil {
		t.Fatalf("DumpFile: %v", err)
	}

	loaded := skiplist.New(16)
	loaded.Insert("stale", "should be cleared")
	if err := loaded.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if loaded.Contains("stale") {
		t.Fatal("LoadFile did not clear prior contents")
	}
	if v, ok := loaded.Search("k1"); !ok || v != "v1" {
		t.Fatalf("Search(k1) = %q, %v; want v1, true", v, ok)
	}
	if v, ok := loaded.Search("k2"); !ok || v != "v2" {
		t.Fatalf("Search(k2) = %q, %v; want v2, true", v, ok)
	}
	if got := loaded.Size(); got != 2 {
		t.Fatalf("Size() = %d, want 2", got)
	}
}

func TestLoadFileMissingFile(t *testing.T) {
	s := skiplist.New(16)
	if err := s.LoadFile(os.TempDir() + "/reactorkv-does-not-exist.db"); err == nil {
		t.Fatal("expected error loading a nonexistent file")
	}
}

func TestConcurrentWritersEachInsertingDistinctKeys(t *testing.T) {
	s := skiplist.New(16)
	writers := 8
	keysPerWriter := 500

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(wid int) {
			defer wg.Done()
			for i := 0; i < keysPerWriter; i++ {
				key := fmt.Sprintf("w%d-k%d", wid, i)
				s.Insert(key, fmt.Sprintf("v%d", i))
			}
		}(w)
	}
	wg.Wait()

	if got := s.Size(); got != writers*keysPerWriter {
		t.Fatalf("Size() = %d, want %d", got, writers*keysPerWriter)
	}
	for w := 0; w < writers; w++ {
		for i := 0; i < keysPerWriter; i++ {
			key := fmt.Sprintf("w%d-k%d", w, i)
			want := fmt.Sprintf("v%d", i)
			if got, ok := s.Search(key); !ok || got != want {
				t.Fatalf("Search(%q) = %q, %v; want %q, true", key, got, ok, want)
			}
		}
	}
}

func TestConcurrentReadersAndWritersOverDisjointKeySpaces(t *testing.T) {
	s := skiplist.New(16)
	writers := 4
	readers := 4
	keysPerWriter := 500

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(wid int) {
			defer wg.Done()
			for i := 0; i < keysPerWriter; i++ {
				key := fmt.Sprintf("w%d-k%d", wid, i)
				s.Insert(key, fmt.Sprintf("w%d-v%d", wid, i))
			}
		}(w)
	}

	stop := make(chan struct{})
	var readerWg sync.WaitGroup
	for r := 0; r < readers; r++ {
		readerWg.Add(1)
		go func(rid int) {
			defer readerWg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for w := 0; w < writers; w++ {
					for i := 0; i < keysPerWriter; i += 37 {
						key := fmt.Sprintf("w%d-k%d", w, i)
						if value, ok := s.Search(key); ok {
							want := fmt.Sprintf("w%d-v%d", w, i)
							if value != want {
								t.Errorf("Search(%q) = %q, want %q", key, value, want)
							}
						}
					}
				}
			}
		}(r)
	}

	wg.Wait()
	close(stop)
	readerWg.Wait()

	if got := s.Size(); got != writers*keysPerWriter {
		t.Fatalf("Size() = %d, want %d", got, writers*keysPerWriter)
	}
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
