package backend

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/IshaanNene/sitesearch/internal/analysis"
	"github.com/IshaanNene/sitesearch/internal/index"
	"github.com/IshaanNene/sitesearch/internal/index/boltindex"
	"github.com/IshaanNene/sitesearch/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var kinds = []string{Inverted, Bleve}

func doc(url, title, text string) *types.Document {
	return analysis.NewDocument(&types.Page{URL: url, Title: title, Text: text})
}

func openIndex(t *testing.T, dir, kind string) *Opened {
	t.Helper()
	opened, err := Open(dir, kind, testLogger)
	if err != nil {
		t.Fatalf("Open(%s): %v", kind, err)
	}
	return opened
}

func mustCommit(t *testing.T, idx index.Index, docs ...*types.Document) {
	t.Helper()
	for _, d := range docs {
		if err := idx.AddDocument(d); err != nil {
			t.Fatalf("AddDocument(%s): %v", d.URL, err)
		}
	}
	if err := idx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestOpenFresh(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "idx")
			opened := openIndex(t, dir, kind)
			defer opened.Index.Close()

			if opened.State != StateCreated {
				t.Errorf("state = %s, want created", opened.State)
			}
			if n, err := opened.Index.Count(); err != nil || n != 0 {
				t.Errorf("Count = %d, %v", n, err)
			}
		})
	}
}

func TestAddAndQuery(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			opened := openIndex(t, t.TempDir(), kind)
			idx := opened.Index
			defer idx.Close()

			mustCommit(t, idx,
				doc("http://s/a", "Python Guide", "python is great, python is fun"),
				doc("http://s/b", "Web", "web programming with python"),
			)

			post, err := idx.Postings("python")
			if err != nil {
				t.Fatalf("Postings: %v", err)
			}
			want := map[string]int{"http://s/a": 3, "http://s/b": 1}
			if !reflect.DeepEqual(post, want) {
				t.Errorf("Postings(python) = %v, want %v", post, want)
			}

			fields, err := idx.FieldPostings("python")
			if err != nil {
				t.Fatalf("FieldPostings: %v", err)
			}
			if fields["http://s/a"] != (types.TermFreq{Title: 1, Content: 2}) {
				t.Errorf("field postings a = %+v", fields["http://s/a"])
			}

			empty, err := idx.Postings("absent")
			if err != nil || empty == nil || len(empty) != 0 {
				t.Errorf("Postings(absent) = %v, %v; want empty map", empty, err)
			}

			d, err := idx.Document("http://s/b")
			if err != nil {
				t.Fatalf("Document: %v", err)
			}
			if d.Title != "Web" || d.Text != "web programming with python" {
				t.Errorf("document = %+v", d)
			}

			if _, err := idx.Document("http://s/zzz"); !errors.Is(err, types.ErrNotFound) {
				t.Errorf("unknown document error = %v, want ErrNotFound", err)
			}

			if n, _ := idx.Count(); n != 2 {
				t.Errorf("Count = %d, want 2", n)
			}
		})
	}
}

func TestDuplicateDocument(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			opened := openIndex(t, t.TempDir(), kind)
			idx := opened.Index
			defer idx.Close()

			mustCommit(t, idx, doc("http://s/a", "A", "alpha"))

			err := idx.AddDocument(doc("http://s/a", "A2", "alpha beta"))
			if !errors.Is(err, types.ErrDuplicateDocument) {
				t.Fatalf("re-add committed error = %v, want ErrDuplicateDocument", err)
			}
			if err := idx.Commit(); err != nil {
				t.Fatalf("Commit: %v", err)
			}
			post, _ := idx.Postings("alpha")
			if !reflect.DeepEqual(post, map[string]int{"http://s/a": 1}) {
				t.Errorf("postings changed after rejected add: %v", post)
			}
			if post, _ := idx.Postings("beta"); len(post) != 0 {
				t.Errorf("rejected document leaked term beta: %v", post)
			}

			if err := idx.AddDocument(doc("http://s/b", "B", "b")); err != nil {
				t.Fatal(err)
			}
			if err := idx.AddDocument(doc("http://s/b", "B", "b")); !errors.Is(err, types.ErrDuplicateDocument) {
				t.Errorf("re-add staged error = %v, want ErrDuplicateDocument", err)
			}
			idx.Rollback()
		})
	}
}

func TestUncommittedInvisibleAndRollback(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			dir := t.TempDir()
			opened := openIndex(t, dir, kind)
			idx := opened.Index
			defer idx.Close()

			if err := idx.AddDocument(doc("http://s/a", "A", "pending words")); err != nil {
				t.Fatal(err)
			}
			if _, err := os.Stat(filepath.Join(dir, index.LockFile)); err != nil {
				t.Errorf("write lock should exist while documents are staged: %v", err)
			}
			if post, _ := idx.Postings("pending"); len(post) != 0 {
				t.Errorf("staged document visible to readers: %v", post)
			}

			if err := idx.Rollback(); err != nil {
				t.Fatalf("Rollback: %v", err)
			}
			if _, err := os.Stat(filepath.Join(dir, index.LockFile)); !os.IsNotExist(err) {
				t.Errorf("write lock should be released after rollback")
			}
			if err := idx.Commit(); err != nil {
				t.Fatalf("Commit after rollback: %v", err)
			}
			if n, _ := idx.Count(); n != 0 {
				t.Errorf("Count = %d after rollback, want 0", n)
			}
			// The URL is free again after a rollback.
			if err := idx.AddDocument(doc("http://s/a", "A", "pending words")); err != nil {
				t.Errorf("AddDocument after rollback: %v", err)
			}
			idx.Rollback()
		})
	}
}

func TestPersistRoundTrip(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			dir := t.TempDir()
			first := openIndex(t, dir, kind)
			mustCommit(t, first.Index,
				doc("http://s/a", "Python", "python web"),
				doc("http://s/b", "", "web only"),
			)
			before, _ := first.Index.Postings("web")
			if err := first.Index.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			second := openIndex(t, dir, kind)
			defer second.Index.Close()
			if second.State != StateReused {
				t.Errorf("state = %s, want reused", second.State)
			}
			after, _ := second.Index.Postings("web")
			if !reflect.DeepEqual(before, after) {
				t.Errorf("postings after reload = %v, want %v", after, before)
			}
			if n, _ := second.Index.Count(); n != 2 {
				t.Errorf("Count after reload = %d, want 2", n)
			}
		})
	}
}

func TestStaleLockCleared(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			dir := t.TempDir()
			first := openIndex(t, dir, kind)
			mustCommit(t, first.Index, doc("http://s/a", "A", "kept"))
			first.Index.Close()

			lock := filepath.Join(dir, index.LockFile)
			if err := os.WriteFile(lock, []byte("pid=99999\n"), 0o644); err != nil {
				t.Fatal(err)
			}

			second := openIndex(t, dir, kind)
			defer second.Index.Close()
			if _, err := os.Stat(lock); !os.IsNotExist(err) {
				t.Error("stale lock should be removed on open")
			}
			if second.State != StateReused {
				t.Errorf("state = %s, want reused", second.State)
			}
			if post, _ := second.Index.Postings("kept"); len(post) != 1 {
				t.Errorf("committed data lost: %v", post)
			}
			// A new writer can take the lock.
			if err := second.Index.AddDocument(doc("http://s/b", "B", "new")); err != nil {
				t.Errorf("AddDocument after stale lock: %v", err)
			}
			second.Index.Rollback()
		})
	}
}

func TestLockOnlyDirectoryIsFresh(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, index.LockFile), nil, 0o644); err != nil {
				t.Fatal(err)
			}
			opened := openIndex(t, dir, kind)
			defer opened.Index.Close()
			if opened.State != StateCreated {
				t.Errorf("state = %s, want created", opened.State)
			}
		})
	}
}

func TestCorruptIndexRebuilt(t *testing.T) {
	t.Run("garbage bolt file", func(t *testing.T) {
		dir := t.TempDir()
		garbage := make([]byte, 8192)
		for i := range garbage {
			garbage[i] = 0xAB
		}
		if err := os.WriteFile(filepath.Join(dir, boltindex.FileName), garbage, 0o600); err != nil {
			t.Fatal(err)
		}
		opened := openIndex(t, dir, Inverted)
		defer opened.Index.Close()
		if opened.State != StateRebuilt {
			t.Errorf("state = %s, want rebuilt", opened.State)
		}
		mustCommit(t, opened.Index, doc("http://s/a", "A", "works"))
	})

	t.Run("garbage bleve meta", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.MkdirAll(filepath.Join(dir, "bleve"), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "bleve", "index_meta.json"), []byte("{not json"), 0o644); err != nil {
			t.Fatal(err)
		}
		opened := openIndex(t, dir, Bleve)
		defer opened.Index.Close()
		if opened.State != StateRebuilt {
			t.Errorf("state = %s, want rebuilt", opened.State)
		}
	})

	t.Run("keeps neighbours", func(t *testing.T) {
		dir := t.TempDir()
		notes := filepath.Join(dir, "notes.txt")
		if err := os.WriteFile(notes, []byte("keep me"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, boltindex.FileName), []byte("not a bolt file"), 0o600); err != nil {
			t.Fatal(err)
		}
		opened := openIndex(t, dir, Inverted)
		defer opened.Index.Close()
		if opened.State != StateRebuilt {
			t.Errorf("state = %s, want rebuilt", opened.State)
		}
		if _, err := os.Stat(notes); err != nil {
			t.Errorf("unrelated file removed by rebuild: %v", err)
		}
	})
}

func TestOpenRefusesUnrelatedDirectory(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			dir := t.TempDir()
			thesis := filepath.Join(dir, "thesis.docx")
			if err := os.WriteFile(thesis, []byte("years of work"), 0o644); err != nil {
				t.Fatal(err)
			}

			_, err := Open(dir, kind, testLogger)
			if !errors.Is(err, types.ErrLocationInUse) {
				t.Fatalf("err = %v, want ErrLocationInUse", err)
			}
			if data, err := os.ReadFile(thesis); err != nil || string(data) != "years of work" {
				t.Errorf("unrelated file changed: %q, %v", data, err)
			}
		})
	}
}

func TestOpenRefusesOtherBackend(t *testing.T) {
	for _, kind := range kinds {
		other := Bleve
		if kind == Bleve {
			other = Inverted
		}
		t.Run(kind+"_as_"+other, func(t *testing.T) {
			dir := t.TempDir()
			first := openIndex(t, dir, kind)
			mustCommit(t, first.Index, doc("http://s/a", "A", "kept"))
			first.Index.Close()

			if _, err := Open(dir, other, testLogger); !errors.Is(err, types.ErrLocationInUse) {
				t.Fatalf("Open as %s: err = %v, want ErrLocationInUse", other, err)
			}

			again := openIndex(t, dir, kind)
			defer again.Index.Close()
			if again.State != StateReused {
				t.Errorf("state = %s, want reused", again.State)
			}
			if n, _ := again.Index.Count(); n != 1 {
				t.Errorf("Count = %d, want the committed document kept", n)
			}
		})
	}
}

func TestResetRemovesOnlyOwnFiles(t *testing.T) {
	dir := t.TempDir()
	first := openIndex(t, dir, Inverted)
	mustCommit(t, first.Index, doc("http://s/a", "A", "gone"))
	first.Index.Close()

	notes := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notes, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Reset(dir, Inverted); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, boltindex.FileName)); !os.IsNotExist(err) {
		t.Error("index file should be removed")
	}
	if _, err := os.Stat(notes); err != nil {
		t.Errorf("Reset removed an unrelated file: %v", err)
	}
}

func TestNonASCIITermsAgree(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			opened := openIndex(t, t.TempDir(), kind)
			idx := opened.Index
			defer idx.Close()

			mustCommit(t, idx,
				doc("http://s/a", "Squares", "x² formula"),
				doc("http://s/b", "Plain", "x formula"),
			)
			tests := []struct {
				term string
				want []string
			}{
				{"x", []string{"http://s/b"}},
				{"x²", []string{"http://s/a"}},
				{"formula", []string{"http://s/a", "http://s/b"}},
			}
			for _, tt := range tests {
				post, err := idx.Postings(tt.term)
				if err != nil {
					t.Fatalf("Postings(%q): %v", tt.term, err)
				}
				var got []string
				for u := range post {
					got = append(got, u)
				}
				sort.Strings(got)
				if !reflect.DeepEqual(got, tt.want) {
					t.Errorf("Postings(%q) = %v, want %v", tt.term, got, tt.want)
				}
			}
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(t.TempDir(), "whoosh", testLogger); err == nil {
		t.Error("expected error for unknown backend")
	}
}
