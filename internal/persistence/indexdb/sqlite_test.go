package indexdb

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSQLiteIndex_AggregatesPerMinute(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "traffic.sqlite")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	clock := time.Date(2024, 5, 1, 10, 15, 30, 0, time.UTC)
	s.now = func() time.Time { return clock }

	s.Record("in", "TASK", []byte("12345"))
	s.Record("in", "TASK", []byte("123"))
	s.Record("out", "CHARACTER_PROXIMITY", []byte("1234567890"))
	clock = clock.Add(time.Minute)
	s.Record("in", "", []byte("x"))

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if st := s.Stats(); st.Written != 4 || st.Dropped != 0 {
		t.Fatalf("stats = %+v", st)
	}
	s.Record("in", "TASK", []byte("late"))

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Counts(context.Background(), time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	want := []Count{
		{Minute: "2024-05-01T10:15Z", Dir: "in", Type: "TASK", Count: 2, Bytes: 8},
		{Minute: "2024-05-01T10:15Z", Dir: "out", Type: "CHARACTER_PROXIMITY", Count: 1, Bytes: 10},
		{Minute: "2024-05-01T10:16Z", Dir: "in", Type: "?", Count: 1, Bytes: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("counts mismatch (-want +got):\n%s", diff)
	}

	recent, err := s.Counts(context.Background(), time.Date(2024, 5, 1, 10, 16, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("recent = %+v", recent)
	}
}

func TestSQLiteIndex_DropsWhenQueueFull(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan trafficRow, 1), now: time.Now}
	s.Record("in", "TASK", nil)
	s.Record("in", "TASK", nil)
	st := s.Stats()
	if st.Dropped != 1 || st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestSQLiteIndex_RecordDuringClose(t *testing.T) {
	for round := 0; round < 20; round++ {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "traffic.sqlite"))
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		var wg sync.WaitGroup
		start := make(chan struct{})
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for i := 0; i < 200; i++ {
					s.Record("in", "TASK", []byte("x"))
				}
			}()
		}
		close(start)
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		wg.Wait()
		if st := s.Stats(); st.Written+st.Dropped > 8*200 {
			t.Fatalf("round %d stats = %+v", round, st)
		}
	}
}
