package subupstream

import "testing"

func TestInMemTrackReportsFirstOnlyOnce(t *testing.T) {
    s := NewInMem()

    first, err := s.Track("ev")
    if err != nil {
        t.Fatalf("Track: %v", err)
    }
    if !first {
        t.Fatalf("expected first Track to report first=true")
    }

    first, err = s.Track("ev")
    if err != nil {
        t.Fatalf("Track: %v", err)
    }
    if first {
        t.Fatalf("expected second Track to report first=false")
    }

    count, err := s.Count("ev")
    if err != nil {
        t.Fatalf("Count: %v", err)
    }
    if count != 2 {
        t.Fatalf("Count = %d, want 2", count)
    }
}

func TestInMemUntrackReportsLastOnlyWhenEmptied(t *testing.T) {
    s := NewInMem()
    _, _ = s.Track("ev")
    _, _ = s.Track("ev")

    last, err := s.Untrack("ev")
    if err != nil {
        t.Fatalf("Untrack: %v", err)
    }
    if last {
        t.Fatalf("expected first Untrack (count 2->1) to report last=false")
    }

    last, err = s.Untrack("ev")
    if err != nil {
        t.Fatalf("Untrack: %v", err)
    }
    if !last {
        t.Fatalf("expected second Untrack (count 1->0) to report last=true")
    }

    count, _ := s.Count("ev")
    if count != 0 {
        t.Fatalf("Count after emptying = %d, want 0", count)
    }
}

func TestInMemUntrackOnUnknownEventIsNoop(t *testing.T) {
    s := NewInMem()
    last, err := s.Untrack("never-tracked")
    if err != nil {
        t.Fatalf("Untrack: %v", err)
    }
    if last {
        t.Fatalf("expected Untrack on unknown event to report last=false")
    }
}

func TestInMemCountOnUnknownEventIsZero(t *testing.T) {
    s := NewInMem()
    count, err := s.Count("never-tracked")
    if err != nil {
        t.Fatalf("Count: %v", err)
    }
    if count != 0 {
        t.Fatalf("Count = %d, want 0", count)
    }
}
