package store

import (
	"sync"
	"testing"
	"time"
)

func TestSetGetRoundTrip(t *testing.T) {
	ks := New()
	ks.Set("foo", []byte("bar"), 0, false)
	v, err := ks.Get("foo")
	if err != nil || string(v) != "bar" {
		t.Fatalf("got %q, %v", v, err)
	}
	if ks.Type("foo") != KindString {
		t.Fatalf("type = %v", ks.Type("foo"))
	}
}

func TestExpiryLazyRemoval(t *testing.T) {
	now := time.Now()
	ks := New()
	ks.WithClock(func() time.Time { return now })
	ks.Set("k", []byte("v"), 10*time.Millisecond, true)
	if !ks.Exists("k") {
		t.Fatal("expected key to exist before expiry")
	}
	now = now.Add(20 * time.Millisecond)
	if ks.Exists("k") {
		t.Fatal("expected key to be expired")
	}
	v, err := ks.Get("k")
	if err != nil || v != nil {
		t.Fatalf("expected nil after expiry, got %q %v", v, err)
	}
}

func TestWrongType(t *testing.T) {
	ks := New()
	ks.Set("k", []byte("v"), 0, false)
	if _, err := ks.Push("k", false, [][]byte{[]byte("x")}); err == nil {
		t.Fatal("expected WRONGTYPE error")
	}
}

func TestListPushPopFIFO(t *testing.T) {
	ks := New()
	for _, v := range []string{"a", "b", "c"} {
		if _, err := ks.Push("L", false, [][]byte{[]byte(v)}); err != nil {
			t.Fatal(err)
		}
	}
	out, err := ks.Range("L", 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "c"}
	for i, w := range want {
		if string(out[i]) != w {
			t.Errorf("index %d: got %q want %q", i, out[i], w)
		}
	}
	popped, _ := ks.Pop("L", true, 2)
	if string(popped[0]) != "a" || string(popped[1]) != "b" {
		t.Fatalf("got %v", popped)
	}
	n, _ := ks.Len("L")
	if n != 1 {
		t.Fatalf("len = %d", n)
	}
}

func TestIncrLinearizable(t *testing.T) {
	ks := New()
	var wg sync.WaitGroup
	const n = 100
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ks.Incr("ctr", 1)
		}()
	}
	wg.Wait()
	v, _ := ks.Get("ctr")
	if string(v) != "100" {
		t.Fatalf("got %q, want 100", v)
	}
}

func TestXAddOrderingAndErrors(t *testing.T) {
	ks := New()
	id, err := ks.XAdd("s", "1-1", []Field{{"k", "v"}}, 0)
	if err != nil || id.String() != "1-1" {
		t.Fatalf("got %v %v", id, err)
	}
	if _, err := ks.XAdd("s", "1-1", []Field{{"k", "v"}}, 0); err == nil {
		t.Fatal("expected equal-or-smaller error")
	}
	id2, err := ks.XAdd("s", "*", []Field{{"k2", "v2"}}, 5000)
	if err != nil {
		t.Fatal(err)
	}
	if !id.Less(id2) {
		t.Fatalf("expected %v < %v", id, id2)
	}
	entries, err := ks.XRange("s", StreamID{}, StreamID{Ms: 1 << 62, Seq: 1 << 62})
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(entries); i++ {
		if !entries[i-1].ID.Less(entries[i].ID) {
			t.Fatalf("entries not strictly increasing at %d", i)
		}
	}
}

func TestXAddRejectsZeroZero(t *testing.T) {
	ks := New()
	if _, err := ks.XAdd("s", "0-0", nil, 0); err == nil {
		t.Fatal("expected 0-0 rejection")
	}
}

func TestZSetRangeAndRank(t *testing.T) {
	ks := New()
	pairs := []struct {
		Score  float64
		Member string
	}{
		{3, "c"}, {1, "a"}, {2, "b"},
	}
	if _, err := ks.ZAdd("z", pairs); err != nil {
		t.Fatal(err)
	}
	members, err := ks.ZRange("z", 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "c"}
	for i, w := range want {
		if members[i] != w {
			t.Fatalf("got %v, want %v", members, want)
		}
	}
	for i, m := range want {
		rank, ok, err := ks.ZRank("z", m)
		if err != nil || !ok || rank != i {
			t.Fatalf("rank(%s) = %d, %v, %v; want %d", m, rank, ok, err, i)
		}
	}
}

func TestKeysGlob(t *testing.T) {
	ks := New()
	ks.Set("foo1", []byte("x"), 0, false)
	ks.Set("foo2", []byte("x"), 0, false)
	ks.Set("bar", []byte("x"), 0, false)
	matches := ks.Keys("foo*")
	if len(matches) != 2 {
		t.Fatalf("got %v", matches)
	}
}
