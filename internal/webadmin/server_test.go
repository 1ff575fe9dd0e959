package webadmin

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"redikv/internal/replication"
	"redikv/internal/store"
)

func TestStatusEndpointReportsKeyspace(t *testing.T) {
	ks := store.New()
	ks.Set("a", []byte("1"), 0, false)
	ks.Set("b", []byte("2"), 0, false)

	srv, err := New("127.0.0.1:0", ks, nil, replication.RoleMaster)
	if err != nil {
		t.Fatal(err)
	}
	go srv.Start()

	var addr string
	for i := 0; i < 100; i++ {
		if a := srv.Addr(); a != "127.0.0.1:0" {
			addr = a
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if addr == "" {
		t.Fatal("webadmin server never bound")
	}

	resp, err := http.Get("http://" + addr + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Keys != 2 {
		t.Fatalf("keys = %d, want 2", st.Keys)
	}
	if st.Role != "master" {
		t.Fatalf("role = %q", st.Role)
	}
}

func TestCompressedSnapshotDecompresses(t *testing.T) {
	ks := store.New()
	ks.Set("a", []byte("1"), 0, false)

	srv, err := New("127.0.0.1:0", ks, nil, replication.RoleMaster)
	if err != nil {
		t.Fatal(err)
	}
	go srv.Start()

	var addr string
	for i := 0; i < 100; i++ {
		if a := srv.Addr(); a != "127.0.0.1:0" {
			addr = a
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if addr == "" {
		t.Fatal("webadmin server never bound")
	}

	resp, err := http.Get("http://" + addr + "/api/snapshot.json.zst")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	dec, err := zstd.NewReader(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	var st Status
	if err := json.NewDecoder(dec.IOReadCloser()).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Keys != 1 {
		t.Fatalf("keys = %d, want 1", st.Keys)
	}
}
