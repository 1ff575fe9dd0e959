package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultThenFlagsOverride(t *testing.T) {
	cfg, err := ParseFlags(Default(), []string{"-port", "7000", "-dir", "/tmp/x"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 7000 || cfg.Dir != "/tmp/x" {
		t.Fatalf("got %+v", cfg)
	}
}

func TestReplicaOfParsesHostAndPort(t *testing.T) {
	cfg, err := ParseFlags(Default(), []string{"-replicaof", "10.0.0.1", "6380"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ReplicaOfHost != "10.0.0.1" || cfg.ReplicaOfPort != 6380 {
		t.Fatalf("got %+v", cfg)
	}
	if !cfg.IsReplica() {
		t.Fatal("expected IsReplica true")
	}
}

func TestYAMLFileMerge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "redikv.yaml")
	if err := os.WriteFile(path, []byte("port: 7001\nlogLevel: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Default()
	if err := LoadYAMLFile(&cfg, path); err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 7001 || cfg.LogLevel != "debug" {
		t.Fatalf("got %+v", cfg)
	}
	if cfg.DBFilename != "dump.rdb" {
		t.Fatalf("expected default dbfilename preserved, got %q", cfg.DBFilename)
	}
}
