package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestChecksumsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", "include: [tokens.yaml]\n")
	tokens := writeConfig(t, dir, "tokens.yaml", "api:\n  auth:\n    api_key: k\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	res := VerifyIntegrity(cfg)
	if !res.Passed || len(res.Warnings) != 1 {
		t.Fatalf("missing manifest should only warn: %+v", res)
	}

	path, err := WriteChecksums(cfg)
	if err != nil {
		t.Fatalf("WriteChecksums: %v", err)
	}
	if path != filepath.Join(dir, ChecksumFile) {
		t.Errorf("manifest path = %q", path)
	}
	info, err := os.Stat(path)
	if err != nil || info.Mode().Perm() != 0o600 {
		t.Fatalf("manifest perms: %v %v", info, err)
	}

	if res := VerifyIntegrity(cfg); !res.Passed || len(res.Errors) != 0 || len(res.Warnings) != 0 {
		t.Fatalf("fresh manifest should verify: %+v", res)
	}

	if err := os.WriteFile(tokens, []byte("api:\n  auth:\n    api_key: stolen\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res = VerifyIntegrity(cfg)
	if res.Passed || len(res.Errors) != 1 {
		t.Fatalf("tampered file should fail: %+v", res)
	}
}

func TestComputeBlake3Hash(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "x", "hello")
	h, err := ComputeBlake3Hash(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != 64 {
		t.Errorf("hash length = %d", len(h))
	}
	if _, err := ComputeBlake3Hash(path + ".missing"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestVerifyIntegrityDefaults(t *testing.T) {
	res := VerifyIntegrity(Defaults())
	if !res.Passed || len(res.Warnings) != 1 {
		t.Fatalf("defaults should pass with a warning: %+v", res)
	}
}
