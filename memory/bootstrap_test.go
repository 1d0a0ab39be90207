package memory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBootstrap_EmptyRoot(t *testing.T) {
	f := newTestFS(t)

	created, err := f.Bootstrap()
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if !created {
		t.Fatal("expected bootstrap to write the orientation file")
	}

	entries, _ := os.ReadDir(f.Root())
	if len(entries) != 1 || entries[0].Name() != OrientationFile {
		t.Fatalf("root entries = %v, want only %s", entries, OrientationFile)
	}
	data, _ := os.ReadFile(filepath.Join(f.Root(), OrientationFile))
	if !strings.Contains(string(data), EntitiesDir+"/") {
		t.Errorf("orientation file does not mention %s/", EntitiesDir)
	}
}

func TestBootstrap_Idempotent(t *testing.T) {
	f := newTestFS(t)
	if _, err := f.Bootstrap(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(f.Root(), OrientationFile)
	if err := os.WriteFile(path, []byte("edited by the user"), 0o644); err != nil {
		t.Fatal(err)
	}

	created, err := f.Bootstrap()
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("second bootstrap reported a write")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "edited by the user" {
		t.Errorf("orientation file overwritten: %q", data)
	}
}

func TestBootstrap_NonEmptyRootUntouched(t *testing.T) {
	f := newTestFS(t)
	os.WriteFile(filepath.Join(f.Root(), "existing.md"), []byte("mine"), 0o644)

	created, err := f.Bootstrap()
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("bootstrap wrote into a non-empty root")
	}
	entries, _ := os.ReadDir(f.Root())
	if len(entries) != 1 {
		t.Errorf("root has %d entries, want 1", len(entries))
	}
}
