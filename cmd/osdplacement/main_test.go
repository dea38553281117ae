package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTree(t *testing.T) string {
	t.Helper()

	mountPoint := t.TempDir()

	for path, size := range map[string]int{"data/a/1/f": 5, "data/a/2/f": 3} {
		fullPath := filepath.Join(mountPoint, filepath.FromSlash(path))

		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if err := os.WriteFile(fullPath, make([]byte, size), 0644); err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}
	}

	config := "volume: vol\n" +
		"mount_point: " + mountPoint + "\n" +
		"managed_folder: " + filepath.Join(mountPoint, "data") + "\n" +
		"store_path: " + filepath.Join(mountPoint, "store.db") + "\n" +
		"seed: 1\n" +
		"xtfsutil: \"true\"\n" +
		"osds:\n  osd-a: {}\n  osd-b: {}\n"

	if err := os.WriteFile(filepath.Join(mountPoint, "osdplacement.yaml"), []byte(config), 0644); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	return filepath.Join(mountPoint, "osdplacement.yaml")
}

func execute(t *testing.T, args ...string) string {
	t.Helper()

	var out bytes.Buffer

	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("osdplacement %s: expected err to be nil, got %#v", strings.Join(args, " "), err)
	}

	return out.String()
}

func TestCommands(t *testing.T) {
	path := writeTree(t)

	execute(t, "--config", path, "add")
	shown := execute(t, "--config", path, "show")

	for _, folderID := range []string{"vol/data/a/1: 5", "vol/data/a/2: 3"} {
		if !strings.Contains(shown, folderID) {
			t.Fatalf("expected %q in\n%s", folderID, shown)
		}
	}

	execute(t, "--config", path, "add", "b/1")

	if shown := execute(t, "--config", path, "show"); !strings.Contains(shown, "vol/data/b/1: 4") {
		t.Fatalf("expected the new folder with the average size in\n%s", shown)
	}

	execute(t, "--config", path, "rebalance", "--algorithm", "two_step_opt")
	execute(t, "--config", path, "realize", "--strategy", "random")
	execute(t, "--config", path, "remove", "b/1")

	if shown := execute(t, "--config", path, "show"); strings.Contains(shown, "vol/data/b/1") {
		t.Fatalf("expected the removed folder to be gone from\n%s", shown)
	}
}
