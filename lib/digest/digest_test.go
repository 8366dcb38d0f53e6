// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestFileDeterministic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a"), "service binary bytes")
	writeFile(t, filepath.Join(dir, "b"), "service binary bytes")
	writeFile(t, filepath.Join(dir, "c"), "different bytes")

	first, err := File(filepath.Join(dir, "a"))
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	second, err := File(filepath.Join(dir, "b"))
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	other, err := File(filepath.Join(dir, "c"))
	if err != nil {
		t.Fatalf("File: %v", err)
	}

	if first != second {
		t.Error("identical contents produced different digests")
	}
	if first == other {
		t.Error("different contents produced the same digest")
	}
	if len(first.String()) != 64 {
		t.Errorf("String() = %q, want 64 hex characters", first.String())
	}
}

func TestFileMissing(t *testing.T) {
	t.Parallel()

	if _, err := File(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("File of missing path succeeded, want error")
	}
}

func TestTreeMatchesCopiedTree(t *testing.T) {
	t.Parallel()

	original := t.TempDir()
	writeFile(t, filepath.Join(original, "src", "main.rs"), "fn main() {}")
	writeFile(t, filepath.Join(original, "target", "release", "rqcoresrv"), "\x7fELF...")
	if err := os.Symlink("src/main.rs", filepath.Join(original, "entry")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	// Replicate the tree the way the rotator's copy fallback does.
	replica := t.TempDir()
	writeFile(t, filepath.Join(replica, "target", "release", "rqcoresrv"), "\x7fELF...")
	writeFile(t, filepath.Join(replica, "src", "main.rs"), "fn main() {}")
	if err := os.Symlink("src/main.rs", filepath.Join(replica, "entry")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	first, err := Tree(original)
	if err != nil {
		t.Fatalf("Tree(original): %v", err)
	}
	second, err := Tree(replica)
	if err != nil {
		t.Fatalf("Tree(replica): %v", err)
	}
	if first != second {
		t.Error("equivalent trees produced different digests")
	}
}

func TestTreeDetectsDifferences(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	writeFile(t, filepath.Join(base, "main.rs"), "fn main() {}")
	baseDigest, err := Tree(base)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}

	tests := []struct {
		name  string
		build func(t *testing.T, root string)
	}{
		{"changed content", func(t *testing.T, root string) {
			writeFile(t, filepath.Join(root, "main.rs"), "fn main() { panic!() }")
		}},
		{"renamed file", func(t *testing.T, root string) {
			writeFile(t, filepath.Join(root, "other.rs"), "fn main() {}")
		}},
		{"extra file", func(t *testing.T, root string) {
			writeFile(t, filepath.Join(root, "main.rs"), "fn main() {}")
			writeFile(t, filepath.Join(root, "extra"), "x")
		}},
		{"different mode", func(t *testing.T, root string) {
			writeFile(t, filepath.Join(root, "main.rs"), "fn main() {}")
			if err := os.Chmod(filepath.Join(root, "main.rs"), 0o755); err != nil {
				t.Fatalf("chmod: %v", err)
			}
		}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			root := t.TempDir()
			test.build(t, root)
			got, err := Tree(root)
			if err != nil {
				t.Fatalf("Tree: %v", err)
			}
			if got == baseDigest {
				t.Error("modified tree produced the base digest")
			}
		})
	}
}

func TestFileAndTreeDomainsDiffer(t *testing.T) {
	t.Parallel()

	// An empty tree and an empty file hash different domains, so even
	// degenerate inputs cannot collide across File and Tree.
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	writeFile(t, empty, "")

	fileDigest, err := File(empty)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	treeDigest, err := Tree(t.TempDir())
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if fileDigest == treeDigest {
		t.Error("file and tree domains produced the same digest")
	}
}
