// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest computes BLAKE3 digests of files and directory trees.
//
// The deployment ledger records a digest of each built artifact so a
// run's output can be identified after the fact, and the rotator uses
// tree digests to verify a copy-then-delete rotation fallback before
// deleting the only remaining copy of the previous production tree.
//
// Digests use BLAKE3 keyed mode with fixed domain keys, so a file
// digest can never collide with a tree digest of the same bytes.
package digest

import (
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 digest.
type Digest [32]byte

// String returns the canonical lowercase hex form.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Domain separation keys: the ASCII domain name zero-padded to the 32
// bytes BLAKE3 keyed mode requires. Changing them invalidates every
// recorded digest.
var (
	fileDomainKey = [32]byte{
		'r', 'q', 'c', 'o', 'r', 'e', '.', 'd', 'e', 'p', 'l', 'o', 'y', '.',
		'f', 'i', 'l', 'e',
	}

	treeDomainKey = [32]byte{
		'r', 'q', 'c', 'o', 'r', 'e', '.', 'd', 'e', 'p', 'l', 'o', 'y', '.',
		't', 'r', 'e', 'e',
	}
)

// File computes the file-domain digest of the file's contents.
func File(path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("digesting %s: %w", path, err)
	}
	defer file.Close()

	hasher := newKeyed(fileDomainKey)
	if _, err := io.Copy(hasher, file); err != nil {
		return Digest{}, fmt.Errorf("digesting %s: %w", path, err)
	}
	return sum(hasher), nil
}

// Tree computes the tree-domain digest of a directory. The digest
// covers every regular file's relative path, mode bits, and contents,
// and every symlink's relative path and target, in sorted path order.
// Two trees with identical structure and contents produce the same
// digest regardless of copy order or timestamps.
func Tree(root string) (Digest, error) {
	type entry struct {
		relPath string
		mode    fs.FileMode
		target  string // symlink target, empty for regular files
		content Digest // file-domain digest, zero for symlinks
	}

	var entries []entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		e := entry{relPath: relPath, mode: info.Mode()}
		if info.Mode()&fs.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			e.target = target
		} else {
			content, err := File(path)
			if err != nil {
				return err
			}
			e.content = content
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return Digest{}, fmt.Errorf("digesting tree %s: %w", root, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].relPath < entries[j].relPath
	})

	hasher := newKeyed(treeDomainKey)
	for _, e := range entries {
		// NUL-separated records: paths cannot contain NUL, so the
		// encoding is unambiguous.
		hasher.Write([]byte(e.relPath))
		hasher.Write([]byte{0})
		hasher.Write([]byte(strconv.FormatUint(uint64(e.mode), 8)))
		hasher.Write([]byte{0})
		hasher.Write([]byte(e.target))
		hasher.Write([]byte{0})
		hasher.Write(e.content[:])
	}
	return sum(hasher), nil
}

func newKeyed(key [32]byte) *blake3.Hasher {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		// NewKeyed only fails on wrong key length, which the fixed
		// array type rules out.
		panic("digest: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}

func sum(hasher *blake3.Hasher) Digest {
	var d Digest
	copy(d[:], hasher.Sum(nil))
	return d
}
