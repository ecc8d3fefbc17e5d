// coverage_test.go - sparse, hardlink, and filter-path coverage
//
// (c) 2024- Sudhi Herle <sudhi@herle.net>
//
// Licensing Terms: GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package engine

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func blockCount(t *testing.T, path string) int64 {
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %s", path, err)
	}
	sys, ok := st.Sys().(*syscall.Stat_t)
	if !ok {
		t.Fatalf("stat %s: no syscall.Stat_t available", path)
	}
	return sys.Blocks
}

func TestRunSparseHolePreserved(t *testing.T) {
	assert := newAsserter(t)
	tmp := t.TempDir()

	src := filepath.Join(tmp, "sparse.bin")
	dst := filepath.Join(tmp, "sparse_copy.bin")

	const size = 8 * 1024 * 1024
	f, err := os.Create(src)
	assert(err == nil, "create %s: %s", src, err)

	assert(f.Truncate(size) == nil, "truncate %s", src)
	tail := []byte("end-of-file-marker")
	_, err = f.WriteAt(tail, size-int64(len(tail)))
	assert(err == nil, "writeat %s: %s", src, err)
	assert(f.Close() == nil, "close %s", src)

	cfg := DefaultConfig()
	res, err := Run(&cfg, []string{src}, dst, nil, nil)
	assert(err == nil, "run: %s", err)
	assert(res.OK(), "run: unexpected errors: %v", res.Errors)

	dstSt, err := os.Stat(dst)
	assert(err == nil, "stat %s: %s", dst, err)
	assert(dstSt.Size() == size, "size mismatch: exp %d, got %d", size, dstSt.Size())

	// A fully-materialized 8MiB file uses ~16384 512-byte blocks; a
	// copy that actually preserved the hole (instead of writing zeros
	// for it) should use a small fraction of that.
	dstBlocks := blockCount(t, dst)
	maxSparseBlocks := int64(size / 512 / 4)
	assert(dstBlocks < maxSparseBlocks, "destination not sparse: %d blocks for an %d byte file", dstBlocks, size)

	want, err := os.ReadFile(src)
	assert(err == nil, "read src: %s", err)
	got, err := os.ReadFile(dst)
	assert(err == nil, "read dst: %s", err)
	assert(byteEq(want, got), "content mismatch after sparse copy")
}

func TestRunHardlinkPreserved(t *testing.T) {
	assert := newAsserter(t)
	tmp := t.TempDir()

	srcRoot := filepath.Join(tmp, "src")
	assert(os.MkdirAll(srcRoot, 0755) == nil, "mkdir %s", srcRoot)

	a := filepath.Join(srcRoot, "a")
	b := filepath.Join(srcRoot, "b")
	sum, err := createFile(a, 4096)
	assert(err == nil, "create %s: %s", a, err)
	assert(os.Link(a, b) == nil, "link %s -> %s", b, a)

	cfg := DefaultConfig()
	cfg.Recursive = true
	dstRoot := filepath.Join(tmp, "dst")

	res, err := Run(&cfg, []string{srcRoot}, dstRoot, nil, nil)
	assert(err == nil, "run: %s", err)
	assert(res.OK(), "run: unexpected errors: %v", res.Errors)

	da := filepath.Join(dstRoot, "a")
	db := filepath.Join(dstRoot, "b")

	sta, err := os.Stat(da)
	assert(err == nil, "stat %s: %s", da, err)
	stb, err := os.Stat(db)
	assert(err == nil, "stat %s: %s", db, err)
	assert(os.SameFile(sta, stb), "a and b should remain hardlinked in the destination")

	gotb, err := fileCksum(db)
	assert(err == nil, "cksum %s: %s", db, err)
	assert(byteEq(sum, gotb), "hardlinked copy content mismatch")
}

func TestRunGitignoreFiltering(t *testing.T) {
	assert := newAsserter(t)
	tmp := t.TempDir()

	srcRoot := filepath.Join(tmp, "src")
	_, err := createFile(filepath.Join(srcRoot, "keep.txt"), 16)
	assert(err == nil, "create keep.txt: %s", err)
	_, err = createFile(filepath.Join(srcRoot, "skip.log"), 16)
	assert(err == nil, "create skip.log: %s", err)

	err = os.WriteFile(filepath.Join(srcRoot, ".gitignore"), []byte("*.log\n"), 0644)
	assert(err == nil, "write .gitignore: %s", err)

	cfg := DefaultConfig()
	cfg.Recursive = true
	cfg.Gitignore = true
	dstRoot := filepath.Join(tmp, "dst")

	res, err := Run(&cfg, []string{srcRoot}, dstRoot, nil, nil)
	assert(err == nil, "run: %s", err)
	assert(res.OK(), "run: unexpected errors: %v", res.Errors)

	_, err = os.Stat(filepath.Join(dstRoot, "keep.txt"))
	assert(err == nil, "keep.txt missing from destination: %s", err)

	_, err = os.Stat(filepath.Join(dstRoot, "skip.log"))
	assert(os.IsNotExist(err), "skip.log should have been filtered by .gitignore")
}

func TestRunGlobExpansion(t *testing.T) {
	assert := newAsserter(t)
	tmp := t.TempDir()

	for _, name := range []string{"pkgA", "pkgB"} {
		_, err := createFile(filepath.Join(tmp, name, "file.txt"), 32)
		assert(err == nil, "create %s: %s", name, err)
	}

	cfg := DefaultConfig()
	cfg.Recursive = true
	cfg.Glob = true
	dstRoot := filepath.Join(tmp, "dst")
	pattern := filepath.Join(tmp, "pkg*")

	res, err := Run(&cfg, []string{pattern}, dstRoot, nil, nil)
	assert(err == nil, "run: %s", err)
	assert(res.OK(), "run: unexpected errors: %v", res.Errors)
	assert(res.Files == 2, "exp 2 files via glob expansion, saw %d", res.Files)

	for _, name := range []string{"pkgA", "pkgB"} {
		p := filepath.Join(dstRoot, name, "file.txt")
		_, err := os.Stat(p)
		assert(err == nil, "%s missing from destination", p)
	}
}
