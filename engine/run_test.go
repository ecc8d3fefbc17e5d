// run_test.go - end-to-end tests for the Run entry point
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
	"testing"
)

func TestRunSingleFileParFile(t *testing.T) {
	assert := newAsserter(t)
	tmp := t.TempDir()

	src := filepath.Join(tmp, "a.bin")
	dst := filepath.Join(tmp, "b.bin")

	srcsum, err := createFile(src, 256*1024+17)
	assert(err == nil, "create %s: %s", src, err)

	cfg := DefaultConfig()
	res, err := Run(&cfg, []string{src}, dst, nil, nil)
	assert(err == nil, "run: %s", err)
	assert(res.OK(), "run: unexpected errors: %v", res.Errors)
	assert(res.Files == 1, "exp 1 file, saw %d", res.Files)

	dstsum, err := fileCksum(dst)
	assert(err == nil, "cksum %s: %s", dst, err)
	assert(byteEq(srcsum, dstsum), "byte mismatch after copy")

	sst, err := os.Stat(src)
	assert(err == nil, "stat src: %s", err)
	dst_, err := os.Stat(dst)
	assert(err == nil, "stat dst: %s", err)
	assert(sst.Mode() == dst_.Mode(), "mode mismatch: src %v dst %v", sst.Mode(), dst_.Mode())
}

func TestRunSingleFileParBlock(t *testing.T) {
	assert := newAsserter(t)
	tmp := t.TempDir()

	src := filepath.Join(tmp, "a.bin")
	dst := filepath.Join(tmp, "b.bin")

	srcsum, err := createFile(src, 1024*1024+999)
	assert(err == nil, "create %s: %s", src, err)

	cfg := DefaultConfig()
	cfg.Driver = DriverParBlock
	cfg.BlockSize = 64 * 1024

	res, err := Run(&cfg, []string{src}, dst, nil, nil)
	assert(err == nil, "run: %s", err)
	assert(res.OK(), "run: unexpected errors: %v", res.Errors)

	dstsum, err := fileCksum(dst)
	assert(err == nil, "cksum %s: %s", dst, err)
	assert(byteEq(srcsum, dstsum), "byte mismatch after block-parallel copy")
}

func TestRunRecursiveTree(t *testing.T) {
	assert := newAsserter(t)
	tmp := t.TempDir()

	srcRoot := filepath.Join(tmp, "src")
	dstRoot := filepath.Join(tmp, "dst")

	files := map[string][]byte{}
	for _, rel := range []string{"a", "sub/b", "sub/deep/c"} {
		p := filepath.Join(srcRoot, rel)
		sum, err := createFile(p, 1024+len(rel))
		assert(err == nil, "create %s: %s", p, err)
		files[rel] = sum
	}

	cfg := DefaultConfig()
	cfg.Recursive = true

	res, err := Run(&cfg, []string{srcRoot}, dstRoot, nil, nil)
	assert(err == nil, "run: %s", err)
	assert(res.OK(), "run: unexpected errors: %v", res.Errors)
	assert(res.Files == int64(len(files)), "exp %d files, saw %d", len(files), res.Files)

	for rel, want := range files {
		got, err := fileCksum(filepath.Join(dstRoot, rel))
		assert(err == nil, "cksum %s: %s", rel, err)
		assert(byteEq(want, got), "byte mismatch: %s", rel)
	}
}

func TestRunNoClobberIdempotent(t *testing.T) {
	assert := newAsserter(t)
	tmp := t.TempDir()

	src := filepath.Join(tmp, "a")
	dst := filepath.Join(tmp, "a_copy")

	_, err := createFile(src, 4096)
	assert(err == nil, "create %s: %s", src, err)

	cfg := DefaultConfig()
	cfg.NoClobber = true

	res, err := Run(&cfg, []string{src}, dst, nil, nil)
	assert(err == nil, "first run: %s", err)
	assert(res.Files == 1, "first run: exp 1 file, saw %d", res.Files)

	before, err := fileCksum(dst)
	assert(err == nil, "cksum: %s", err)

	res2, err := Run(&cfg, []string{src}, dst, nil, nil)
	assert(err == nil, "second run: %s", err)
	assert(res2.Bytes == 0, "second run: exp 0 bytes written, saw %d", res2.Bytes)

	after, err := fileCksum(dst)
	assert(err == nil, "cksum: %s", err)
	assert(byteEq(before, after), "no-clobber run altered destination bytes")
}

func TestRunBackupNumbered(t *testing.T) {
	assert := newAsserter(t)
	tmp := t.TempDir()

	src := filepath.Join(tmp, "a")
	dst := filepath.Join(tmp, "out", "a")

	_, err := createFile(src, 512)
	assert(err == nil, "create %s: %s", src, err)

	assert(os.MkdirAll(filepath.Dir(dst), 0755) == nil, "mkdir")
	oldsum, err := createFile(dst, 128)
	assert(err == nil, "create existing dst: %s", err)

	cfg := DefaultConfig()
	cfg.Backup = BackupNumbered

	res, err := Run(&cfg, []string{src}, dst, nil, nil)
	assert(err == nil, "run: %s", err)
	assert(res.OK(), "run: unexpected errors: %v", res.Errors)

	backup := dst + ".~1~"
	backsum, err := fileCksum(backup)
	assert(err == nil, "cksum backup %s: %s", backup, err)
	assert(byteEq(oldsum, backsum), "backup contents changed")

	_, err = os.Stat(dst)
	assert(err == nil, "new dst missing: %s", err)
}

func TestRunSymlink(t *testing.T) {
	assert := newAsserter(t)
	tmp := t.TempDir()

	real := filepath.Join(tmp, "real")
	_, err := createFile(real, 64)
	assert(err == nil, "create %s: %s", real, err)

	link := filepath.Join(tmp, "link")
	assert(os.Symlink("real", link) == nil, "symlink")

	dst := filepath.Join(tmp, "link_copy")
	cfg := DefaultConfig()

	res, err := Run(&cfg, []string{link}, dst, nil, nil)
	assert(err == nil, "run: %s", err)
	assert(res.OK(), "run: unexpected errors: %v", res.Errors)

	target, err := os.Readlink(dst)
	assert(err == nil, "readlink %s: %s", dst, err)
	assert(target == "real", "exp link target 'real', saw %q", target)
}

func TestRunVerifyChecksum(t *testing.T) {
	assert := newAsserter(t)
	tmp := t.TempDir()

	src := filepath.Join(tmp, "a")
	dst := filepath.Join(tmp, "b")
	srcsum, err := createFile(src, 3*1024*1024+7)
	assert(err == nil, "create %s: %s", src, err)

	cfg := DefaultConfig()
	cfg.VerifyChecksum = true

	res, err := Run(&cfg, []string{src}, dst, nil, nil)
	assert(err == nil, "run: %s", err)
	assert(res.OK(), "run: unexpected errors: %v", res.Errors)

	dstsum, err := fileCksum(dst)
	assert(err == nil, "cksum: %s", err)
	assert(byteEq(srcsum, dstsum), "byte mismatch")
}

func TestRunDryRun(t *testing.T) {
	assert := newAsserter(t)
	tmp := t.TempDir()

	srcRoot := filepath.Join(tmp, "src")
	_, err := createFile(filepath.Join(srcRoot, "a"), 100)
	assert(err == nil, "create: %s", err)
	_, err = createFile(filepath.Join(srcRoot, "sub", "b"), 200)
	assert(err == nil, "create: %s", err)

	cfg := DefaultConfig()
	cfg.Recursive = true
	cfg.DryRun = true

	dst := filepath.Join(tmp, "dst")
	res, err := Run(&cfg, []string{srcRoot}, dst, nil, nil)
	assert(err == nil, "dry run: %s", err)
	assert(res.Files == 2, "exp 2 files counted, saw %d", res.Files)

	_, err = os.Stat(dst)
	assert(os.IsNotExist(err), "dry run must not create destination")
}

func TestRunProgressEvents(t *testing.T) {
	assert := newAsserter(t)
	tmp := t.TempDir()

	src := filepath.Join(tmp, "a")
	dst := filepath.Join(tmp, "b")
	_, err := createFile(src, 8192)
	assert(err == nil, "create: %s", err)

	cfg := DefaultConfig()
	sink := make(Sink, 32)

	done := make(chan []ProgressEvent)
	go func() {
		var evs []ProgressEvent
		for ev := range sink {
			evs = append(evs, ev)
		}
		done <- evs
	}()

	res, err := Run(&cfg, []string{src}, dst, sink, nil)
	close(sink)
	evs := <-done

	assert(err == nil, "run: %s", err)
	assert(res.OK(), "run: unexpected errors: %v", res.Errors)

	var sawStart, sawFinish bool
	for _, ev := range evs {
		switch ev.Type {
		case EvStart:
			sawStart = true
		case EvFinish:
			sawFinish = true
		}
	}
	assert(sawStart, "no Start event observed")
	assert(sawFinish, "no Finish event observed")
}

func TestRunCancellation(t *testing.T) {
	assert := newAsserter(t)
	tmp := t.TempDir()

	srcRoot := filepath.Join(tmp, "src")
	for i := 0; i < 20; i++ {
		_, err := createFile(filepath.Join(srcRoot, "f"+string(rune('a'+i))), 1024)
		assert(err == nil, "create: %s", err)
	}

	cfg := DefaultConfig()
	cfg.Recursive = true

	abort := NewCancellation()
	abort.Cancel()

	res, err := Run(&cfg, []string{srcRoot}, filepath.Join(tmp, "dst"), nil, abort)
	assert(err == nil, "run: %s", err)
	assert(len(res.Errors) > 0, "expected Cancelled errors after pre-cancellation")
	for _, e := range res.Errors {
		assert(e.Kind == Cancelled, "exp Cancelled kind, saw %s", e.Kind)
	}
}
