// walker.go - turns source roots + target into the operation stream
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
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/opencoff/xcp"
)

// dirNode tracks one destination directory's outstanding descendant
// operations so its FinaliseMetadata can be deferred until every
// descendant operation has completed (spec's "after all descendants"
// rule).
type dirNode struct {
	dst    string
	info   *xcp.Info
	parent *dirNode

	pending atomic.Int64
	done    atomic.Bool
}

// walker holds the state needed to turn a validated source list into
// a pushed Operation stream.
type walker struct {
	cfg  *Config
	hl   *hardlinker
	rep  *reporter
	q    *queue
	caps *capCache

	gitignore gitignore.Matcher
	gitpats   []gitignore.Pattern
}

func newWalker(cfg *Config, q *queue, hl *hardlinker, rep *reporter, caps *capCache) *walker {
	return &walker{cfg: cfg, hl: hl, rep: rep, q: q, caps: caps}
}

// validate checks the walker-level preconditions that must fail fast,
// per spec.md §7 "Initialisation errors ... are fatal and abort
// before any work."
func validate(sources []string, target string) error {
	if len(sources) == 0 {
		return newErr(InvalidPath, "validate", "", target, fmt.Errorf("no sources given"))
	}
	for _, s := range sources {
		if _, err := os.Lstat(s); err != nil {
			return newErr(NotFound, "validate", s, target, err)
		}
	}

	parent := filepath.Dir(target)
	if st, err := os.Stat(parent); err != nil {
		return newErr(InvalidPath, "validate", "", target, fmt.Errorf("target parent %s: %w", parent, err))
	} else if !st.IsDir() {
		return newErr(InvalidPath, "validate", "", target, fmt.Errorf("target parent %s is not a directory", parent))
	}
	return nil
}

// expand applies glob expansion to the raw source list when enabled.
func expand(cfg *Config, sources []string) ([]string, error) {
	if !cfg.Glob {
		return sources, nil
	}

	var out []string
	for _, s := range sources {
		matches, err := doublestar.FilepathGlob(s)
		if err != nil {
			return nil, newErr(InvalidPath, "glob", s, "", err)
		}
		if len(matches) == 0 {
			out = append(out, s)
			continue
		}
		out = append(out, matches...)
	}
	return out, nil
}

// run walks 'sources' into 'target' and pushes the full Operation
// stream onto w.q, closing the queue with the End sentinel when
// done. It returns the first walker-level (not per-entry) error.
func (w *walker) run(sources []string, target string) error {
	defer w.q.closeAfterEnd()

	sources, err := expand(w.cfg, sources)
	if err != nil {
		return err
	}

	targetIsDir := false
	if st, err := os.Stat(target); err == nil {
		targetIsDir = st.IsDir()
	}
	singleSource := len(sources) == 1 && !(targetIsDir && !w.cfg.NoTargetDirectory)

	for _, src := range sources {
		dst := target
		if !singleSource {
			dst = filepath.Join(target, filepath.Base(strings.TrimSuffix(src, "/")))
		}
		if err := w.walkOne(src, dst, nil); err != nil {
			return err
		}
	}

	return nil
}

// walkOne traverses a single source root (file or directory) into dst.
func (w *walker) walkOne(src, dst string, parent *dirNode) error {
	fi, err := xcp.Lstat(src)
	if err != nil {
		w.rep.fail(src, NotFound, err)
		return nil
	}

	return w.walkEntry(fi, dst, parent)
}

func (w *walker) walkEntry(fi *xcp.Info, dst string, parent *dirNode) error {
	if w.isIgnored(fi) {
		return nil
	}

	switch {
	case fi.IsDir():
		return w.walkDir(fi, dst, parent)
	default:
		w.copyLeaf(fi, dst, parent)
		return nil
	}
}

func (w *walker) walkDir(fi *xcp.Info, dst string, parent *dirNode) error {
	if !w.cfg.Recursive {
		w.rep.fail(fi.Path(), InvalidPath, fmt.Errorf("%s is a directory (use -r)", fi.Path()))
		return nil
	}

	node := &dirNode{dst: dst, info: fi, parent: parent}
	if parent != nil {
		parent.pending.Add(1)
	}

	if !w.cfg.DryRun {
		if err := os.MkdirAll(dst, 0700|fi.Mode().Perm()); err != nil {
			w.rep.fail(fi.Path(), IoError, err)
			return nil
		}
	}
	w.q.push(Operation{Kind: OpMakeDir, Src: fi.Path(), Dst: dst, Mode: fi.Mode(), Info: fi})

	w.loadGitignore(fi.Path())

	names, err := readDirNames(fi.Path())
	if err != nil {
		return newErr(WalkerError, "readdir", fi.Path(), dst, err)
	}
	sort.Strings(names)

	for _, nm := range names {
		childSrc := filepath.Join(fi.Path(), nm)
		childDst := filepath.Join(dst, nm)

		cfi, err := xcp.Lstat(childSrc)
		if err != nil {
			w.rep.fail(childSrc, NotFound, err)
			continue
		}
		if cfi.IsDir() {
			if err := w.walkEntry(cfi, childDst, node); err != nil {
				return err
			}
			continue
		}

		node.pending.Add(1)
		w.copyLeaf(cfi, childDst, node)
	}

	node.done.Store(true)
	w.maybeFinaliseDir(node)
	return nil
}

// copyLeaf handles a regular file, symlink, device, fifo, or socket.
func (w *walker) copyLeaf(fi *xcp.Info, dst string, parent *dirNode) {
	if w.isIgnored(fi) {
		w.childDone(parent)
		return
	}

	if w.cfg.NoClobber {
		if _, err := os.Lstat(dst); err == nil {
			w.childDone(parent)
			return
		}
	} else if w.cfg.Backup != BackupNone {
		if _, err := os.Lstat(dst); err == nil {
			if err := w.backup(dst); err != nil {
				w.rep.fail(dst, IoError, err)
				w.childDone(parent)
				return
			}
		}
	}

	onDone := func() { w.childDone(parent) }

	switch fi.Kind() {
	case xcp.KindRegular:
		if orig, islink := w.hl.track(fi, dst); islink {
			w.q.push(Operation{Kind: OpMakeHardlink, Src: fi.Path(), Dst: dst, Target: orig, Info: fi, onDone: onDone})
			return
		}
		w.q.push(Operation{Kind: OpCopyFile, Src: fi.Path(), Dst: dst, Info: fi, onDone: onDone})

	case xcp.KindSymlink:
		target, err := os.Readlink(fi.Path())
		if err != nil {
			w.rep.fail(fi.Path(), IoError, err)
			onDone()
			return
		}
		w.q.push(Operation{Kind: OpMakeSymlink, Src: fi.Path(), Dst: dst, Target: target, Info: fi, onDone: onDone})

	default:
		// fifo, socket, block/char device: all go through mknod(2).
		w.q.push(Operation{Kind: OpMakeSpecial, Src: fi.Path(), Dst: dst, Info: fi, onDone: onDone})
	}
}

// childDone bubbles a completed descendant operation up to 'node',
// pushing node's own FinaliseMetadata once every discovered child has
// completed and no more children are forthcoming.
func (w *walker) childDone(node *dirNode) {
	if node == nil {
		return
	}
	if node.pending.Add(-1) == 0 && node.done.Load() {
		w.maybeFinaliseDir(node)
	}
}

func (w *walker) maybeFinaliseDir(node *dirNode) {
	if node.pending.Load() != 0 || !node.done.Load() {
		return
	}
	parent := node.parent
	w.q.push(Operation{
		Kind: OpFinaliseMetadata,
		Src:  node.info.Path(),
		Dst:  node.dst,
		Info: node.info,
		onDone: func() {
			w.childDone(parent)
		},
	})
}

// backup renames an existing destination to name.~N~ using the
// smallest free N >= 1.
func (w *walker) backup(dst string) error {
	for n := 1; ; n++ {
		cand := fmt.Sprintf("%s.~%d~", dst, n)
		if _, err := os.Lstat(cand); os.IsNotExist(err) {
			return os.Rename(dst, cand)
		}
	}
}

func (w *walker) isIgnored(fi *xcp.Info) bool {
	if w.gitignore == nil {
		return false
	}
	parts := strings.Split(strings.TrimPrefix(fi.Path(), string(filepath.Separator)), string(filepath.Separator))
	return w.gitignore.Match(parts, fi.IsDir())
}

// loadGitignore reads a .gitignore in 'dir' (if gitignore filtering is
// enabled and the file exists) and merges its patterns into the
// matcher used for the rest of this run.
func (w *walker) loadGitignore(dir string) {
	if !w.cfg.Gitignore {
		return
	}

	path := filepath.Join(dir, ".gitignore")
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	var patterns []gitignore.Pattern
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	if len(patterns) > 0 {
		w.gitpats = append(w.gitpats, patterns...)
		w.gitignore = gitignore.NewMatcher(w.gitpats)
	}
}

func readDirNames(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, newErr(IoError, "open", dir, "", err)
	}
	defer f.Close()
	return f.Readdirnames(-1)
}
