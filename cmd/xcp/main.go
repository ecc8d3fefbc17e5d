// main.go - xcp: an extended file-copy engine with a cp-like CLI
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

package main

import (
	"fmt"
	"os"
	"path"

	"github.com/opencoff/go-logger"
	flag "github.com/opencoff/pflag"
	"github.com/opencoff/xcp/engine"
)

var Z = path.Base(os.Args[0])

func main() {
	var help bool
	var recursive, noTargetDir, glob, noClobber bool
	var fsyncFlag, gitignore, noPerms, noTimestamps, noProgress, verify bool
	var workers int
	var blockSize SizeValue
	var driverName, reflinkName, backupName string
	var verbosity int

	blockSize = SizeValue(4 << 20)

	fs := flag.NewFlagSet(Z, flag.ExitOnError)

	fs.BoolVarP(&help, "help", "h", false, "Show help and exit")
	fs.BoolVarP(&recursive, "recursive", "r", false, "Recursively copy directories")
	fs.BoolVarP(&noTargetDir, "no-target-directory", "T", false, "Treat target as a file even if it is a directory")
	fs.BoolVarP(&glob, "glob", "g", false, "Expand source globs")
	fs.BoolVarP(&noClobber, "no-clobber", "n", false, "Do not overwrite an existing destination")
	fs.CountVarP(&verbosity, "verbose", "v", "Raise log verbosity (repeatable)")
	fs.IntVarP(&workers, "workers", "w", 0, "Use `N` worker threads (0 = hardware parallelism)")
	fs.VarP(&blockSize, "block-size", "", "Use `S` as the block size for --driver=parblock")
	fs.StringVar(&driverName, "driver", "parfile", "Select copy `driver`: parfile|parblock")
	fs.StringVar(&reflinkName, "reflink", "auto", "Reflink `policy`: auto|always|never")
	fs.StringVar(&backupName, "backup", "none", "Backup `policy`: none|numbered|auto")
	fs.BoolVar(&fsyncFlag, "fsync", false, "Fsync each destination after writing")
	fs.BoolVar(&gitignore, "gitignore", false, "Honour .gitignore files while walking")
	fs.BoolVar(&noPerms, "no-perms", false, "Do not copy permissions")
	fs.BoolVar(&noTimestamps, "no-timestamps", false, "Do not copy timestamps")
	fs.BoolVar(&noProgress, "no-progress", false, "Suppress progress output")
	fs.BoolVar(&verify, "verify-checksum", false, "Verify a checksum of every copied file")

	fs.SetOutput(os.Stdout)

	if err := fs.Parse(os.Args[1:]); err != nil {
		Die("%s", err)
	}

	if help {
		usage(fs)
	}

	args := fs.Args()
	if len(args) < 2 {
		Die("Usage: %s [options] source... target", Z)
	}

	sources := args[:len(args)-1]
	target := args[len(args)-1]

	cfg := engine.DefaultConfig()
	cfg.Recursive = recursive
	cfg.NoTargetDirectory = noTargetDir
	cfg.Glob = glob
	cfg.NoClobber = noClobber
	cfg.Workers = workers
	cfg.BlockSize = int64(blockSize)
	cfg.Fsync = fsyncFlag
	cfg.Gitignore = gitignore
	cfg.NoPerms = noPerms
	cfg.NoTimestamps = noTimestamps
	cfg.NoProgress = noProgress
	cfg.VerifyChecksum = verify

	switch driverName {
	case "parfile":
		cfg.Driver = engine.DriverParFile
	case "parblock":
		cfg.Driver = engine.DriverParBlock
	default:
		Die("unknown --driver %q (want parfile or parblock)", driverName)
	}

	switch reflinkName {
	case "auto":
		cfg.Reflink = engine.ReflinkAuto
	case "always":
		cfg.Reflink = engine.ReflinkAlways
	case "never":
		cfg.Reflink = engine.ReflinkNever
	default:
		Die("unknown --reflink %q (want auto, always or never)", reflinkName)
	}

	switch backupName {
	case "none":
		cfg.Backup = engine.BackupNone
	case "numbered":
		cfg.Backup = engine.BackupNumbered
	case "auto":
		cfg.Backup = engine.BackupAuto
	default:
		Die("unknown --backup %q (want none, numbered or auto)", backupName)
	}

	log, err := logger.NewLogger(os.Stderr, logVerbosity(verbosity), Z, logger.Ldate|logger.Ltime)
	if err != nil {
		Die("can't setup logger: %s", err)
	}

	var sink engine.Sink
	done := make(chan struct{})
	if !noProgress {
		sink = make(engine.Sink, 16)
		go func() {
			renderProgress(sink, log)
			close(done)
		}()
	}

	res, err := engine.Run(&cfg, sources, target, sink, nil)
	if sink != nil {
		close(sink)
		<-done
	}

	if err != nil {
		log.Err("%s", err)
		os.Exit(2)
	}

	for _, w := range res.Warnings {
		log.Warn("%s", w)
	}
	if !res.OK() {
		for _, e := range res.Errors {
			log.Err("%s", e)
		}
		os.Exit(1)
	}

	log.Info("%d file(s), %d dir(s), %d byte(s) copied", res.Files, res.Dirs, res.Bytes)
}

func logVerbosity(v int) logger.Priority {
	switch {
	case v >= 2:
		return logger.LOG_DEBUG
	case v == 1:
		return logger.LOG_INFO
	default:
		return logger.LOG_WARNING
	}
}

// renderProgress drains the progress sink and prints a terse
// one-line-per-event status to stderr; a real terminal renderer lives
// outside the engine's scope (spec.md §1 "out of scope") and this is
// its null-ish stand-in for the standalone binary.
func renderProgress(sink engine.Sink, log logger.Logger) {
	for ev := range sink {
		switch ev.Type {
		case engine.EvStart:
			log.Debug("start  %s (%d bytes)", ev.Path, ev.Size)
		case engine.EvFinish:
			log.Debug("finish %s", ev.Path)
		case engine.EvError:
			log.Warn("error  %s: %s (%s)", ev.Path, ev.Err, ev.Kind)
		}
	}
}

func usage(fs *flag.FlagSet) {
	fmt.Printf("%s - extended file copy engine\n\n", Z)
	fmt.Printf("Usage: %s [options] source... target\n\n", Z)
	fs.PrintDefaults()
	os.Exit(0)
}

// Die prints a formatted error to stderr and exits with status 2
// (spec.md §6.2: "2 fatal configuration or initialisation error").
func Die(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", Z, fmt.Sprintf(format, args...))
	os.Exit(2)
}
