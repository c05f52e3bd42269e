package archiver

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/flowshot-io/dirtar/pkg/logger"
	"github.com/google/uuid"
	"github.com/mholt/archiver/v3"
	"github.com/spf13/afero"
)

var (
	// ErrNotDirectory is returned when the source path exists but is not a directory.
	ErrNotDirectory = errors.New("source is not a directory")

	// ErrDestinationDir is returned when the directory that should hold the archive does not exist.
	ErrDestinationDir = errors.New("destination directory does not exist")
)

type (
	Options struct {
		Logger logger.Logger

		// CompressionLevel is the gzip level from 1 to 9. Zero or -1 selects
		// the gzip default.
		CompressionLevel int

		// SingleThreaded disables parallel gzip compression.
		SingleThreaded bool
	}

	// Archiver writes a directory tree into a gzip-compressed tar file.
	Archiver struct {
		fs               afero.Fs
		logger           logger.Logger
		compressionLevel int
		singleThreaded   bool
	}
)

// New returns an Archiver. A nil opts gives default compression and no logging.
func New(opts *Options) *Archiver {
	if opts == nil {
		opts = &Options{}
	}

	log := opts.Logger
	if log == nil {
		log = logger.NoOp()
	}

	level := opts.CompressionLevel
	if level == 0 {
		level = gzip.DefaultCompression
	}

	return &Archiver{
		fs:               afero.NewOsFs(),
		logger:           log,
		compressionLevel: level,
		singleThreaded:   opts.SingleThreaded,
	}
}

// Archive packs sourceDir into destination. Every entry in the archive is
// rooted at the base name of sourceDir. An existing destination is replaced
// only once the new archive has been completely written; a destination that
// is a symlink is written through.
func (a *Archiver) Archive(sourceDir string, destination string) error {
	source, err := a.resolveSource(sourceDir)
	if err != nil {
		return err
	}

	// A symlinked source is archived as the directory it points to, named
	// after the link.
	walkRoot, err := filepath.EvalSymlinks(source)
	if err != nil {
		return fmt.Errorf("error resolving source directory %s: %w", sourceDir, err)
	}

	destDir := filepath.Dir(destination)
	ok, err := afero.DirExists(a.fs, destDir)
	if err != nil {
		return fmt.Errorf("error checking destination directory %s: %w", destDir, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDestinationDir, destDir)
	}

	target, err := a.resolveDestination(destination)
	if err != nil {
		return err
	}

	fields := map[string]interface{}{
		"source":      source,
		"destination": destination,
		"root":        RootName(source),
	}
	a.logger.Info("Archiving directory", fields)

	tmpPath := filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+"."+uuid.NewString()+".tmp")

	if err := a.write(walkRoot, RootName(source), tmpPath, target); err != nil {
		a.discard(tmpPath)
		a.logger.Error("Error writing archive", map[string]interface{}{
			"destination": destination,
			"error":       err.Error(),
		})
		return fmt.Errorf("error writing archive %s: %w", destination, err)
	}

	if info, err := a.fs.Stat(target); err == nil {
		if err := a.fs.Chmod(tmpPath, info.Mode().Perm()); err != nil {
			a.discard(tmpPath)
			return fmt.Errorf("error copying mode of %s: %w", destination, err)
		}
	}

	if err := a.fs.Rename(tmpPath, target); err != nil {
		a.discard(tmpPath)
		return fmt.Errorf("error moving archive into place at %s: %w", destination, err)
	}

	a.logger.Info("Archive written", fields)
	return nil
}

// write streams the tree under walkRoot into a new tar.gz file at tmpPath,
// naming entries below root. Paths listed in skip are left out.
func (a *Archiver) write(walkRoot string, root string, tmpPath string, skip ...string) (err error) {
	out, err := a.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		return fmt.Errorf("error creating archive file: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	tgz := archiver.NewTarGz()
	tgz.CompressionLevel = a.compressionLevel
	tgz.SingleThreaded = a.singleThreaded

	if err := tgz.Create(out); err != nil {
		return fmt.Errorf("error creating archive: %w", err)
	}

	skip = append(skip, tmpPath)
	walkErr := afero.Walk(a.fs, walkRoot, func(fpath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		for _, s := range skip {
			if fpath == s {
				return nil
			}
		}

		// tar has no representation for sockets
		if info.Mode()&os.ModeSocket != 0 {
			a.logger.Debug("Skipping socket", map[string]interface{}{"path": fpath})
			return nil
		}

		rel, err := filepath.Rel(walkRoot, fpath)
		if err != nil {
			return err
		}

		return a.writeEntry(tgz, fpath, path.Join(root, filepath.ToSlash(rel)), info)
	})
	if walkErr != nil {
		tgz.Close()
		return walkErr
	}

	return tgz.Close()
}

func (a *Archiver) writeEntry(tgz *archiver.TarGz, fpath string, name string, info os.FileInfo) error {
	var contents io.ReadCloser
	if info.Mode().IsRegular() {
		f, err := a.fs.Open(fpath)
		if err != nil {
			return err
		}
		defer f.Close()
		contents = f
	}

	a.logger.Trace("Adding entry", map[string]interface{}{"name": name})

	return tgz.Write(archiver.File{
		FileInfo: archiver.FileInfo{
			FileInfo:   info,
			CustomName: name,
			SourcePath: fpath,
		},
		ReadCloser: contents,
	})
}

// resolveSource checks that sourceDir is a directory and returns its absolute,
// cleaned path.
func (a *Archiver) resolveSource(sourceDir string) (string, error) {
	if sourceDir == "" {
		return "", fmt.Errorf("source directory is required")
	}

	source := filepath.Clean(sourceDir)

	info, err := a.fs.Stat(source)
	if err != nil {
		return "", fmt.Errorf("error stating source directory %s: %w", sourceDir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, sourceDir)
	}

	abs, err := filepath.Abs(source)
	if err != nil {
		return "", fmt.Errorf("error resolving source directory %s: %w", sourceDir, err)
	}

	return abs, nil
}

// resolveDestination returns the absolute, symlink-free path the archive is
// finally stored at. A destination that is a symlink resolves to its target.
func (a *Archiver) resolveDestination(destination string) (string, error) {
	if lst, ok := a.fs.(afero.Lstater); ok {
		info, _, err := lst.LstatIfPossible(destination)
		if err == nil && info.Mode()&os.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(destination)
			if err != nil {
				return "", fmt.Errorf("error resolving destination %s: %w", destination, err)
			}
			return filepath.Abs(target)
		}
	}

	dir, err := filepath.EvalSymlinks(filepath.Dir(destination))
	if err != nil {
		return "", fmt.Errorf("error resolving destination directory: %w", err)
	}

	dir, err = filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("error resolving destination directory: %w", err)
	}

	return filepath.Join(dir, filepath.Base(destination)), nil
}

func (a *Archiver) discard(p string) {
	if err := a.fs.Remove(p); err != nil && !os.IsNotExist(err) {
		a.logger.Warn("Error removing partial archive", map[string]interface{}{
			"path":  p,
			"error": err.Error(),
		})
	}
}

// RootName returns the name of the top-level entry an archive of sourceDir has.
func RootName(sourceDir string) string {
	source := filepath.Clean(sourceDir)
	if base := filepath.Base(source); base != "." && base != ".." {
		return base
	}

	if abs, err := filepath.Abs(source); err == nil {
		return filepath.Base(abs)
	}

	return filepath.Base(source)
}
