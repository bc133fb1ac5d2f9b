// Package storage provides the local file operations used by m3uclean jobs.
//
// Relative paths resolve against a base directory. In strict mode every
// path, absolute ones included, must stay inside it. Destination files are
// replaced atomically: data goes to a temporary file in the target
// directory, which is then renamed over the target.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// StdioIdentifier names standard input as a source and standard output as
// a destination.
const StdioIdentifier = "-"

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// ErrPathEscapes is returned in strict mode for paths outside the base directory.
var ErrPathEscapes = errors.New("path escapes base directory")

// IOError reports a failed local read or write.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Workspace resolves and accesses local files for jobs.
type Workspace struct {
	baseDir string
	strict  bool
	stdin   io.Reader
	stdout  io.Writer
}

// NewWorkspace creates a Workspace rooted at baseDir. The directory is not
// created; destinations create their parent directories on write.
func NewWorkspace(baseDir string, strict bool) (*Workspace, error) {
	if baseDir == "" {
		baseDir = "."
	}
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	return &Workspace{
		baseDir: absPath,
		strict:  strict,
		stdin:   os.Stdin,
		stdout:  os.Stdout,
	}, nil
}

// WithStdio returns a copy of w that uses in and out for the "-" identifier.
func (w *Workspace) WithStdio(in io.Reader, out io.Writer) *Workspace {
	c := *w
	c.stdin = in
	c.stdout = out
	return &c
}

// BaseDir returns the absolute path of the base directory.
func (w *Workspace) BaseDir() string {
	return w.baseDir
}

// Strict reports whether paths are confined to the base directory.
func (w *Workspace) Strict() bool {
	return w.strict
}

// Resolve returns the absolute path for p.
func (w *Workspace) Resolve(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", &IOError{Op: "resolve", Path: p, Err: errors.New("empty path")}
	}

	var abs string
	if filepath.IsAbs(p) {
		abs = filepath.Clean(p)
	} else {
		abs = filepath.Join(w.baseDir, filepath.Clean(p))
	}

	if w.strict && abs != w.baseDir && !strings.HasPrefix(abs, w.baseDir+string(filepath.Separator)) {
		return "", &IOError{Op: "resolve", Path: p, Err: ErrPathEscapes}
	}
	return abs, nil
}

// ReadFile reads a local file, or standard input for "-".
func (w *Workspace) ReadFile(p string) ([]byte, error) {
	if p == StdioIdentifier {
		data, err := io.ReadAll(w.stdin)
		if err != nil {
			return nil, &IOError{Op: "read", Path: "stdin", Err: err}
		}
		return data, nil
	}

	path, err := w.Resolve(p)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &IOError{Op: "read", Path: path, Err: errors.New("is a directory")}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

// Write stores text at identifier, or writes it to standard output for "-".
// It returns the number of bytes written.
func (w *Workspace) Write(ctx context.Context, identifier, text string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if identifier == StdioIdentifier {
		n, err := io.WriteString(w.stdout, text)
		if err != nil {
			return int64(n), &IOError{Op: "write", Path: "stdout", Err: err}
		}
		return int64(n), nil
	}

	if err := w.AtomicWrite(identifier, []byte(text)); err != nil {
		return 0, err
	}
	return int64(len(text)), nil
}

// AtomicWrite replaces the file at p with data. Parent directories are
// created. An existing file keeps its permission bits.
func (w *Workspace) AtomicWrite(p string, data []byte) error {
	targetPath, err := w.Resolve(p)
	if err != nil {
		return err
	}

	perm := fs.FileMode(filePerm)
	if info, err := os.Stat(targetPath); err == nil {
		if info.IsDir() {
			return &IOError{Op: "write", Path: targetPath, Err: errors.New("is a directory")}
		}
		perm = info.Mode().Perm()
	}

	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}

	tempFile, err := os.CreateTemp(dir, "."+filepath.Base(targetPath)+".*.tmp")
	if err != nil {
		return &IOError{Op: "write", Path: targetPath, Err: err}
	}
	tempPath := tempFile.Name()

	_, err = tempFile.Write(data)
	if err == nil {
		err = tempFile.Chmod(perm)
	}
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempPath)
		return &IOError{Op: "write", Path: targetPath, Err: err}
	}

	// Rename to target (atomic on most filesystems)
	if err := os.Rename(tempPath, targetPath); err != nil {
		os.Remove(tempPath)
		return &IOError{Op: "rename", Path: targetPath, Err: err}
	}

	return nil
}
