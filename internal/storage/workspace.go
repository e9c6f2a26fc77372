package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Workspace manages the directories convertd writes into: finished
// outputs and scratch space for in-flight encodes. All operations are
// confined to the base directory; paths that escape it are rejected.
type Workspace struct {
	baseDir string
}

// NewWorkspace roots a workspace at baseDir, creating it if needed.
func NewWorkspace(baseDir string) (*Workspace, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0750); err != nil {
		return nil, fmt.Errorf("creating base directory: %w", err)
	}
	return &Workspace{baseDir: absPath}, nil
}

func (w *Workspace) BaseDir() string {
	return w.baseDir
}

// ResolvePath maps a relative path into the workspace, rejecting
// absolute paths and traversal out of the base directory.
func (w *Workspace) ResolvePath(relativePath string) (string, error) {
	if filepath.IsAbs(relativePath) {
		return "", fmt.Errorf("path escapes workspace: %s (absolute paths not allowed)", relativePath)
	}

	fullPath := filepath.Join(w.baseDir, filepath.Clean(relativePath))
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}
	if !strings.HasPrefix(absPath, w.baseDir+string(filepath.Separator)) && absPath != w.baseDir {
		return "", fmt.Errorf("path escapes workspace: %s", relativePath)
	}
	return absPath, nil
}

// OutputPath resolves a destination file under the outputs directory,
// creating the directory tree as needed.
func (w *Workspace) OutputPath(name string) (string, error) {
	path, err := w.ResolvePath(filepath.Join("outputs", name))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	return path, nil
}

// ScratchFile creates a temporary file under the workspace scratch
// directory. The caller closes and removes it.
func (w *Workspace) ScratchFile(pattern string) (*os.File, error) {
	dir, err := w.ScratchDir()
	if err != nil {
		return nil, err
	}
	file, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("creating scratch file: %w", err)
	}
	return file, nil
}

// ScratchDir returns the scratch directory, creating it if missing.
func (w *Workspace) ScratchDir() (string, error) {
	dir, err := w.ResolvePath("scratch")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("creating scratch directory: %w", err)
	}
	return dir, nil
}

// Publish moves a finished encode from anywhere on disk into the
// outputs directory. Rename is attempted first; cross-device moves fall
// back to a copy through a temp file so the destination never holds a
// partial file.
func (w *Workspace) Publish(srcAbsPath, name string) (string, error) {
	target, err := w.OutputPath(name)
	if err != nil {
		return "", err
	}

	if err := os.Rename(srcAbsPath, target); err == nil {
		return target, nil
	}

	if err := w.copyPublish(srcAbsPath, target); err != nil {
		return "", err
	}
	return target, nil
}

func (w *Workspace) copyPublish(srcAbsPath, target string) error {
	src, err := os.Open(srcAbsPath)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer src.Close()

	tempPath := filepath.Join(filepath.Dir(target),
		fmt.Sprintf(".%s.%s.tmp", filepath.Base(target), randomHex(8)))
	dst, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}

	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("copying to temporary file: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing temporary file: %w", closeErr)
	}

	if err := os.Rename(tempPath, target); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming to target: %w", err)
	}
	os.Remove(srcAbsPath)
	return nil
}

// Remove deletes a file within the workspace.
func (w *Workspace) Remove(relativePath string) error {
	path, err := w.ResolvePath(relativePath)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing file: %w", err)
	}
	return nil
}

func randomHex(n int) string {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "fallback"
	}
	return hex.EncodeToString(bytes)
}
