// Package spool owns all on-disk study state: the per-study directory tree,
// atomic writes into it, and the two terminal dispositions (quarantine and
// cleanup). Every other component reaches the filesystem only through this
// package's interface.
package spool

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Slot names the four fixed subdirectories of a study tree.
type Slot string

const (
	SlotDCM        Slot = "DCM"
	SlotStructure  Slot = "Structure"
	SlotAddition   Slot = "Addition"
	SlotDebugDicom Slot = "DebugDicom"
)

// Spool is the sole owner of on-disk study state, backed by an afero.Fs so
// production code runs over the real filesystem and tests run over an
// in-memory one without touching disk.
type Spool struct {
	fs              afero.Fs
	workingDir      string
	quarantineDir   string
}

// New builds a Spool rooted at workingDir, with quarantined studies moved
// under workingDir/quarantineSubdir.
func New(fs afero.Fs, workingDir, quarantineSubdir string) *Spool {
	return &Spool{
		fs:            fs,
		workingDir:    workingDir,
		quarantineDir: filepath.Join(workingDir, quarantineSubdir),
	}
}

// PathFor returns the filesystem path of a study's slot directory.
func (s *Spool) PathFor(key StudyKey, slot Slot) string {
	return filepath.Join(s.workingDir, key.DirName(), string(slot))
}

// Create makes the four fixed subdirectories for a new study.
func (s *Spool) Create(key StudyKey) error {
	for _, slot := range []Slot{SlotDCM, SlotStructure, SlotAddition, SlotDebugDicom} {
		if err := s.fs.MkdirAll(s.PathFor(key, slot), 0o755); err != nil {
			return fmt.Errorf("spool: create %s/%s: %w", key, slot, err)
		}
	}
	return nil
}

// WriteInstance writes data into a study's slot under filename using
// write-to-temp-then-rename, so no reader ever observes a partial file.
func (s *Spool) WriteInstance(key StudyKey, slot Slot, filename string, data []byte) (string, error) {
	dir := s.PathFor(key, slot)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("spool: create %s: %w", dir, err)
	}
	final := filepath.Join(dir, filename)
	return final, s.atomicWrite(final, data)
}

func (s *Spool) atomicWrite(final string, data []byte) error {
	tmp := final + ".part"
	f, err := s.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("spool: create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		s.fs.Remove(tmp)
		return fmt.Errorf("spool: write temp file: %w", err)
	}
	if syncer, ok := f.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			f.Close()
			s.fs.Remove(tmp)
			return fmt.Errorf("spool: fsync temp file: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(tmp)
		return fmt.Errorf("spool: close temp file: %w", err)
	}
	if err := s.rename(tmp, final); err != nil {
		s.fs.Remove(tmp)
		return err
	}
	return nil
}

// rename performs an atomic move, falling back to copy-then-delete when the
// underlying filesystem can't rename across the boundary (e.g. distinct
// afero overlays, or EXDEV on a real filesystem).
func (s *Spool) rename(oldPath, newPath string) error {
	if err := s.fs.Rename(oldPath, newPath); err == nil {
		return nil
	}
	return s.copyThenRemove(oldPath, newPath)
}

func (s *Spool) copyThenRemove(oldPath, newPath string) error {
	src, err := s.fs.Open(oldPath)
	if err != nil {
		return fmt.Errorf("spool: open source for copy fallback: %w", err)
	}
	defer src.Close()

	dst, err := s.fs.Create(newPath)
	if err != nil {
		return fmt.Errorf("spool: create destination for copy fallback: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("spool: copy fallback: %w", err)
	}
	if syncer, ok := dst.(interface{ Sync() error }); ok {
		syncer.Sync()
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("spool: close destination for copy fallback: %w", err)
	}
	if err := s.fs.Remove(oldPath); err != nil {
		return fmt.Errorf("spool: remove source after copy fallback: %w", err)
	}
	return nil
}

// Quarantine atomically moves a study's tree under the quarantine subtree,
// suffixed with a timestamp, and writes a sibling reason.txt. Either the
// source vanishes and the destination appears in full, or neither changes;
// a partial outcome is reported as a fatal configuration error by the
// caller, not retried here.
func (s *Spool) Quarantine(key StudyKey, reason string, now time.Time) error {
	src := filepath.Join(s.workingDir, key.DirName())
	dstName := fmt.Sprintf("%s_%s", key.DirName(), now.UTC().Format("20060102T150405Z"))
	dst := filepath.Join(s.quarantineDir, dstName)

	if err := s.fs.MkdirAll(s.quarantineDir, 0o755); err != nil {
		return fmt.Errorf("spool: create quarantine directory: %w", err)
	}
	if err := s.rename(src, dst); err != nil {
		return fmt.Errorf("spool: quarantine move: %w", err)
	}
	if err := afero.WriteFile(s.fs, dst+"_reason.txt", []byte(reason), 0o644); err != nil {
		return fmt.Errorf("spool: write quarantine reason: %w", err)
	}
	return nil
}

// Cleanup removes a study directory recursively. It is idempotent: removing
// an already-absent directory is a no-op, satisfying the "second cleanup
// after restart" case.
func (s *Spool) Cleanup(key StudyKey) error {
	dir := filepath.Join(s.workingDir, key.DirName())
	exists, err := afero.DirExists(s.fs, dir)
	if err != nil {
		return fmt.Errorf("spool: stat %s: %w", dir, err)
	}
	if !exists {
		return nil
	}
	if err := s.fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("spool: remove %s: %w", dir, err)
	}
	return nil
}

// ListStudies enumerates study keys currently present directly under the
// working directory, excluding the quarantine subtree.
func (s *Spool) ListStudies() ([]StudyKey, error) {
	entries, err := afero.ReadDir(s.fs, s.workingDir)
	if err != nil {
		if err == afero.ErrFileNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("spool: list %s: %w", s.workingDir, err)
	}

	var keys []StudyKey
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "UID_") {
			continue
		}
		keys = append(keys, StudyKey(strings.TrimPrefix(name, "UID_")))
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

// ListInstances returns the filenames present in a study's slot, sorted
// lexicographically — used by the Orchestrator to pick the first Structure
// set deterministically when more than one is present.
func (s *Spool) ListInstances(key StudyKey, slot Slot) ([]string, error) {
	dir := s.PathFor(key, slot)
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if err == afero.ErrFileNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("spool: list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".part") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ReadInstance reads an instance's raw bytes from a study's slot.
func (s *Spool) ReadInstance(key StudyKey, slot Slot, filename string) ([]byte, error) {
	return afero.ReadFile(s.fs, filepath.Join(s.PathFor(key, slot), filename))
}
