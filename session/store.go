package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ScriptPrefix is the reserved filename prefix for scripts staged into a
// session directory by the executor. Files carrying it are never reported
// as user artifacts.
const ScriptPrefix = "script_"

// DirPermission is the mode for session directories. The container runs as
// an unprivileged user, so the directory must be world-accessible.
const DirPermission = 0o777

var (
	// ErrNotFound indicates the requested artifact does not exist
	ErrNotFound = errors.New("artifact not found")

	// ErrPathEscape indicates the requested path resolves outside the
	// session directory
	ErrPathEscape = errors.New("path escapes session directory")

	// ErrInvalidSessionID indicates the session id contains path separators
	// or other characters that could escape the base directory
	ErrInvalidSessionID = errors.New("invalid session id")
)

// Store owns per-session directories under a base directory on the host.
// Each session id maps to exactly one directory, which doubles as the
// read-write mount point visible inside the sandbox container. Directories
// persist across executions and are removed only by Destroy.
type Store struct {
	logger  *zap.Logger
	baseDir string
}

// NewStore creates a session store rooted at baseDir
func NewStore(logger *zap.Logger, baseDir string) *Store {
	return &Store{logger: logger, baseDir: baseDir}
}

// NewSessionID generates a fresh opaque session identifier
func NewSessionID() string {
	return uuid.NewString()
}

// BaseDir returns the host directory containing all session directories
func (s *Store) BaseDir() string {
	return s.baseDir
}

// Ensure idempotently creates the session directory if absent and returns
// its host path
func (s *Store) Ensure(sessionID string) (string, error) {
	dir, err := s.dir(sessionID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, DirPermission); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}
	return dir, nil
}

// ListArtifacts recursively enumerates regular files under the session
// directory, excluding staged script files. Paths are relative to the
// session directory and slash-separated. A session that was never used
// yields an empty list.
func (s *Store) ListArtifacts(sessionID string) ([]string, error) {
	dir, err := s.dir(sessionID)
	if err != nil {
		return nil, err
	}

	artifacts := []string{}
	walkErr := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ScriptPrefix) {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return relErr
		}
		artifacts = append(artifacts, filepath.ToSlash(rel))
		return nil
	})
	if walkErr != nil {
		if os.IsNotExist(walkErr) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list session directory: %w", walkErr)
	}

	return artifacts, nil
}

// ReadArtifact reads a file from the session directory. It fails with
// ErrPathEscape when the resolved path is not contained within the session
// directory and with ErrNotFound when the file is absent.
func (s *Store) ReadArtifact(sessionID, relativePath string) ([]byte, error) {
	path, err := s.resolve(sessionID, relativePath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, relativePath)
		}
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return data, nil
}

// StageScript writes a composed script into the session directory under the
// reserved prefix with a per-call unique suffix, returning the bare
// filename. The uniqueness of the suffix is what keeps concurrent
// executions against the same session from colliding.
func (s *Store) StageScript(sessionID, content string) (string, error) {
	dir, err := s.Ensure(sessionID)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s%s.py", ScriptPrefix, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	// World-readable: the container reads it as an unprivileged user.
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to stage script: %w", err)
	}
	return name, nil
}

// RemoveScript deletes a staged script file. Best-effort: a missing file is
// not an error.
func (s *Store) RemoveScript(sessionID, name string) error {
	if !strings.HasPrefix(name, ScriptPrefix) {
		return fmt.Errorf("refusing to remove non-script file: %s", name)
	}
	path, err := s.resolve(sessionID, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove staged script: %w", err)
	}
	return nil
}

// Destroy recursively removes the session directory and all its contents.
// It is an idempotent no-op if the directory is already absent.
func (s *Store) Destroy(sessionID string) error {
	dir, err := s.dir(sessionID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	s.logger.Info("session destroyed", zap.String("session_id", sessionID))
	return nil
}

// dir validates the session id and returns its host directory path
func (s *Store) dir(sessionID string) (string, error) {
	if sessionID == "" || sessionID == "." || sessionID == ".." ||
		strings.ContainsAny(sessionID, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	return filepath.Join(s.baseDir, sessionID), nil
}

// resolve joins a caller-supplied relative path onto the session directory
// and rejects anything that escapes it via ".." or absolute-path injection
func (s *Store) resolve(sessionID, relativePath string) (string, error) {
	dir, err := s.dir(sessionID)
	if err != nil {
		return "", err
	}

	if filepath.IsAbs(relativePath) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, relativePath)
	}

	path := filepath.Join(dir, filepath.FromSlash(relativePath))
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, relativePath)
	}
	return path, nil
}
