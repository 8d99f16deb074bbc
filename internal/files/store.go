package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pliu/prompthub/internal/domain"
	"github.com/pliu/prompthub/internal/models"
)

// maxCollisions bounds the " (N)" suffixes tried for one upload.
const maxCollisions = 10000

var (
	ErrNoFile     = &domain.ValidationError{Message: "No file selected"}
	ErrFileType   = &domain.ValidationError{Message: "File type not allowed"}
	ErrTooLarge   = &domain.ValidationError{Message: "File exceeds the maximum upload size"}
	errFileAbsent = &domain.NotFoundError{Message: "File not found"}
)

// ProjectFinder resolves a project for its owner. projects.Service
// implements it.
type ProjectFinder interface {
	GetOwned(ctx context.Context, projectID, ownerID int64) (*models.Project, error)
}

// Store keeps uploaded files under <dir>/<project_id>/<name>. All access
// goes through an os.Root so that no name can resolve outside the upload
// directory.
type Store struct {
	root     *os.Root
	projects ProjectFinder
	allowed  map[string]bool
	maxBytes int64
	log      *zap.Logger
}

func NewStore(dir string, projects ProjectFinder, allowedExtensions []string, maxBytes int64, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open upload dir: %w", err)
	}

	allowed := make(map[string]bool, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			allowed[ext] = true
		}
	}

	return &Store{
		root:     root,
		projects: projects,
		allowed:  allowed,
		maxBytes: maxBytes,
		log:      log,
	}, nil
}

func (s *Store) Close() error {
	return s.root.Close()
}

// MaxBytes is the largest file Upload accepts.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

func projectDir(projectID int64) string {
	return strconv.FormatInt(projectID, 10)
}

// Upload stores the content of r under a sanitized, collision-free version
// of filename and returns the name it was stored under.
func (s *Store) Upload(ctx context.Context, projectID, ownerID int64, filename string, r io.Reader) (string, error) {
	if _, err := s.projects.GetOwned(ctx, projectID, ownerID); err != nil {
		return "", err
	}

	name := SanitizeFilename(filename)
	if name == "" {
		return "", ErrNoFile
	}
	if !s.allowed[extension(name)] {
		return "", ErrFileType
	}

	if err := s.root.MkdirAll(projectDir(projectID), 0o755); err != nil {
		return "", fmt.Errorf("create project dir: %w", err)
	}
	dir, err := s.root.OpenRoot(projectDir(projectID))
	if err != nil {
		return "", fmt.Errorf("open project dir: %w", err)
	}
	defer dir.Close()

	f, stored, err := createUnique(dir, name)
	if err != nil {
		return "", err
	}

	n, copyErr := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	closeErr := f.Close()
	if copyErr == nil && n > s.maxBytes {
		copyErr = ErrTooLarge
	}
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr == nil {
		copyErr = ctx.Err()
	}
	if copyErr != nil {
		if err := dir.Remove(stored); err != nil {
			s.log.Warn("failed to remove partial upload",
				zap.Int64("project_id", projectID),
				zap.String("name", stored),
				zap.Error(err),
			)
		}
		if errors.Is(copyErr, ErrTooLarge) {
			return "", ErrTooLarge
		}
		return "", fmt.Errorf("write upload: %w", copyErr)
	}

	s.log.Info("file uploaded",
		zap.Int64("project_id", projectID),
		zap.Int64("user_id", ownerID),
		zap.String("name", stored),
		zap.Int64("size", n),
	)
	return stored, nil
}

// createUnique creates the first free candidate for name. O_EXCL makes
// the check and the create one step, so concurrent uploads of the same
// name get distinct files.
func createUnique(dir *os.Root, name string) (*os.File, string, error) {
	for i := 0; i < maxCollisions; i++ {
		candidate := candidateName(name, i)
		f, err := dir.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("create upload: %w", err)
		}
	}
	return nil, "", fmt.Errorf("create upload: no free name for %q", name)
}

// List returns the regular files of a project sorted by name.
func (s *Store) List(ctx context.Context, projectID, ownerID int64) ([]models.FileInfo, error) {
	if _, err := s.projects.GetOwned(ctx, projectID, ownerID); err != nil {
		return nil, err
	}

	result := []models.FileInfo{}
	dir, err := s.root.OpenRoot(projectDir(projectID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return result, nil
		}
		return nil, fmt.Errorf("open project dir: %w", err)
	}
	defer dir.Close()

	entries, err := fs.ReadDir(dir.FS(), ".")
	if err != nil {
		return nil, fmt.Errorf("read project dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		result = append(result, models.FileInfo{Name: entry.Name(), Size: info.Size()})
	}
	return result, nil
}

// Open returns the named file of a project for reading. The caller closes
// it. Any name that is not a plain file directly inside the project
// directory is a NotFoundError.
func (s *Store) Open(ctx context.Context, projectID, ownerID int64, filename string) (*os.File, models.FileInfo, error) {
	if _, err := s.projects.GetOwned(ctx, projectID, ownerID); err != nil {
		return nil, models.FileInfo{}, err
	}
	if !validStoredName(filename) {
		return nil, models.FileInfo{}, errFileAbsent
	}

	dir, err := s.root.OpenRoot(projectDir(projectID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, models.FileInfo{}, errFileAbsent
		}
		return nil, models.FileInfo{}, fmt.Errorf("open project dir: %w", err)
	}
	defer dir.Close()

	f, err := dir.Open(filename)
	if err != nil {
		// os.Root reports escapes as a plain error, not ErrNotExist.
		return nil, models.FileInfo{}, errFileAbsent
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		f.Close()
		return nil, models.FileInfo{}, errFileAbsent
	}
	return f, models.FileInfo{Name: info.Name(), Size: info.Size()}, nil
}
