package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileStore keeps one JSON document per session under a directory. It
// serves development setups and tests; the version check is enforced
// under a process-wide lock, which is enough for a single server
// process owning the directory.
type FileStore struct {
	path string

	mu sync.Mutex
}

// fileAsset is the on-disk envelope around a session document.
type fileAsset struct {
	Version   int64       `json:"version"`
	Code      string      `json:"id"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Doc       *SessionDoc `json:"spec"`
}

func NewFileStore(path string) (*FileStore, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("session store path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("session store path %q is not a directory", path)
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Load(_ context.Context, code string) (*SessionDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(code)
}

func (s *FileStore) Save(_ context.Context, doc *SessionDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.read(doc.Code)
	switch {
	case err == nil:
		if doc.Version == 0 {
			return ErrExists
		}
		if existing.Version != doc.Version {
			return ErrConflict
		}
	case err == ErrNotFound:
		if doc.Version != 0 {
			return ErrConflict
		}
	default:
		return err
	}

	doc.UpdatedAt = time.Now().UTC()
	asset := fileAsset{
		Version:   doc.Version + 1,
		Code:      doc.Code,
		UpdatedAt: doc.UpdatedAt,
		Doc:       doc,
	}

	jsonData, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("marshalling session %s: %w", doc.Code, err)
	}

	if err := atomicWrite(s.filePath(doc.Code), jsonData, 0644); err != nil {
		return err
	}
	doc.Version = asset.Version
	return nil
}

func (s *FileStore) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.filePath(code))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting session %s: %w", code, err)
	}
	return nil
}

func (s *FileStore) List(_ context.Context, f Filter) ([]*SessionDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.path)
	if err != nil {
		return nil, fmt.Errorf("listing session store: %w", err)
	}

	var out []*SessionDoc
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		doc, err := s.read(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			// A single unreadable file shouldn't hide the rest.
			slog.Warn("skipping unreadable session file", "file", e.Name(), "error", err)
			continue
		}
		if f.matches(doc) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// read loads and unwraps one document. Callers hold the lock.
func (s *FileStore) read(code string) (*SessionDoc, error) {
	jsonData, err := os.ReadFile(s.filePath(code))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading session %s: %w", code, err)
	}

	var asset fileAsset
	if err := json.Unmarshal(jsonData, &asset); err != nil {
		return nil, fmt.Errorf("unmarshalling session %s: %w", code, err)
	}
	if asset.Doc == nil {
		return nil, fmt.Errorf("session %s: empty document", code)
	}
	asset.Doc.Version = asset.Version
	asset.Doc.UpdatedAt = asset.UpdatedAt
	return asset.Doc, nil
}

func (s *FileStore) filePath(code string) string {
	return filepath.Join(s.path, fmt.Sprintf("%s.json", code))
}

// atomicWrite writes data to a temp file then renames it to the target
// path. This prevents partial or empty files if the process is
// interrupted.
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		if removeErr := os.Remove(tmp); removeErr != nil {
			slog.Warn("failed to remove temp file after rename failure", "path", tmp, "error", removeErr)
		}
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
