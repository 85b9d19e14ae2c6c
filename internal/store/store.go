package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/scriptroom/storyengine/internal/timeline"
)

// PersistenceStore is the excluded-collaborator interface (spec §1: the
// SQLite persistence schema is out of scope) a concrete backend satisfies.
// FileStore is the one implementation this repo ships.
type PersistenceStore interface {
	Save(projectID uuid.UUID, meta ProjectMeta, t *timeline.Timeline, crdtBlob []byte) error
	Load(projectID uuid.UUID) (ProjectMeta, *timeline.Timeline, []byte, error)
	Delete(projectID uuid.UUID) error
	List() ([]uuid.UUID, error)
}

// FileStore persists each project as a single JSON file under dir, named
// by project id.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir, creating it if absent.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create store directory %q", dir)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(projectID uuid.UUID) string {
	return filepath.Join(s.dir, projectID.String()+".json")
}

// Save writes the full container (current schema) for projectID, replacing
// any existing file atomically via a temp-file rename.
func (s *FileStore) Save(projectID uuid.UUID, meta ProjectMeta, t *timeline.Timeline, crdtBlob []byte) error {
	c := Container{
		Schema:   currentSchema,
		Meta:     meta,
		Timeline: toTimelineDTO(t),
		CRDTBlob: crdtBlob,
	}
	data, err := marshalContainer(c)
	if err != nil {
		return err
	}

	final := s.path(projectID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "write project container %q", tmp)
	}
	if err := os.Rename(tmp, final); err != nil {
		return errors.Wrapf(err, "rename project container into place %q", final)
	}
	return nil
}

// Load reads projectID's container, migrating it from the legacy schema
// first if necessary (spec §6).
func (s *FileStore) Load(projectID uuid.UUID) (ProjectMeta, *timeline.Timeline, []byte, error) {
	data, err := os.ReadFile(s.path(projectID))
	if err != nil {
		return ProjectMeta{}, nil, nil, errors.Wrapf(err, "read project container %q", projectID)
	}

	var probe struct {
		Schema int `json:"schema"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ProjectMeta{}, nil, nil, errors.Wrap(err, "probe project container schema")
	}

	var c Container
	switch probe.Schema {
	case schemaLegacy:
		var legacy legacyContainer
		if err := json.Unmarshal(data, &legacy); err != nil {
			return ProjectMeta{}, nil, nil, errors.Wrap(err, "unmarshal legacy project container")
		}
		c = migrateLegacyContainer(legacy)
	case currentSchema:
		if err := json.Unmarshal(data, &c); err != nil {
			return ProjectMeta{}, nil, nil, errors.Wrap(err, "unmarshal project container")
		}
	default:
		return ProjectMeta{}, nil, nil, errors.Errorf("unknown project container schema %d", probe.Schema)
	}

	return c.Meta, c.Timeline.toTimeline(), c.CRDTBlob, nil
}

// Delete removes projectID's container. Deleting an absent project is not
// an error.
func (s *FileStore) Delete(projectID uuid.UUID) error {
	if err := os.Remove(s.path(projectID)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "delete project container %q", projectID)
	}
	return nil
}

// List returns every project id with a container on disk.
func (s *FileStore) List() ([]uuid.UUID, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "list store directory %q", s.dir)
	}

	var ids []uuid.UUID
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if ext != ".json" {
			continue
		}
		id, err := uuid.Parse(name[:len(name)-len(ext)])
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
