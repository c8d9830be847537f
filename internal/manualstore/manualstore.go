// Package manualstore persists entity snapshots that could not be published
// automatically, so an operator can review and publish them by hand. Snapshots
// live as paired JSON files on disk and survive process restarts.
package manualstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lumenreach/visibility-cli/internal/model"
	"github.com/lumenreach/visibility-cli/pkg/wikidata"
)

// Store writes and reads manual-review snapshots under a base directory.
type Store struct {
	dir string
}

// New ensures the base directory exists and returns a Store over it.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, eris.New("manualstore: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "manualstore: create directory")
	}
	return &Store{dir: dir}, nil
}

// Snapshot is the full context an operator needs to publish by hand.
type Snapshot struct {
	Business   *model.Business
	Entity     *wikidata.Entity
	Notability model.NotabilityAssessment
	CanPublish bool
	Reason     string
}

type metadataFile struct {
	BusinessID   string                     `json:"business_id"`
	BusinessName string                     `json:"business_name"`
	BusinessURL  string                     `json:"business_url"`
	CanPublish   bool                       `json:"can_publish"`
	Reason       string                     `json:"reason"`
	Notability   model.NotabilityAssessment `json:"notability"`
	StoredAt     time.Time                  `json:"stored_at"`
}

// Save writes the entity and its review metadata as a timestamped pair. The
// entity file alone is enough to publish; the metadata file explains why it
// ended up here.
func (s *Store) Save(snap Snapshot) (*model.StoredManualEntity, error) {
	if snap.Business == nil || snap.Entity == nil {
		return nil, eris.New("manualstore: business and entity are required")
	}
	now := time.Now().UTC()
	base := fmt.Sprintf("%s_%s", snap.Business.ID, now.Format("20060102T150405"))
	entityName := base + ".entity.json"
	metaName := base + ".meta.json"

	if err := s.writeJSON(entityName, snap.Entity); err != nil {
		return nil, err
	}
	meta := metadataFile{
		BusinessID:   snap.Business.ID,
		BusinessName: snap.Business.Name,
		BusinessURL:  snap.Business.URL,
		CanPublish:   snap.CanPublish,
		Reason:       snap.Reason,
		Notability:   snap.Notability,
		StoredAt:     now,
	}
	if err := s.writeJSON(metaName, meta); err != nil {
		// Orphaned entity files are still usable; leave them in place.
		return nil, err
	}

	zap.L().Info("stored entity for manual review",
		zap.String("business_id", snap.Business.ID),
		zap.Bool("can_publish", snap.CanPublish),
		zap.String("file", entityName))

	return &model.StoredManualEntity{
		BusinessID:       snap.Business.ID,
		BusinessName:     snap.Business.Name,
		EntityFileName:   entityName,
		MetadataFileName: metaName,
		CanPublish:       snap.CanPublish,
		Notability:       snap.Notability,
		StoredAt:         now,
	}, nil
}

func (s *Store) writeJSON(name string, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "manualstore: marshal %s", name)
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return eris.Wrapf(err, "manualstore: write %s", name)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "manualstore: rename %s", name)
	}
	return nil
}

// List returns all stored snapshots, newest first.
func (s *Store) List() ([]model.StoredManualEntity, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, eris.Wrap(err, "manualstore: read directory")
	}

	var out []model.StoredManualEntity
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".meta.json") {
			continue
		}
		var meta metadataFile
		if err := s.readJSON(name, &meta); err != nil {
			zap.L().Warn("skipping unreadable snapshot metadata", zap.String("file", name), zap.Error(err))
			continue
		}
		base := strings.TrimSuffix(name, ".meta.json")
		out = append(out, model.StoredManualEntity{
			BusinessID:       meta.BusinessID,
			BusinessName:     meta.BusinessName,
			EntityFileName:   base + ".entity.json",
			MetadataFileName: name,
			CanPublish:       meta.CanPublish,
			Notability:       meta.Notability,
			StoredAt:         meta.StoredAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoredAt.After(out[j].StoredAt) })
	return out, nil
}

// LoadEntity reads a stored entity by its file name as returned by List.
func (s *Store) LoadEntity(entityFileName string) (*wikidata.Entity, error) {
	var e wikidata.Entity
	if err := s.readJSON(entityFileName, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) readJSON(name string, v any) error {
	// Names come from List or operator input; never allow path escapes.
	if filepath.Base(name) != name {
		return eris.Errorf("manualstore: invalid file name %q", name)
	}
	payload, err := os.ReadFile(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return eris.Wrapf(ErrSnapshotNotFound, "%s", name)
	}
	if err != nil {
		return eris.Wrapf(err, "manualstore: read %s", name)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return eris.Wrapf(err, "manualstore: unmarshal %s", name)
	}
	return nil
}

// ErrSnapshotNotFound is returned when a referenced snapshot file is missing.
var ErrSnapshotNotFound = eris.New("manualstore: snapshot not found")

// Delete removes a snapshot pair after the operator has acted on it.
func (s *Store) Delete(stored model.StoredManualEntity) error {
	for _, name := range []string{stored.EntityFileName, stored.MetadataFileName} {
		if name == "" {
			continue
		}
		if filepath.Base(name) != name {
			return eris.Errorf("manualstore: invalid file name %q", name)
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return eris.Wrapf(err, "manualstore: delete %s", name)
		}
	}
	return nil
}
