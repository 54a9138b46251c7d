// Package file provides file-based persistence for flows, versions, runs,
// entities, and journey events. It is the default backend for development
// and tests.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alexfarlander/stitch-run-sub015/pkg/persistence"
)

// Persistence implements persistence.Persistence on top of a directory of
// JSON documents, one sub-directory per collection.
type Persistence struct {
	root string

	flowRepo    *FlowRepository
	versionRepo *VersionRepository
	runRepo     *RunRepository
	entityRepo  *EntityRepository
	journeyRepo *JourneyRepository
	webhookRepo *WebhookConfigRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	store := &store{root: cleanRoot}

	return &Persistence{
		root:        cleanRoot,
		flowRepo:    &FlowRepository{store: store},
		versionRepo: &VersionRepository{store: store},
		runRepo:     &RunRepository{store: store},
		entityRepo:  &EntityRepository{store: store},
		journeyRepo: &JourneyRepository{store: store},
		webhookRepo: &WebhookConfigRepository{store: store},
	}
}

func (p *Persistence) FlowRepository() persistence.FlowRepository { return p.flowRepo }

func (p *Persistence) VersionRepository() persistence.VersionRepository { return p.versionRepo }

func (p *Persistence) RunRepository() persistence.RunRepository { return p.runRepo }

func (p *Persistence) EntityRepository() persistence.EntityRepository { return p.entityRepo }

func (p *Persistence) JourneyRepository() persistence.JourneyRepository { return p.journeyRepo }

func (p *Persistence) WebhookConfigRepository() persistence.WebhookConfigRepository {
	return p.webhookRepo
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close is a no-op for file persistence.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// store is the shared low-level document accessor. The mutex serializes all
// writes so conditional run updates observe a consistent on-disk state.
type store struct {
	root string
	mu   sync.Mutex
}

func (s *store) path(collection, id string) string {
	return filepath.Join(s.root, collection, id+".json")
}

// validateID guards against path traversal through document ids.
func validateID(id string) error {
	if id == "" {
		return errors.New("id cannot be empty")
	}

	if strings.Contains(id, "..") || strings.Contains(id, "/") || strings.Contains(id, "\\") {
		return errors.New("id contains invalid characters")
	}

	return nil
}

func (s *store) write(collection, id string, value any) error {
	if err := validateID(id); err != nil {
		return err
	}

	dir := filepath.Join(s.root, collection)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", collection, err)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", collection, id, err)
	}

	if err := os.WriteFile(s.path(collection, id), data, 0600); err != nil {
		return fmt.Errorf("failed to write %s %s: %w", collection, id, err)
	}

	return nil
}

// read loads one document; it reports os.ErrNotExist when absent.
func (s *store) read(collection, id string, value any) error {
	if err := validateID(id); err != nil {
		return err
	}

	data, err := os.ReadFile(s.path(collection, id))
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, value); err != nil {
		return fmt.Errorf("failed to unmarshal %s %s: %w", collection, id, err)
	}

	return nil
}

func (s *store) exists(collection, id string) bool {
	_, err := os.Stat(s.path(collection, id))

	return err == nil
}

// ids lists all document ids of a collection.
func (s *store) ids(collection string) ([]string, error) {
	dir := filepath.Join(s.root, collection)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	files, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", collection, err)
	}

	ids := make([]string, 0, len(files))
	for _, file := range files {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}
