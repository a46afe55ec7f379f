package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/questline/eventhub/internal/services/eventhub/domain"
)

// FileProvider loads the catalog from a JSON document on disk. The document
// holds the already-structured master data the ingestion pipeline produces.
type FileProvider struct {
	path string
}

type catalogDocument struct {
	Quests  []domain.Quest        `json:"quests"`
	Players []domain.RosterPlayer `json:"players"`
}

// NewFileProvider creates a provider reading from the given JSON file.
func NewFileProvider(path string) (*FileProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("catalog path is required")
	}
	return &FileProvider{path: filepath.Clean(path)}, nil
}

// Quests returns all catalog quests, regardless of lifecycle state.
func (p *FileProvider) Quests(ctx context.Context) ([]domain.Quest, error) {
	doc, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Quests, nil
}

// Players returns the full player roster.
func (p *FileProvider) Players(ctx context.Context) ([]domain.RosterPlayer, error) {
	doc, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Players, nil
}

func (p *FileProvider) load(ctx context.Context) (catalogDocument, error) {
	if err := ctx.Err(); err != nil {
		return catalogDocument{}, err
	}
	if p == nil || p.path == "" {
		return catalogDocument{}, fmt.Errorf("catalog provider is not configured")
	}

	raw, err := os.ReadFile(p.path)
	if err != nil {
		return catalogDocument{}, fmt.Errorf("read catalog file: %w", err)
	}
	var doc catalogDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return catalogDocument{}, fmt.Errorf("decode catalog file: %w", err)
	}
	return doc, nil
}

var _ Provider = (*FileProvider)(nil)
