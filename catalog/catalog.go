// Package catalog maintains a full-text index over saved checkpoints.
//
// Checkpoint files accumulate quickly on long runs; the catalog lets an
// operator find the one that matters ("which checkpoint has the auth
// refactor half done?") without opening each JSON file. The catalog is
// derived data: deleting it loses nothing, re-indexing rebuilds it.
package catalog

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/praxislabs/agentplan/checkpoint"
	"github.com/praxislabs/agentplan/errors"
)

// Document is the indexed form of a checkpoint. Tasks holds the task
// descriptions joined into one searchable text field.
type Document struct {
	Path      string    `json:"path"`
	SessionID string    `json:"session_id"`
	Number    int       `json:"number"`
	Reason    string    `json:"reason"`
	Summary   string    `json:"summary"`
	Tasks     string    `json:"tasks"`
	Timestamp time.Time `json:"timestamp"`
}

// Entry is a search hit.
type Entry struct {
	Path      string
	SessionID string
	Number    int
	Reason    string
	Summary   string
	Score     float64
}

// Catalog is a bleve-backed checkpoint index. It is safe for concurrent
// use and implements checkpoint.Indexer.
type Catalog struct {
	mu    sync.RWMutex
	index bleve.Index
}

var _ checkpoint.Indexer = (*Catalog)(nil)

// Open opens or creates a catalog index at path.
func Open(path string) (*Catalog, error) {
	var index bleve.Index
	var err error

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		index, err = bleve.New(path, buildIndexMapping())
	} else {
		index, err = bleve.Open(path)
	}
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeCheckpointIO,
			"opening catalog index")
	}
	return &Catalog{index: index}, nil
}

// OpenInMemory creates an unpersisted catalog, used by tests and
// short-lived runs.
func OpenInMemory() (*Catalog, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeInternal,
			"creating in-memory catalog")
	}
	return &Catalog{index: index}, nil
}

// buildIndexMapping creates the bleve index mapping.
func buildIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name

	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	dateFieldMapping := bleve.NewDateTimeFieldMapping()

	docMapping.AddFieldMappingsAt("summary", textFieldMapping)
	docMapping.AddFieldMappingsAt("tasks", textFieldMapping)
	docMapping.AddFieldMappingsAt("reason", textFieldMapping)
	docMapping.AddFieldMappingsAt("path", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("session_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("timestamp", dateFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// IndexCheckpoint adds a saved checkpoint to the catalog, keyed by its
// file path so re-indexing the same file updates in place.
func (c *Catalog) IndexCheckpoint(cp *checkpoint.Checkpoint, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var descriptions []string
	for _, t := range cp.Plan.Tasks {
		descriptions = append(descriptions, t.Description)
	}

	doc := Document{
		Path:      path,
		SessionID: cp.SessionID,
		Number:    cp.Number,
		Reason:    cp.Reason,
		Summary:   cp.Plan.Summary,
		Tasks:     strings.Join(descriptions, "\n"),
		Timestamp: cp.Timestamp,
	}
	if err := c.index.Index(path, doc); err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeInternal,
			"indexing checkpoint")
	}
	return nil
}

// Search finds checkpoints matching the query text against task
// descriptions, summaries and reasons. Results come back best first.
func (c *Catalog) Search(queryText string, limit int) ([]Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	matchQuery := bleve.NewMatchQuery(queryText)
	searchReq := bleve.NewSearchRequest(matchQuery)
	searchReq.Size = limit
	searchReq.Fields = []string{"path", "session_id", "number", "reason", "summary"}

	searchResult, err := c.index.Search(searchReq)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeInternal,
			fmt.Sprintf("searching catalog for %q", queryText))
	}

	entries := make([]Entry, 0, len(searchResult.Hits))
	for _, hit := range searchResult.Hits {
		entry := Entry{Path: hit.ID, Score: hit.Score}
		if v, ok := hit.Fields["session_id"].(string); ok {
			entry.SessionID = v
		}
		if v, ok := hit.Fields["number"].(float64); ok {
			entry.Number = int(v)
		}
		if v, ok := hit.Fields["reason"].(string); ok {
			entry.Reason = v
		}
		if v, ok := hit.Fields["summary"].(string); ok {
			entry.Summary = v
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// BySession returns all indexed checkpoints for a session.
func (c *Catalog) BySession(sessionID string, limit int) ([]Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	termQuery := bleve.NewTermQuery(sessionID)
	termQuery.SetField("session_id")
	searchReq := bleve.NewSearchRequest(termQuery)
	searchReq.Size = limit
	searchReq.Fields = []string{"path", "session_id", "number", "reason", "summary"}

	searchResult, err := c.index.Search(searchReq)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeInternal,
			"searching catalog by session")
	}

	entries := make([]Entry, 0, len(searchResult.Hits))
	for _, hit := range searchResult.Hits {
		entry := Entry{Path: hit.ID, Score: hit.Score}
		if v, ok := hit.Fields["session_id"].(string); ok {
			entry.SessionID = v
		}
		if v, ok := hit.Fields["number"].(float64); ok {
			entry.Number = int(v)
		}
		if v, ok := hit.Fields["reason"].(string); ok {
			entry.Reason = v
		}
		if v, ok := hit.Fields["summary"].(string); ok {
			entry.Summary = v
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Remove drops a checkpoint from the index, typically after CleanOld
// deleted its file.
func (c *Catalog) Remove(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.index.Delete(path); err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeInternal,
			"removing catalog entry")
	}
	return nil
}

// Count returns the number of indexed checkpoints.
func (c *Catalog) Count() (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.DocCount()
}

// Close closes the underlying index.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Close()
}
