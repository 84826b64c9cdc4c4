package history

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/cermatapp/cermat/internal/models"
)

// Index is the keyword search index backing the history search filter. It
// holds the title, abstract and keyword fields of every stored record.
type Index struct {
	index bleve.Index
}

// indexedRecord is the document shape stored in the index.
type indexedRecord struct {
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Keywords string `json:"keywords"`
}

// NewIndex creates or opens a search index at path. An empty path creates an
// in-memory index (used by tests and the CLI one-shot commands).
func NewIndex(path string) (*Index, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so a search for
	// "sanitation" matches the exact token the user typed.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("abstract", textFieldMapping)
	docMapping.AddFieldMappingsAt("keywords", textFieldMapping)
	im.DefaultMapping = docMapping

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create history index: %w", err)
		}
		return &Index{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open history index: %w", openErr)
		}
		return &Index{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create history index: %w", err)
	}
	return &Index{index: index}, nil
}

// Add indexes a record's searchable fields under its id.
func (ix *Index) Add(rec *models.ClassificationRecord) error {
	return ix.index.Index(strconv.FormatInt(rec.ID, 10), indexedRecord{
		Title:    rec.Title,
		Abstract: rec.Abstract,
		Keywords: rec.Keywords,
	})
}

// Delete removes a record from the index.
func (ix *Index) Delete(id int64) error {
	return ix.index.Delete(strconv.FormatInt(id, 10))
}

// Search returns the ids of records matching the query: token matching plus
// a prefix match so a partially typed word still finds its record.
func (ix *Index) Search(query string) (map[int64]bool, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	match := bleve.NewMatchQuery(query)
	prefix := bleve.NewPrefixQuery(strings.ToLower(query))
	req := bleve.NewSearchRequest(blevequery.NewDisjunctionQuery([]blevequery.Query{match, prefix}))
	req.Size = 10000
	results, err := ix.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("history search failed: %w", err)
	}
	ids := make(map[int64]bool, len(results.Hits))
	for _, hit := range results.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		ids[id] = true
	}
	return ids, nil
}

// Close closes the index.
func (ix *Index) Close() error {
	return ix.index.Close()
}
