package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
)

const memberAnalyzerName = "member_text"

// BleveIndex implements MemberIndex on Bleve v2. Names and aliases are
// analyzed with a unicode tokenizer plus lowercasing only — no
// stemming, since member names are proper nouns.
type BleveIndex struct {
	mu    sync.RWMutex
	index bleve.Index
	ids   map[string]struct{}
}

var _ MemberIndex = (*BleveIndex)(nil)

type bleveDoc struct {
	Content string `json:"content"`
}

// NewBleveIndex opens (or creates) a Bleve index at path. An empty
// path builds an in-memory index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	m, err := buildMemberMapping()
	if err != nil {
		return nil, err
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve index: %w", err)
	}

	b := &BleveIndex{index: idx, ids: map[string]struct{}{}}
	if err := b.loadIDs(); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return b, nil
}

func buildMemberMapping() (mapping.IndexMapping, error) {
	m := bleve.NewIndexMapping()
	if err := m.AddCustomAnalyzer(memberAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, fmt.Errorf("register analyzer: %w", err)
	}

	content := bleve.NewTextFieldMapping()
	content.Analyzer = memberAnalyzerName
	content.Store = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", content)
	m.DefaultMapping = doc
	m.DefaultAnalyzer = memberAnalyzerName
	return m, nil
}

// loadIDs restores the id set from a reopened on-disk index.
func (b *BleveIndex) loadIDs() error {
	count, err := b.index.DocCount()
	if err != nil {
		return fmt.Errorf("doc count: %w", err)
	}
	if count == 0 {
		return nil
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	res, err := b.index.Search(req)
	if err != nil {
		return fmt.Errorf("load ids: %w", err)
	}
	for _, hit := range res.Hits {
		b.ids[hit.ID] = struct{}{}
	}
	return nil
}

// Rebuild replaces all documents in a single batch: deletes of the
// previous ids and inserts of the new set commit together.
func (b *BleveIndex) Rebuild(ctx context.Context, docs []Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.index.NewBatch()
	for id := range b.ids {
		batch.Delete(id)
	}
	next := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		if err := batch.Index(doc.ID, bleveDoc{Content: doc.Text}); err != nil {
			return fmt.Errorf("index member %s: %w", doc.ID, err)
		}
		next[doc.ID] = struct{}{}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("apply batch: %w", err)
	}
	b.ids = next
	return nil
}

// Search returns member ids ranked by Bleve's scoring.
func (b *BleveIndex) Search(ctx context.Context, keyword string, limit int) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if keyword == "" {
		return nil, nil
	}
	q := bleve.NewMatchQuery(keyword)
	q.SetField("content")
	q.Analyzer = memberAnalyzerName

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Close releases the underlying index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}
