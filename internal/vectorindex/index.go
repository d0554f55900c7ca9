package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"faq-rag/internal/models"
)

const (
	DefaultTopK           = 4
	DefaultCollectionName = "faq_collection"

	buildBatchSize = 32
)

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	errNoTextEmbedding   = errors.New("index only accepts precomputed embeddings")
)

// Embedder is the part of the embedding model the index needs to build.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Hit is a retrieved record. Distance is 1 - cosine similarity.
type Hit struct {
	Record     models.Record
	Similarity float32
	Distance   float32
}

// Index is an exhaustive cosine index over records, backed by a chromem-go
// collection. Document IDs are insertion positions, which are also used to
// break ties between equally similar records.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	name       string
	records    []models.Record
	vectors    [][]float32
	dims       int
	builtAt    time.Time
}

type Option func(*Index)

func WithCollectionName(name string) Option {
	return func(idx *Index) {
		if name != "" {
			idx.name = name
		}
	}
}

func WithBuiltAt(t time.Time) Option {
	return func(idx *Index) { idx.builtAt = t }
}

// Build embeds every record, in order, and indexes the result.
func Build(ctx context.Context, records iter.Seq2[models.Record, error], embedder Embedder, opts ...Option) (*Index, error) {
	var (
		all     []models.Record
		vectors [][]float32
		batch   []models.Record
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		texts := make([]string, len(batch))
		for i, r := range batch {
			texts[i] = r.Content
		}
		vecs, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		all = append(all, batch...)
		vectors = append(vectors, vecs...)
		log.Debug().Int("embedded", len(all)).Msg("Embedded records")
		batch = batch[:0]
		return nil
	}

	for rec, err := range records {
		if err != nil {
			return nil, err
		}
		batch = append(batch, rec)
		if len(batch) == buildBatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return New(ctx, all, vectors, opts...)
}

// New indexes records with precomputed vectors; vectors[i] belongs to records[i].
func New(ctx context.Context, records []models.Record, vectors [][]float32, opts ...Option) (*Index, error) {
	if len(records) != len(vectors) {
		return nil, fmt.Errorf("got %d records and %d vectors", len(records), len(vectors))
	}
	idx := &Index{
		name:    DefaultCollectionName,
		builtAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(idx)
	}

	docs := make([]chromem.Document, len(records))
	for i, vec := range vectors {
		if i == 0 {
			idx.dims = len(vec)
		}
		if len(vec) == 0 || len(vec) != idx.dims {
			return nil, fmt.Errorf("vector %d: %w: got %d, want %d", i, ErrDimensionMismatch, len(vec), idx.dims)
		}
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(i),
			Embedding: append([]float32(nil), vec...),
		}
	}

	idx.db = chromem.NewDB()
	c, err := idx.db.CreateCollection(idx.name, nil, noTextEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	if len(docs) > 0 {
		if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return nil, fmt.Errorf("failed to add documents: %w", err)
		}
	}
	idx.collection = c
	idx.records = append([]models.Record(nil), records...)
	idx.vectors = vectors
	return idx, nil
}

// fromCollection wraps an imported collection. The stored vectors are read
// back so the index can be saved to another store.
func fromCollection(ctx context.Context, db *chromem.DB, c *chromem.Collection, records []models.Record, builtAt time.Time) (*Index, error) {
	if c.Count() != len(records) {
		return nil, fmt.Errorf("collection has %d documents, metadata has %d records", c.Count(), len(records))
	}
	idx := &Index{
		db:         db,
		collection: c,
		name:       c.Name,
		records:    records,
		vectors:    make([][]float32, len(records)),
		builtAt:    builtAt,
	}
	for i := range records {
		doc, err := c.GetByID(ctx, strconv.Itoa(i))
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		if i == 0 {
			idx.dims = len(doc.Embedding)
		}
		if len(doc.Embedding) == 0 || len(doc.Embedding) != idx.dims {
			return nil, fmt.Errorf("document %d: %w", i, ErrDimensionMismatch)
		}
		idx.vectors[i] = doc.Embedding
	}
	return idx, nil
}

// Query returns the k records nearest to vec by ascending distance. Equal
// distances keep insertion order. An empty index yields no hits.
func (idx *Index) Query(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	n := idx.collection.Count()
	if n == 0 {
		return []Hit{}, nil
	}
	if len(vec) != idx.dims {
		return nil, fmt.Errorf("query: %w: got %d, want %d", ErrDimensionMismatch, len(vec), idx.dims)
	}
	if k <= 0 {
		k = DefaultTopK
	}
	k = min(k, n)

	// score everything so the cut at k does not depend on how chromem
	// orders equal similarities
	results, err := idx.collection.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	type scored struct {
		pos int
		sim float32
	}
	ranked := make([]scored, 0, len(results))
	for _, r := range results {
		pos, err := strconv.Atoi(r.ID)
		if err != nil || pos < 0 || pos >= len(idx.records) {
			return nil, fmt.Errorf("unknown document id %q", r.ID)
		}
		ranked = append(ranked, scored{pos: pos, sim: r.Similarity})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].sim != ranked[j].sim {
			return ranked[i].sim > ranked[j].sim
		}
		return ranked[i].pos < ranked[j].pos
	})

	hits := make([]Hit, k)
	for i := range hits {
		s := ranked[i]
		hits[i] = Hit{
			Record:     idx.records[s.pos],
			Similarity: s.sim,
			Distance:   1 - s.sim,
		}
	}
	return hits, nil
}

func (idx *Index) Len() int { return len(idx.records) }

func (idx *Index) Dimensions() int { return idx.dims }

func (idx *Index) Name() string { return idx.name }

func (idx *Index) BuiltAt() time.Time { return idx.builtAt }

// Records returns a copy of the indexed records in insertion order.
func (idx *Index) Records() []models.Record {
	return append([]models.Record(nil), idx.records...)
}

// Vector returns the stored vector of the record at position i.
func (idx *Index) Vector(i int) []float32 {
	return append([]float32(nil), idx.vectors[i]...)
}

func noTextEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errNoTextEmbedding
}
