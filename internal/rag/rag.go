package rag

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"faq-rag/internal/models"
	"faq-rag/internal/vectorindex"
)

var (
	ErrNoIndex       = errors.New("no index has been built")
	ErrBusy          = errors.New("another operation is in progress")
	ErrEmptyQuestion = errors.New("question is empty")
)

type State int

const (
	StateIdle State = iota
	StateIndexBuilding
	StateIndexReady
	StateAnswering
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateIndexBuilding:
		return "index_building"
	case StateIndexReady:
		return "index_ready"
	case StateAnswering:
		return "answering"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Source yields the knowledge base records. Every call starts a fresh read.
type Source interface {
	Records() iter.Seq2[models.Record, error]
}

// Embedder embeds documents at build time and questions at answer time.
type Embedder interface {
	vectorindex.Embedder
	QueryEmbedder
}

type Stats struct {
	Records    int       `json:"records"`
	Dimensions int       `json:"dimensions"`
	BuiltAt    time.Time `json:"built_at"`
}

type Status struct {
	State State `json:"state"`
	Stats
}

// Orchestrator owns the current index and serializes rebuilds and
// questions. A call that conflicts with one in progress fails with ErrBusy.
type Orchestrator struct {
	source    Source
	embedder  Embedder
	store     vectorindex.Store
	generator Generator
	opts      AnswerOptions
	name      string

	mu    sync.Mutex
	state State
	idx   *vectorindex.Index
}

type Option func(*Orchestrator)

func WithTopK(k int) Option {
	return func(o *Orchestrator) { o.opts.TopK = k }
}

func WithContextLimit(n int) Option {
	return func(o *Orchestrator) { o.opts.ContextLimit = n }
}

func WithCollectionName(name string) Option {
	return func(o *Orchestrator) { o.name = name }
}

// New creates an orchestrator in the Idle state. store may be nil, in which
// case indexes only live in memory.
func New(source Source, embedder Embedder, store vectorindex.Store, generator Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:    source,
		embedder:  embedder,
		store:     store,
		generator: generator,
		opts:      AnswerOptions{TopK: vectorindex.DefaultTopK},
		name:      vectorindex.DefaultCollectionName,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open restores the persisted index, if there is one.
func (o *Orchestrator) Open(ctx context.Context) error {
	if o.store == nil {
		return nil
	}
	if err := o.begin(StateIndexBuilding, StateIdle); err != nil {
		return err
	}

	idx, err := o.store.Load(ctx)
	if err != nil {
		o.finish(StateIdle, nil)
		if errors.Is(err, vectorindex.ErrIndexNotFound) {
			log.Info().Err(err).Msg("No saved index, starting idle")
			return nil
		}
		return err
	}
	o.finish(StateIndexReady, idx)
	log.Info().Int("records", idx.Len()).Time("built_at", idx.BuiltAt()).Msg("Restored saved index")
	return nil
}

// Rebuild reads every record, embeds it and replaces the index. On failure
// the in-memory index is dropped and the orchestrator returns to Idle.
func (o *Orchestrator) Rebuild(ctx context.Context) (Stats, error) {
	if err := o.begin(StateIndexBuilding, StateIdle, StateIndexReady); err != nil {
		return Stats{}, err
	}

	start := time.Now()
	idx, err := vectorindex.Build(ctx, o.source.Records(), o.embedder, vectorindex.WithCollectionName(o.name))
	if err == nil && o.store != nil {
		err = o.store.Save(ctx, idx)
	}
	if err != nil {
		o.finish(StateIdle, nil)
		log.Error().Err(err).Msg("Rebuild failed")
		return Stats{}, err
	}
	o.finish(StateIndexReady, idx)

	log.Info().Int("records", idx.Len()).Int("dimensions", idx.Dimensions()).Dur("elapsed", time.Since(start)).Msg("Rebuilt index")
	return statsOf(idx), nil
}

// Ask answers question from the current index.
func (o *Orchestrator) Ask(ctx context.Context, question string) (models.Answer, error) {
	if isBlank(question) {
		return models.Answer{}, ErrEmptyQuestion
	}

	o.mu.Lock()
	switch o.state {
	case StateIdle:
		o.mu.Unlock()
		return models.Answer{}, ErrNoIndex
	case StateIndexBuilding, StateAnswering:
		o.mu.Unlock()
		return models.Answer{}, ErrBusy
	}
	o.state = StateAnswering
	idx := o.idx
	o.mu.Unlock()

	defer o.finish(StateIndexReady, idx)
	return Answer(ctx, idx, o.embedder, o.generator, question, o.opts)
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{State: o.state}
	if o.idx != nil {
		st.Stats = statsOf(o.idx)
	}
	return st
}

// begin moves to next if the current state is one of from.
func (o *Orchestrator) begin(next State, from ...State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range from {
		if o.state == s {
			o.state = next
			return nil
		}
	}
	return ErrBusy
}

func (o *Orchestrator) finish(state State, idx *vectorindex.Index) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = state
	o.idx = idx
}

func statsOf(idx *vectorindex.Index) Stats {
	return Stats{Records: idx.Len(), Dimensions: idx.Dimensions(), BuiltAt: idx.BuiltAt()}
}
