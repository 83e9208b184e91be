// Package indexer turns documents into searchable points and keeps every
// source's points consistent across re-indexing.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bull/znatok/internal/chunker"
	"github.com/bull/znatok/internal/embedding"
	"github.com/bull/znatok/internal/extract"
	"github.com/bull/znatok/internal/storage"
)

// ErrEmptyDocument is returned when a document yields no chunks.
var ErrEmptyDocument = extract.ErrEmptyDocument

// ErrEmptySource is returned when a document has no source identifier.
var ErrEmptySource = errors.New("source is required")

// IndexResult contains statistics about a batch indexing operation.
type IndexResult struct {
	TotalDocs      int
	TotalChunks    int
	SuccessfulDocs int
	FailedDocs     []FailedDoc
	Duration       time.Duration
}

// FailedDoc represents a document that failed to index.
type FailedDoc struct {
	Source string
	Reason string
}

// Input is one document of a batch. Exactly one of Path, Data or Text is used,
// in that order of preference.
type Input struct {
	Source      string
	Department  string
	Path        string
	Data        []byte
	ContentType string // declared type of Data, may be empty
	Text        string
}

// Document is the listing view of an indexed source.
type Document struct {
	Source     string    `json:"filename"`
	Department string    `json:"department"`
	UploadedAt time.Time `json:"uploaded_at"`
	Chunks     int       `json:"chunks"`
}

// Pipeline orchestrates extraction, chunking, embedding and storage.
type Pipeline struct {
	extractor *extract.Extractor
	chunker   *chunker.Chunker
	embedder  embedding.Embedder
	index     storage.Index
	gens      *generations
	locks     *sourceLocks
	now       func() time.Time
	logger    *zap.Logger
}

// NewPipeline creates a new indexing pipeline with the given components.
func NewPipeline(
	extractor *extract.Extractor,
	chunker *chunker.Chunker,
	embedder embedding.Embedder,
	index storage.Index,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		gens:      newGenerations(),
		locks:     newSourceLocks(),
		now:       time.Now,
		logger:    logger.With(zap.String("component", "indexer")),
	}
}

// Restore rebuilds the generation view from the index after a restart. The
// newest generation of each source stays visible; older ones are hidden and
// then deleted.
func (p *Pipeline) Restore(ctx context.Context) error {
	infos, err := p.index.ListGenerations(ctx)
	if err != nil {
		return fmt.Errorf("list generations: %w", err)
	}

	p.gens.reset()
	stale := make(map[string]string)
	for _, info := range infos {
		// Listing is ordered by source, newest generation first.
		if _, seen := p.gens.currentOf(info.Source); !seen {
			p.gens.commit(info.Source, info.Generation)
			continue
		}
		p.gens.hide(info.Source, info.Generation)
		stale[info.Source], _ = p.gens.currentOf(info.Source)
	}

	for source, current := range stale {
		if current == "" {
			// Points written before generations existed cannot be told apart.
			continue
		}
		if err := p.deleteStale(ctx, source, current); err != nil {
			p.logger.Warn("Failed to delete stale generations", zap.String("source", source), zap.Error(err))
		}
	}

	p.logger.Info("Restored generations",
		zap.Int("generations", len(infos)),
		zap.Int("stale_sources", len(stale)),
	)
	return nil
}

// IndexFile extracts and indexes the file at path under source.
func (p *Pipeline) IndexFile(ctx context.Context, path, source, department string) (int, error) {
	text, err := p.extractor.ExtractFile(path, source)
	if err != nil {
		return 0, err
	}
	return p.IndexText(ctx, source, department, text)
}

// IndexBytes extracts and indexes an in-memory document. The source doubles
// as the filename for format dispatch; contentType decides when the source
// has no known extension.
func (p *Pipeline) IndexBytes(ctx context.Context, source, department, contentType string, data []byte) (int, error) {
	text, err := p.extractor.Extract(source, contentType, data)
	if err != nil {
		return 0, err
	}
	return p.IndexText(ctx, source, department, text)
}

// IndexText replaces every point of source with the chunks of text and
// returns the number of chunks written. Ingestion of one source is
// serialized; searches see either the old or the new chunk set, never both.
func (p *Pipeline) IndexText(ctx context.Context, source, department, text string) (int, error) {
	if source == "" {
		return 0, ErrEmptySource
	}
	if department == "" {
		department = storage.AllDepartments
	}

	chunks := p.chunker.Chunk(text)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%s: %w", source, ErrEmptyDocument)
	}

	unlock := p.locks.lock(source)
	defer unlock()

	vectors, err := p.embedder.EmbedPassages(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embeddings: %w", err)
	}

	gen := uuid.NewString()
	uploadedAt := p.now().UTC()
	points := make([]storage.Point, len(chunks))
	for i, chunk := range chunks {
		points[i] = storage.Point{
			ID:         uuid.NewString(),
			Vector:     vectors[i],
			Text:       chunk,
			Source:     source,
			Department: department,
			Generation: gen,
			ChunkIndex: i,
			UploadedAt: uploadedAt,
		}
	}

	p.gens.hide(source, gen)
	if err := p.index.Upsert(ctx, points); err != nil {
		// A partial write stays hidden; try to remove it.
		if derr := p.index.Delete(context.WithoutCancel(ctx), storage.Selector{Generation: gen}); derr != nil {
			p.logger.Warn("Failed to remove partial generation",
				zap.String("source", source), zap.String("generation", gen), zap.Error(derr))
		} else {
			p.gens.forget(gen)
		}
		return 0, fmt.Errorf("store chunks: %w", err)
	}

	p.gens.commit(source, gen)
	if err := p.deleteStale(ctx, source, gen); err != nil {
		p.logger.Warn("Failed to delete previous generation, keeping it hidden",
			zap.String("source", source), zap.Error(err))
	}

	p.logger.Info("Indexed document",
		zap.String("source", source),
		zap.String("department", department),
		zap.Int("chunks", len(chunks)),
	)
	return len(chunks), nil
}

// IndexAll indexes a batch of documents, continuing past failures.
func (p *Pipeline) IndexAll(ctx context.Context, inputs []Input) *IndexResult {
	start := time.Now()
	result := &IndexResult{TotalDocs: len(inputs)}

	for _, in := range inputs {
		var (
			n   int
			err error
		)
		switch {
		case in.Path != "":
			n, err = p.IndexFile(ctx, in.Path, in.Source, in.Department)
		case in.Data != nil:
			n, err = p.IndexBytes(ctx, in.Source, in.Department, in.ContentType, in.Data)
		default:
			n, err = p.IndexText(ctx, in.Source, in.Department, in.Text)
		}
		if err != nil {
			p.logger.Warn("Failed to index document", zap.String("source", in.Source), zap.Error(err))
			result.FailedDocs = append(result.FailedDocs, FailedDoc{Source: in.Source, Reason: err.Error()})
			continue
		}
		result.SuccessfulDocs++
		result.TotalChunks += n
	}

	result.Duration = time.Since(start)
	p.logger.Info("Indexing complete",
		zap.Int("successful", result.SuccessfulDocs),
		zap.Int("failed", len(result.FailedDocs)),
		zap.Int("chunks", result.TotalChunks),
		zap.Duration("duration", result.Duration),
	)
	return result
}

// DeleteSource removes every point of source.
func (p *Pipeline) DeleteSource(ctx context.Context, source string) error {
	if source == "" {
		return ErrEmptySource
	}
	unlock := p.locks.lock(source)
	defer unlock()

	if err := p.index.Delete(ctx, storage.Selector{Source: source}); err != nil {
		return fmt.Errorf("delete %s: %w", source, err)
	}
	p.gens.drop(source)
	p.logger.Info("Deleted document", zap.String("source", source))
	return nil
}

// Documents lists indexed sources with the department and upload time of
// their visible generation.
func (p *Pipeline) Documents(ctx context.Context) ([]Document, error) {
	infos, err := p.index.ListGenerations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}

	docs := make([]Document, 0, len(infos))
	seen := make(map[string]struct{}, len(infos))
	for _, info := range infos {
		if p.gens.isHidden(info.Generation) {
			continue
		}
		if _, ok := seen[info.Source]; ok {
			continue
		}
		seen[info.Source] = struct{}{}
		docs = append(docs, Document{
			Source:     info.Source,
			Department: info.Department,
			UploadedAt: info.UploadedAt,
			Chunks:     info.Chunks,
		})
	}
	return docs, nil
}

// Reset drops the collection and recreates it empty.
func (p *Pipeline) Reset(ctx context.Context) error {
	if err := p.index.Reset(ctx); err != nil {
		return fmt.Errorf("reset collection: %w", err)
	}
	p.gens.reset()
	p.logger.Info("Collection reset")
	return nil
}

// HiddenGenerations returns the generations searches must exclude.
func (p *Pipeline) HiddenGenerations() []string {
	return p.gens.hiddenList()
}

func (p *Pipeline) deleteStale(ctx context.Context, source, current string) error {
	if err := p.index.Delete(ctx, storage.Selector{Source: source, ExceptGeneration: current}); err != nil {
		return err
	}
	p.gens.release(source)
	return nil
}
