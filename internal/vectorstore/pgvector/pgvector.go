package pgvector

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	pgv "github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"pdfchat/internal/domain"
	"pdfchat/internal/vectorstore"
)

// Config holds PostgreSQL connection settings.
type Config struct {
	DSN   string
	Debug bool
}

type chunkRow struct {
	bun.BaseModel `bun:"table:pdfchat_chunks,alias:c"`

	ID          int64      `bun:"id,pk,autoincrement"`
	IndexID     uuid.UUID  `bun:"index_id,type:uuid,notnull"`
	Position    int        `bun:"position,notnull"`
	Content     string     `bun:"content,notnull"`
	StartOffset int        `bun:"start_offset,notnull"`
	EndOffset   int        `bun:"end_offset,notnull"`
	Overlap     int        `bun:"overlap,notnull"`
	Embedding   pgv.Vector `bun:"embedding,type:vector,notnull"`
	Distance    float64    `bun:"distance,scanonly"`
}

// Backend stores every index as a set of rows tagged with the index id.
type Backend struct {
	db *bun.DB
}

// Open connects to PostgreSQL and prepares the chunk table.
func Open(ctx context.Context, cfg Config) (*Backend, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	b := &Backend{db: db}
	if err := b.setup(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) setup(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("enable pgvector extension: %w", err)
	}
	if _, err := b.db.NewCreateTable().Model((*chunkRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create chunk table: %w", err)
	}
	_, err := b.db.NewCreateIndex().
		Model((*chunkRow)(nil)).
		Index("pdfchat_chunks_index_id_idx").
		IfNotExists().
		Column("index_id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create chunk index: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (b *Backend) Close() error {
	return b.db.Close()
}

// Build implements vectorstore.Backend.
func (b *Backend) Build(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) (vectorstore.Index, error) {
	if _, err := vectorstore.CheckInput(chunks, vectors); err != nil {
		return nil, err
	}
	id := uuid.New()
	rows := make([]chunkRow, len(chunks))
	for i, c := range chunks {
		rows[i] = chunkRow{
			IndexID:     id,
			Position:    c.Index,
			Content:     c.Text,
			StartOffset: c.Start,
			EndOffset:   c.End,
			Overlap:     c.Overlap,
			Embedding:   pgv.NewVector(vectors[i]),
		}
	}
	err := b.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert chunks: %w", err)
	}
	log.Debug().Str("index_id", id.String()).Int("chunks", len(rows)).Msg("Stored index in pgvector")
	return &Index{db: b.db, id: id, count: len(chunks)}, nil
}

// Index is the set of rows belonging to one build.
type Index struct {
	db    *bun.DB
	id    uuid.UUID
	count int
}

// Search implements vectorstore.Index using cosine distance.
func (x *Index) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	var rows []chunkRow
	err := x.db.NewSelect().
		Model(&rows).
		Column("position", "content", "start_offset", "end_offset", "overlap").
		ColumnExpr("embedding <=> ? AS distance", pgv.NewVector(vector)).
		Where("index_id = ?", x.id).
		OrderExpr("distance ASC, position ASC").
		Limit(vectorstore.ClampTopK(topK, x.count)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	results := make([]domain.SearchResult, len(rows))
	for i, r := range rows {
		results[i] = domain.SearchResult{
			Chunk: domain.Chunk{
				Index:   r.Position,
				Text:    r.Content,
				Start:   r.StartOffset,
				End:     r.EndOffset,
				Overlap: r.Overlap,
			},
			Score: 1 - r.Distance,
		}
	}
	return results, nil
}

// Len implements vectorstore.Index.
func (x *Index) Len() int { return x.count }

// Close deletes the rows of this index.
func (x *Index) Close() error {
	_, err := x.db.NewDelete().
		Model((*chunkRow)(nil)).
		Where("index_id = ?", x.id).
		Exec(context.Background())
	return err
}
