package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"faq-rag/internal/models"
	"faq-rag/internal/vectorindex"
)

const insertChunkSize = 500

type RecordRow struct {
	bun.BaseModel `bun:"alias:r"`
	Position      int       `bun:"position,pk"`
	Source        string    `bun:"source,notnull"`
	Row           int       `bun:"row,notnull"`
	Content       string    `bun:"content,notnull"`
	Embedding     []float32 `bun:"embedding,array,notnull"`
}

type MetaRow struct {
	bun.BaseModel `bun:"alias:m"`
	ID            int       `bun:"id,pk"`
	Collection    string    `bun:"collection,notnull"`
	Count         int       `bun:"count,notnull"`
	Dimensions    int       `bun:"dimensions,notnull"`
	BuiltAt       time.Time `bun:"built_at,notnull"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(url, password string) (*sql.DB, error) {
	if url == "" {
		return nil, errors.New("database url is empty")
	}
	dsn := url
	if !strings.Contains(dsn, "sslmode=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "sslmode=disable"
	}
	opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
	if password != "" {
		opts = append(opts, pgdriver.WithPassword(password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
}

// QuoteTable quotes a possibly schema qualified table name.
func QuoteTable(name string) (string, error) {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	for i, p := range parts {
		if p == "" {
			return "", fmt.Errorf("invalid table name %q", name)
		}
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, "."), nil
}

// Store keeps a single index in two tables: one row per record, with its
// embedding, and one metadata row. Save replaces both in one transaction.
type Store struct {
	db      *bun.DB
	records string
	meta    string
}

// NewStore creates the tables if needed. table names the records table;
// the metadata table is table + "_meta".
func NewStore(ctx context.Context, db *bun.DB, table string) (*Store, error) {
	records, err := QuoteTable(table)
	if err != nil {
		return nil, err
	}
	meta, err := QuoteTable(table + "_meta")
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, records: records, meta: meta}
	if err := s.InitDB(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) InitDB(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*RecordRow)(nil)).ModelTableExpr(s.records).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create %s: %w", s.records, err)
	}
	if _, err := s.db.NewCreateTable().Model((*MetaRow)(nil)).ModelTableExpr(s.meta).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create %s: %w", s.meta, err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, idx *vectorindex.Index) error {
	records := idx.Records()
	rows := make([]RecordRow, len(records))
	for i, r := range records {
		rows[i] = RecordRow{
			Position:  i,
			Source:    r.Source,
			Row:       r.Row,
			Content:   r.Content,
			Embedding: idx.Vector(i),
		}
	}
	meta := &MetaRow{
		ID:         1,
		Collection: idx.Name(),
		Count:      idx.Len(),
		Dimensions: idx.Dimensions(),
		BuiltAt:    idx.BuiltAt(),
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+s.records); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+s.meta); err != nil {
			return err
		}
		for start := 0; start < len(rows); start += insertChunkSize {
			chunk := rows[start:min(start+insertChunkSize, len(rows))]
			if _, err := tx.NewInsert().Model(&chunk).ModelTableExpr(s.records + " AS r").Exec(ctx); err != nil {
				return err
			}
		}
		_, err := tx.NewInsert().Model(meta).ModelTableExpr(s.meta + " AS m").Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save index to %s: %w", s.records, err)
	}
	log.Info().Str("table", s.records).Int("records", len(rows)).Msg("Saved index")
	return nil
}

func (s *Store) Load(ctx context.Context) (*vectorindex.Index, error) {
	var meta MetaRow
	err := s.db.NewSelect().Model(&meta).ModelTableExpr(s.meta+" AS m").Where("m.id = ?", 1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUndefinedTable(err) {
			return nil, &vectorindex.IndexNotFoundError{Path: s.records, Err: err}
		}
		return nil, err
	}

	var rows []RecordRow
	if err := s.db.NewSelect().Model(&rows).ModelTableExpr(s.records + " AS r").Order("r.position ASC").Scan(ctx); err != nil {
		return nil, err
	}
	if len(rows) != meta.Count {
		return nil, &vectorindex.IndexNotFoundError{
			Path: s.records,
			Err:  fmt.Errorf("metadata lists %d records, table has %d", meta.Count, len(rows)),
		}
	}

	records := make([]models.Record, len(rows))
	vectors := make([][]float32, len(rows))
	for i, row := range rows {
		if row.Position != i {
			return nil, &vectorindex.IndexNotFoundError{Path: s.records, Err: fmt.Errorf("missing record at position %d", i)}
		}
		records[i] = models.Record{Content: row.Content, Source: row.Source, Row: row.Row}
		vectors[i] = row.Embedding
	}
	idx, err := vectorindex.New(ctx, records, vectors,
		vectorindex.WithCollectionName(meta.Collection),
		vectorindex.WithBuiltAt(meta.BuiltAt))
	if err != nil {
		return nil, &vectorindex.IndexNotFoundError{Path: s.records, Err: err}
	}
	if idx.Len() > 0 && idx.Dimensions() != meta.Dimensions {
		return nil, &vectorindex.IndexNotFoundError{
			Path: s.records,
			Err:  fmt.Errorf("stored vectors have %d dimensions, metadata says %d", idx.Dimensions(), meta.Dimensions),
		}
	}
	log.Debug().Str("table", s.records).Int("records", idx.Len()).Msg("Loaded index")
	return idx, nil
}

// DropTables removes both tables.
func (s *Store) DropTables(ctx context.Context) error {
	for _, t := range []string{s.records, s.meta} {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
			return err
		}
	}
	return nil
}

func isUndefinedTable(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "42P01"
}
