package index

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	pgvector "github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pageza/alchemorsel-recommender/internal/model"
)

// DefaultTable is the entries table used when none is configured.
const DefaultTable = "recipe_entries"

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// recipeEntry is one row of the entries table.
type recipeEntry struct {
	ID           string                 `gorm:"primaryKey;type:varchar(36)"`
	Name         string                 `gorm:"not null"`
	Ingredients  model.JSONBStringArray `gorm:"type:jsonb"`
	Instructions string
	Cuisine      string
	Tags         model.JSONBStringArray `gorm:"type:jsonb"`
	Nutrition    model.JSONBNutrition   `gorm:"type:jsonb"`
	Source       string
	SourceRow    int
	Embedding    pgvector.Vector `gorm:"type:vector"`
	UpdatedAt    time.Time
}

type scoredEntry struct {
	recipeEntry
	Score float64
}

// indexMeta records the dimension of each entries table. Postgres could read
// it from the column type; SQLite cannot.
type indexMeta struct {
	Collection string `gorm:"primaryKey"`
	Dimension  int    `gorm:"not null"`
	UpdatedAt  time.Time
}

func (indexMeta) TableName() string { return "vector_index_meta" }

// SQLIndex stores entries in a relational table through gorm. On Postgres the
// embedding column is a pgvector vector(N) and queries use the <=> cosine
// distance operator; other dialects store the vector as text and rank in
// process.
type SQLIndex struct {
	db    *gorm.DB
	table string
}

// NewSQLIndex wraps an open gorm connection. The caller keeps ownership of db.
func NewSQLIndex(db *gorm.DB, table string) (*SQLIndex, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SQLIndex{db: db, table: table}, nil
}

func (s *SQLIndex) postgres() bool {
	return s.db.Dialector.Name() == "postgres"
}

func (s *SQLIndex) EnsureIndex(ctx context.Context, dim int, recreate bool) error {
	if dim <= 0 {
		return fmt.Errorf("invalid dimension %d", dim)
	}
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&indexMeta{}); err != nil {
		return fmt.Errorf("failed to migrate index metadata: %w", err)
	}

	existing, err := s.Dimension(ctx)
	switch {
	case err == nil && existing == dim:
		return nil
	case err == nil && !recreate:
		return existingMismatch(existing, dim)
	case err != nil && !errors.Is(err, ErrIndexNotFound):
		return err
	}

	if s.postgres() {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("failed to enable pgvector: %w", err)
		}
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Migrator().DropTable(s.table); err != nil {
			return fmt.Errorf("failed to drop %s: %w", s.table, err)
		}
		if err := tx.Exec(s.createTableSQL(dim)).Error; err != nil {
			return fmt.Errorf("failed to create %s: %w", s.table, err)
		}
		if s.postgres() {
			hnsw := fmt.Sprintf("CREATE INDEX %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)", s.table, s.table)
			if err := tx.Exec(hnsw).Error; err != nil {
				return fmt.Errorf("failed to create vector index on %s: %w", s.table, err)
			}
		}
		meta := indexMeta{Collection: s.table, Dimension: dim}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&meta).Error
	})
}

func (s *SQLIndex) createTableSQL(dim int) string {
	if s.postgres() {
		return fmt.Sprintf(`CREATE TABLE %s (
	id varchar(36) PRIMARY KEY,
	name text NOT NULL,
	ingredients jsonb NOT NULL DEFAULT '[]',
	instructions text,
	cuisine text,
	tags jsonb NOT NULL DEFAULT '[]',
	nutrition jsonb NOT NULL DEFAULT '{}',
	source text,
	source_row integer,
	embedding vector(%d) NOT NULL,
	updated_at timestamptz
)`, s.table, dim)
	}
	return fmt.Sprintf(`CREATE TABLE %s (
	id varchar(36) PRIMARY KEY,
	name text NOT NULL,
	ingredients text NOT NULL DEFAULT '[]',
	instructions text,
	cuisine text,
	tags text NOT NULL DEFAULT '[]',
	nutrition text NOT NULL DEFAULT '{}',
	source text,
	source_row integer,
	embedding text NOT NULL,
	updated_at datetime
)`, s.table)
}

func (s *SQLIndex) Dimension(ctx context.Context) (int, error) {
	db := s.db.WithContext(ctx)
	if !db.Migrator().HasTable(&indexMeta{}) || !db.Migrator().HasTable(s.table) {
		return 0, ErrIndexNotFound
	}
	var meta indexMeta
	err := db.Where("collection = ?", s.table).First(&meta).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrIndexNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read index metadata: %w", err)
	}
	return meta.Dimension, nil
}

func (s *SQLIndex) Upsert(ctx context.Context, entries []model.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	dim, err := s.Dimension(ctx)
	if err != nil {
		return err
	}
	if err := validateEntries(entries, dim); err != nil {
		return err
	}

	rows := make([]recipeEntry, len(entries))
	for i, e := range entries {
		rows[i] = recipeEntry{
			ID:           e.ID,
			Name:         e.Recipe.Name,
			Ingredients:  model.JSONBStringArray(e.Recipe.Ingredients),
			Instructions: e.Recipe.Instructions,
			Cuisine:      e.Recipe.Cuisine,
			Tags:         model.JSONBStringArray(e.Recipe.Tags),
			Nutrition:    model.JSONBNutrition(e.Recipe.Nutrition),
			Source:       e.Recipe.Source,
			SourceRow:    e.Recipe.Row,
			Embedding:    pgvector.NewVector(e.Vector),
		}
	}
	err = s.db.WithContext(ctx).Table(s.table).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to upsert %d entries: %w", len(rows), err)
	}
	return nil
}

func (s *SQLIndex) Query(ctx context.Context, vector []float32, topK int) ([]model.Match, error) {
	dim, err := s.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkQuery(vector, dim); err != nil {
		return nil, err
	}
	if s.postgres() {
		return s.queryPgvector(ctx, vector, topK)
	}

	var rows []recipeEntry
	if err := s.db.WithContext(ctx).Table(s.table).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	candidates := make([]model.IndexEntry, len(rows))
	for i, r := range rows {
		candidates[i] = model.IndexEntry{ID: r.ID, Vector: r.Embedding.Slice(), Recipe: r.recipe()}
	}
	return rankByCosine(vector, candidates, topK), nil
}

func (s *SQLIndex) queryPgvector(ctx context.Context, vector []float32, topK int) ([]model.Match, error) {
	vec := pgvector.NewVector(vector)
	var rows []scoredEntry
	err := s.db.WithContext(ctx).Table(s.table).
		Select("*, 1 - (embedding <=> ?) AS score", vec).
		Clauses(clause.OrderBy{Expression: clause.Expr{SQL: "embedding <=> ?, id", Vars: []interface{}{vec}}}).
		Limit(topK).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	matches := make([]model.Match, len(rows))
	for i, r := range rows {
		matches[i] = model.Match{ID: r.ID, Score: float32(r.Score), Recipe: r.recipe()}
	}
	return matches, nil
}

func (r recipeEntry) recipe() model.Recipe {
	return model.Recipe{
		Name:         r.Name,
		Ingredients:  []string(r.Ingredients),
		Instructions: r.Instructions,
		Cuisine:      r.Cuisine,
		Tags:         []string(r.Tags),
		Nutrition:    model.Nutrition(r.Nutrition),
		Source:       r.Source,
		Row:          r.SourceRow,
	}
}

func (s *SQLIndex) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close is a no-op; the database handle belongs to the caller.
func (s *SQLIndex) Close() error { return nil }
