package knowledge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/knowledge"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/dbctx"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

type ChunkRepo interface {
	HasHash(dbc dbctx.Context, hash string) (bool, error)
	Insert(dbc dbctx.Context, rec types.Record) (bool, error)
	Search(dbc dbctx.Context, query []float32, k int, topic string) ([]types.Match, error)
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, log *logger.Logger) ChunkRepo {
	return &chunkRepo{db: db, log: log.With("repo", "ChunkRepo")}
}

// VectorLiteral renders v as a pgvector text literal with fixed precision.
func VectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v)*10 + 2)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', 6, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func (r *chunkRepo) HasHash(dbc dbctx.Context, hash string) (bool, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return false, fmt.Errorf("missing chunk_hash")
	}
	var n int64
	if err := dbc.DB(r.db).
		Model(&types.Chunk{}).
		Where("chunk_hash = ?", hash).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// Insert reports false when a chunk with the same hash already exists.
func (r *chunkRepo) Insert(dbc dbctx.Context, rec types.Record) (bool, error) {
	if strings.TrimSpace(rec.Hash) == "" {
		return false, fmt.Errorf("missing chunk_hash")
	}
	if len(rec.Embedding) == 0 {
		return false, fmt.Errorf("missing embedding")
	}
	topic := rec.Topic
	if topic == "" {
		topic = types.DefaultTopic
	}
	row := &types.Chunk{
		Content:   rec.Content,
		Topic:     topic,
		Source:    rec.Source,
		ChunkHash: rec.Hash,
		Embedding: pgvector.NewVector(rec.Embedding),
		Metadata:  rec.Meta.JSON(),
	}
	res := dbc.DB(r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "chunk_hash"}}, DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

type matchRow struct {
	Content  string
	Topic    string
	Source   string
	Metadata datatypes.JSON
	Distance float64
}

// Search orders by L2 distance, breaking ties on evidence priority.
func (r *chunkRepo) Search(dbc dbctx.Context, query []float32, k int, topic string) ([]types.Match, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("missing query vector")
	}
	if k <= 0 {
		return []types.Match{}, nil
	}
	lit := VectorLiteral(query)
	sql := `
		SELECT content, topic, source, metadata, embedding <-> CAST(? AS vector) AS distance
		FROM knowledge_chunks`
	args := []any{lit}
	if topic = strings.TrimSpace(topic); topic != "" {
		sql += ` WHERE topic = ?`
		args = append(args, topic)
	}
	sql += `
		ORDER BY distance ASC, COALESCE((metadata->>'evidence_priority')::int, 0) DESC
		LIMIT ?`
	args = append(args, k)

	var rows []matchRow
	if err := dbc.DB(r.db).Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.Match, 0, len(rows))
	for _, row := range rows {
		meta := types.ParseMetadata(row.Metadata)
		out = append(out, types.Match{
			Content:          row.Content,
			Topic:            row.Topic,
			Source:           row.Source,
			Filename:         meta.Filename,
			Distance:         row.Distance,
			EvidenceLevel:    meta.EvidenceLevel,
			EvidencePriority: meta.EvidencePriority,
		})
	}
	return out, nil
}

// Store adapts a ChunkRepo to the context-based knowledge store contract.
type Store struct {
	repo ChunkRepo
}

func NewStore(repo ChunkRepo) *Store {
	return &Store{repo: repo}
}

func (s *Store) HasHash(ctx context.Context, hash string) (bool, error) {
	return s.repo.HasHash(dbctx.New(ctx), hash)
}

func (s *Store) Insert(ctx context.Context, rec types.Record) (bool, error) {
	return s.repo.Insert(dbctx.New(ctx), rec)
}

func (s *Store) Search(ctx context.Context, query []float32, k int, topic string) ([]types.Match, error) {
	return s.repo.Search(dbctx.New(ctx), query, k, topic)
}
