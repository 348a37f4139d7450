package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/chat"
)

// AutoMigrateAll creates the conversation tables. Works on postgres and sqlite.
func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&chat.User{},
		&chat.Conversation{},
		&chat.Message{},
	)
}

// EnsureKnowledgeSchema creates the pgvector-backed knowledge table. Postgres only.
func EnsureKnowledgeSchema(db *gorm.DB, embedDim int) error {
	if embedDim <= 0 {
		return fmt.Errorf("embedding dimension must be positive (got %d)", embedDim)
	}
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector;`).Error; err != nil {
		return fmt.Errorf("enable vector extension: %w", err)
	}
	if err := db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS knowledge_chunks (
			id uuid PRIMARY KEY DEFAULT uuid_generate_v4(),
			content text NOT NULL,
			topic varchar(64),
			source varchar(255),
			chunk_hash varchar(64) NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata jsonb NOT NULL DEFAULT '{}',
			created_at timestamptz NOT NULL DEFAULT now()
		);
	`, embedDim)).Error; err != nil {
		return fmt.Errorf("create knowledge_chunks: %w", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_knowledge_chunks_hash ON knowledge_chunks (chunk_hash);`).Error; err != nil {
		return fmt.Errorf("create idx_knowledge_chunks_hash: %w", err)
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_topic ON knowledge_chunks (topic);`).Error; err != nil {
		return fmt.Errorf("create idx_knowledge_chunks_topic: %w", err)
	}
	return nil
}

// Migrate runs every migration appropriate for the service's dialect.
func (s *Service) Migrate(embedDim int, withKnowledge bool) error {
	if err := AutoMigrateAll(s.db); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	if withKnowledge && s.dialect == DialectPostgres {
		if err := EnsureKnowledgeSchema(s.db, embedDim); err != nil {
			return err
		}
	}
	s.log.Info("Migrations applied", "dialect", s.dialect, "knowledge", withKnowledge && s.dialect == DialectPostgres)
	return nil
}
