package knowledge

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const DefaultTopic = "general"

// Chunk is a bounded slice of a source document with its embedding.
// The table is created by data/db migrations so the vector dimension can follow config.
type Chunk struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Content   string          `gorm:"column:content;type:text;not null" json:"content"`
	Topic     string          `gorm:"column:topic;type:varchar(64);index" json:"topic"`
	Source    string          `gorm:"column:source;type:varchar(255)" json:"source"`
	ChunkHash string          `gorm:"column:chunk_hash;type:varchar(64);uniqueIndex" json:"chunk_hash"`
	Embedding pgvector.Vector `gorm:"column:embedding;type:vector" json:"-"`
	Metadata  datatypes.JSON  `gorm:"column:metadata;type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (Chunk) TableName() string { return "knowledge_chunks" }

func (c *Chunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Metadata is the JSON document stored alongside each chunk.
type Metadata struct {
	Filename         string `json:"filename,omitempty"`
	EvidenceLevel    string `json:"evidence_level,omitempty"`
	EvidencePriority int    `json:"evidence_priority"`
}

func (m Metadata) JSON() datatypes.JSON {
	raw, err := json.Marshal(m)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}

func ParseMetadata(raw datatypes.JSON) Metadata {
	var m Metadata
	if len(raw) == 0 {
		return m
	}
	_ = json.Unmarshal(raw, &m)
	return m
}

// Match is one retrieval hit. Distance is smaller-is-better.
type Match struct {
	Content          string  `json:"content"`
	Topic            string  `json:"topic"`
	Source           string  `json:"source"`
	Filename         string  `json:"filename,omitempty"`
	Distance         float64 `json:"distance"`
	EvidenceLevel    string  `json:"evidence_level"`
	EvidencePriority int     `json:"evidence_priority"`
}

// Normalize applies the display fallbacks used when a chunk lacks metadata.
func (m Match) Normalize() Match {
	if m.Topic == "" {
		m.Topic = DefaultTopic
	}
	if m.Source == "" {
		m.Source = m.Filename
	}
	if m.Source == "" {
		m.Source = "unknown"
	}
	if m.EvidenceLevel == "" {
		m.EvidenceLevel = EvidenceUnknown
	}
	return m
}

// Record is one chunk ready to be written to a knowledge backend.
type Record struct {
	Content   string
	Topic     string
	Source    string
	Hash      string
	Embedding []float32
	Meta      Metadata
}
