package core

import (
	"strconv"
	"time"
)

// ChunkMetadata describes where a chunk came from.
type ChunkMetadata struct {
	DocumentID  string `json:"doc_id"`
	Filename    string `json:"filename"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
}

// Chunk is a bounded slice of a document's text, the atomic retrieval unit.
type Chunk struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// VectorKey returns the stable index key for the chunk at position index of a document.
func VectorKey(documentID string, index int) string {
	return documentID + "_" + strconv.Itoa(index)
}

// IndexedVector is a persisted index entry: key, embedding and the chunk it was computed from.
type IndexedVector struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector"`
	Chunk  Chunk     `json:"chunk"`
}

// RetrievalResult is a single ranked hit returned by an index query.
type RetrievalResult struct {
	Content        string
	Metadata       ChunkMetadata
	Distance       float32 // Cosine distance in [0,2]
	RelevanceScore float32 // 1 - Distance
}

// Mode selects the prompt template used to answer a question.
type Mode string

const (
	ModeQA      Mode = "qa"
	ModeSummary Mode = "summary"
	ModeQuiz    Mode = "quiz"
)

// Modes lists every supported mode in display order.
var Modes = []Mode{ModeQA, ModeSummary, ModeQuiz}

// Valid reports whether m is one of the supported modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeQA, ModeSummary, ModeQuiz:
		return true
	}
	return false
}

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn entry in a conversation.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Mode      Mode      `json:"mode,omitempty"`
}

// ConversationRecord is the persisted history of one conversation.
type ConversationRecord struct {
	ID        string    `json:"conversation_id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary returns the listing view of the record.
func (r *ConversationRecord) Summary() ConversationSummary {
	return ConversationSummary{
		ID:           r.ID,
		MessageCount: len(r.Messages),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// ConversationSummary is the listing view of a conversation, without message bodies.
type ConversationSummary struct {
	ID           string    `json:"conversation_id"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SourceChunk is a cited excerpt returned alongside an answer.
type SourceChunk struct {
	Document       string  `json:"document"`
	Content        string  `json:"content"`
	RelevanceScore float32 `json:"relevance_score"`
}

// Outcome names the terminal state an answer was produced in.
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeNoModelConfigured Outcome = "no_model_configured"
	OutcomeRetrievalError    Outcome = "retrieval_error"
	OutcomeEmptyCorpus       Outcome = "empty_corpus"
	OutcomeNoRelevantResults Outcome = "no_relevant_results"
	OutcomeGenerationError   Outcome = "generation_error"
)

// Answer is the result of a question, always populated even on failure paths.
type Answer struct {
	Text           string        `json:"answer"`
	Sources        []SourceChunk `json:"sources"`
	ConversationID string        `json:"conversation_id"`
	Mode           Mode          `json:"mode"`
	Outcome        Outcome       `json:"-"`
}

// DocumentInfo is the registry entry for an uploaded document.
type DocumentInfo struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	StoredAs   string    `json:"saved_as"`
	UploadedAt time.Time `json:"upload_date"`
	FileSize   int64     `json:"file_size"`
	ChunkCount int       `json:"chunk_count"`
	Checksum   string    `json:"checksum"`
	SourcePath string    `json:"source_path,omitempty"` // Set when ingested from a local path

	// DuplicateOf holds the id of an earlier document with the same checksum.
	DuplicateOf string `json:"duplicate_of,omitempty"`
}
