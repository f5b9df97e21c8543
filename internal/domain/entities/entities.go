// Package entities contains core business entities.
// These are pure domain objects with no knowledge of storage or transport.
package entities

import (
	"encoding/json"
	"strings"
	"time"
)

// Role is the author of a chat turn as seen by the model.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// StoredRole is the author of a persisted message.
type StoredRole string

const (
	StoredUser StoredRole = "user"
	StoredAI   StoredRole = "ai"
)

// PromptRole maps a stored role to the role used when rendering history.
// Storage keeps "ai"; prompts say "assistant".
func (r StoredRole) PromptRole() Role {
	if r == StoredAI {
		return RoleAssistant
	}
	return RoleUser
}

// ChatTurn is one message of an incoming chat request. Never persisted as-is.
type ChatTurn struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NormalizeRole maps client role spellings onto the three prompt roles.
func NormalizeRole(role string) Role {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "assistant", "ai", "model":
		return RoleAssistant
	case "system":
		return RoleSystem
	default:
		return RoleUser
	}
}

// UnmarshalJSON decodes a client role through NormalizeRole, so "ai" and
// "assistant" arrive as the same Role.
func (r *Role) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = NormalizeRole(raw)
	return nil
}

// ChatRequest is a conversational turn submitted by a client.
type ChatRequest struct {
	Messages  []ChatTurn `json:"messages"`
	SessionID string     `json:"sessionId,omitempty"`
}

// LastContent returns the content of the final message, or "" when there is none.
func (r ChatRequest) LastContent() string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[len(r.Messages)-1].Content
}

// DatabaseMessage is a persisted chat message. Immutable once written.
type DatabaseMessage struct {
	ID        int64
	SessionID string
	Role      StoredRole
	Content   string
	CreatedAt time.Time
}

// RelevantDocument is a stored chunk that matched a query embedding.
type RelevantDocument struct {
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// DocumentStatus is the lifecycle state of an uploaded document.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusError      DocumentStatus = "error"
)

// Terminal reports whether no further transition is allowed from s.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Valid reports whether s is one of the known states.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Document is the lifecycle record of an uploaded file.
// Status is the only mutable field.
type Document struct {
	ID        int64          `json:"id"`
	FileName  string         `json:"file_name"`
	Status    DocumentStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// IngestJob is the unit of work handed to the vectorization workflow.
type IngestJob struct {
	DocumentID int64  `json:"document_id"`
	FilePath   string `json:"file_path"`
}

// Chunk is a piece of a document prepared for embedding by the vectorization worker.
type Chunk struct {
	DocumentID int64
	FileName   string
	Content    string
	Index      int       // position in document
	Embedding  []float32 // populated by the embedding adapter
}

// Metadata is the JSON metadata stored alongside a chunk vector.
func (c Chunk) Metadata() map[string]any {
	return map[string]any{
		"document_id": c.DocumentID,
		"file_name":   c.FileName,
		"chunk_index": c.Index,
	}
}
