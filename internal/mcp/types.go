// Package mcp exposes the knowledge base to MCP clients.
package mcp

import "time"

// AskInput defines the input parameters for the ask tool.
type AskInput struct {
	// Question is the user's question in natural language.
	Question string `json:"question" jsonschema:"The question to answer from company documents"`
	// Department scopes retrieval. Empty or "all" searches everything.
	Department string `json:"department,omitempty" jsonschema:"Department of the asking user, e.g. hr"`
	// ConversationID continues an earlier exchange.
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"Conversation id returned by a previous ask call"`
}

// AskOutput is the grounded answer.
type AskOutput struct {
	Answer         string   `json:"answer"`
	Sources        []string `json:"sources"`
	ConversationID string   `json:"conversation_id"`
}

// SearchDocumentsInput defines the input parameters for the search_documents tool.
type SearchDocumentsInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"The semantic search query"`
	// Department scopes retrieval.
	Department string `json:"department,omitempty" jsonschema:"Department filter, empty or all for every department"`
	// MaxResults is the maximum number of passages to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"Maximum number of passages to return (1-20)"`
}

// SearchDocumentsOutput contains the ranked passages.
type SearchDocumentsOutput struct {
	Results []SearchResult `json:"results"`
	// Message provides informational context (e.g., "No matching documents found").
	Message string `json:"message,omitempty"`
}

// SearchResult is one retrieved passage.
type SearchResult struct {
	Source string  `json:"source"`
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
}

// ListDocumentsInput takes no parameters.
type ListDocumentsInput struct{}

// ListDocumentsOutput contains every indexed source.
type ListDocumentsOutput struct {
	Documents []DocumentInfo `json:"documents"`
	Count     int            `json:"count"`
}

// DocumentInfo describes one indexed source.
type DocumentInfo struct {
	Filename   string    `json:"filename"`
	Department string    `json:"department"`
	Chunks     int       `json:"chunks"`
	UploadedAt time.Time `json:"uploaded_at"`
}
