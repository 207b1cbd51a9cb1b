// Package mcpserver exposes the execution core over the Model Context
// Protocol: an "answer-question" tool that runs engine.Engine.Answer and an
// "ingest-document" tool that seeds the document store a deployment backs
// T01_PDF_LOADER with.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"dtcore/internal/engine"
)

// DocumentIngester accepts raw document text under a reference. Satisfied
// by *docstore.Store; a test or minimal deployment can substitute any type
// with this one method.
type DocumentIngester interface {
	Put(ref, text string) error
}

// Server adapts an Engine to MCP tool handlers.
type Server struct {
	engine   *engine.Engine
	ingester DocumentIngester
}

// New wraps an already-constructed Engine. ingester may be nil, in which
// case the ingest-document tool is not registered.
func New(e *engine.Engine, ingester DocumentIngester) *Server {
	return &Server{engine: e, ingester: ingester}
}

// RegisterTools attaches this server's tools to mcpServer.
func (s *Server) RegisterTools(mcpServer *mcp.Server) {
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "answer-question",
		Description: "Answer a natural-language question about a previously ingested document by running the full analysis tool chain",
	}, s.handleAnswerQuestion)

	if s.ingester != nil {
		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        "ingest-document",
			Description: "Store raw document text under a reference for later questions",
		}, s.handleIngestDocument)
	}
}

// AnswerQuestionRequest is the answer-question tool's input.
type AnswerQuestionRequest struct {
	Question    string `json:"question"`
	DocumentRef string `json:"document_ref"`
}

func (s *Server) handleAnswerQuestion(ctx context.Context, req *mcp.CallToolRequest, input AnswerQuestionRequest) (*mcp.CallToolResult, *struct {
	Result interface{} `json:"result"`
}, error) {
	if input.Question == "" {
		return nil, nil, fmt.Errorf("question must not be empty")
	}
	if input.DocumentRef == "" {
		return nil, nil, fmt.Errorf("document_ref must not be empty")
	}

	result, err := s.engine.Answer(ctx, input.Question, input.DocumentRef)
	if err != nil {
		return nil, nil, fmt.Errorf("answer-question: %w", err)
	}

	response := &struct {
		Result interface{} `json:"result"`
	}{Result: result}

	return &mcp.CallToolResult{Content: toJSONContent(response)}, response, nil
}

// IngestDocumentRequest is the ingest-document tool's input.
type IngestDocumentRequest struct {
	DocumentRef string `json:"document_ref"`
	Text        string `json:"text"`
}

type IngestDocumentResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleIngestDocument(ctx context.Context, req *mcp.CallToolRequest, input IngestDocumentRequest) (*mcp.CallToolResult, *IngestDocumentResponse, error) {
	if input.DocumentRef == "" {
		return nil, nil, fmt.Errorf("document_ref must not be empty")
	}
	if err := s.ingester.Put(input.DocumentRef, input.Text); err != nil {
		return nil, nil, fmt.Errorf("ingest-document: %w", err)
	}
	response := &IngestDocumentResponse{Status: "stored"}
	return &mcp.CallToolResult{Content: toJSONContent(response)}, response, nil
}

// toJSONContent marshals data as the sole text content block of a tool
// result, the format Claude consumes directly.
func toJSONContent(data interface{}) []mcp.Content {
	jsonData, err := json.Marshal(data)
	if err != nil {
		errData := map[string]string{"error": err.Error()}
		jsonData, _ = json.Marshal(errData)
	}
	return []mcp.Content{&mcp.TextContent{Text: string(jsonData)}}
}
