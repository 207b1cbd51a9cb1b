// Package main provides the entry point for the dynamic tool-chain
// execution core's MCP server.
//
// This server is designed to be spawned as a child process by an MCP
// client and communicates via stdio using the Model Context Protocol. It
// exposes two tools: ingest-document (store raw text under a reference)
// and answer-question (run the full analysis pipeline against an ingested
// document and return a synthesized, confidence-scored response).
//
// Environment variables:
//   - DOCSTORE_PATH: path to the SQLite document store (default ./data/dtcore.db)
//   - DEBUG: set to "true" to enable debug logging
package main

import (
	"context"
	"log"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	if os.Getenv("DEBUG") == "true" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		log.Println("Starting dtcore server in debug mode...")
	}

	components, err := InitializeServer(os.Getenv("DOCSTORE_PATH"))
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}
	defer components.Close()

	mcpServer := newMCPServer(components)
	log.Println("Registered tools: ingest-document, answer-question")

	transport := &mcp.StdioTransport{}
	log.Println("Created stdio transport")

	ctx := context.Background()
	log.Println("Starting MCP server...")
	if err := mcpServer.Run(ctx, transport); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
