package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"dtcore/internal/config"
	"dtcore/internal/docstore"
	"dtcore/internal/engine"
	"dtcore/internal/intent"
	"dtcore/internal/mcpserver"
	"dtcore/internal/metrics"
)

// ServerComponents holds everything InitializeServer builds, so main can
// wire them into an MCP server and tests can assert on construction alone
// without running the stdio transport.
type ServerComponents struct {
	Config    *config.Config
	Store     *docstore.Store
	Collector *metrics.Collector
	Engine    *engine.Engine
	MCP       *mcpserver.Server
}

// Close releases resources held by the initialized components.
func (c *ServerComponents) Close() {
	if c.Engine != nil {
		c.Engine.Stop()
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			log.Printf("Warning: failed to close document store: %v", err)
		}
	}
}

// InitializeServer builds the document store, the execution core, and the
// MCP tool adapter, in that order.
func InitializeServer(dbPath string) (*ServerComponents, error) {
	if dbPath == "" {
		dbPath = "./data/dtcore.db"
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create document store directory: %w", err)
	}

	store, err := docstore.Open(dbPath, 5000)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	log.Printf("Opened document store at %s", dbPath)

	cfg := config.Default()
	collector := metrics.NewCollector(200)
	classifier := intent.NewClassifier()

	eng, err := engine.New(classifier, engine.Options{
		Source:  store,
		Metrics: collector,
		Config:  cfg,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("initialize engine: %w", err)
	}
	log.Println("Initialized dynamic tool-chain execution core")

	return &ServerComponents{
		Config:    cfg,
		Store:     store,
		Collector: collector,
		Engine:    eng,
		MCP:       mcpserver.New(eng, store),
	}, nil
}

// newMCPServer builds the transport-facing MCP server and registers tools.
func newMCPServer(c *ServerComponents) *mcp.Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    c.Config.Server.Name,
		Version: c.Config.Server.Version,
	}, nil)
	c.MCP.RegisterTools(mcpServer)
	return mcpServer
}
