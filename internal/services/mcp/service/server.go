// Package service exposes the gamebook engine over the Model Context
// Protocol.
package service

import (
	"context"
	"fmt"
	"log"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/gamebook/internal/engine/narrator"
	gberrors "github.com/louisbranch/gamebook/internal/errors"
	"github.com/louisbranch/gamebook/internal/services/mcp/domain"
	"github.com/louisbranch/gamebook/internal/state"
)

const (
	serverName    = "gamebook"
	serverVersion = "0.1.0"
)

// Server hosts the MCP tool surface over stdio.
type Server struct {
	runner   domain.TurnRunner
	recorder domain.TurnRecorder
	sections domain.SectionLoader
}

// New wires the MCP server. The recorder may be nil when no registry is
// configured.
func New(runner domain.TurnRunner, recorder domain.TurnRecorder, sections domain.SectionLoader) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("turn runner is required")
	}
	if sections == nil {
		return nil, fmt.Errorf("section loader is required")
	}
	return &Server{runner: runner, recorder: recorder, sections: sections}, nil
}

// Run serves MCP over stdio until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	server, err := s.build()
	if err != nil {
		return err
	}
	log.Printf("mcp: serving %s %s over stdio", serverName, serverVersion)
	return server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) build() (*mcp.Server, error) {
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)

	mcp.AddTool(server, domain.RunTurnTool(), domain.RunTurnHandler(s.runner, s.recorder))
	mcp.AddTool(server, domain.RollDiceTool(), domain.RollDiceHandler())
	mcp.AddTool(server, domain.GetSectionTool(), domain.GetSectionHandler(s.sections))

	return server, nil
}

// NarratorSectionLoader adapts the narrator node to the section loader
// tool so MCP reads go through the same cache path as turns.
type NarratorSectionLoader struct {
	Node *narrator.Node
}

// Section returns the formatted content for one section.
func (l NarratorSectionLoader) Section(ctx context.Context, section int) (string, error) {
	update := l.Node.Run(ctx, state.GameState{SectionNumber: section})
	if update.Narrative == nil {
		return "", fmt.Errorf("no narrative for section %d", section)
	}
	if update.Narrative.Error != "" {
		return "", gberrors.New(gberrors.CodeNarratorSectionNotFound, update.Narrative.Error)
	}
	return update.Narrative.Content, nil
}
