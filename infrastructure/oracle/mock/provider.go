// Package mock provides a deterministic oracle provider for development and
// tests. It echoes the batch's edits back as refinements and targets a fixed
// notes page, so the full organization pipeline runs without network access.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"brainflow-backend/application/ports"
)

// Provider answers placement prompts with a canned but well-formed decision
type Provider struct {
	available bool
	// TargetPath overrides the default placement target when non-empty
	TargetPath string
}

// NewProvider creates a mock oracle provider
func NewProvider() *Provider {
	return &Provider{available: true}
}

var _ ports.OracleProvider = (*Provider)(nil)

// IsAvailable returns whether the mock provider is available
func (m *Provider) IsAvailable() bool {
	return m.available
}

// SetAvailable controls availability, letting tests exercise fallback mode
func (m *Provider) SetAvailable(available bool) {
	m.available = available
}

type refinement struct {
	LineID          string `json:"lineId"`
	OriginalContent string `json:"originalContent"`
	RefinedContent  string `json:"refinedContent"`
}

type decision struct {
	TargetPath   string       `json:"targetPath"`
	CreateFile   bool         `json:"createFile"`
	CreateFolder bool         `json:"createFolder"`
	ParentPath   string       `json:"parentPath"`
	Strategy     string       `json:"strategy"`
	Refinements  []refinement `json:"refinements"`
	Reasoning    string       `json:"reasoning"`
}

// Complete parses the edit lines out of the placement prompt and echoes
// them back unchanged as refinements
func (m *Provider) Complete(ctx context.Context, prompt string, options ports.OracleCompletionOptions) (string, error) {
	if !m.available {
		return "", fmt.Errorf("mock provider is not available")
	}

	d := decision{
		TargetPath:  "/Notes/Inbox",
		CreateFile:  true,
		ParentPath:  "/Notes",
		Strategy:    "append",
		Refinements: extractEdits(prompt),
		Reasoning:   "mock placement",
	}
	if m.TargetPath != "" {
		d.TargetPath = m.TargetPath
	}
	// Reuse an existing page when the prompt's tree already lists the target
	if promptListsPath(prompt, d.TargetPath) {
		d.CreateFile = false
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// extractEdits pulls "- lineId=<id>: <content>" lines from the prompt
func extractEdits(prompt string) []refinement {
	refinements := []refinement{}
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- lineId=") {
			continue
		}
		rest := strings.TrimPrefix(line, "- lineId=")
		id, content, ok := strings.Cut(rest, ": ")
		if !ok {
			continue
		}
		refinements = append(refinements, refinement{
			LineID:          id,
			OriginalContent: content,
			RefinedContent:  content,
		})
	}
	return refinements
}

func promptListsPath(prompt, path string) bool {
	return strings.Contains(prompt, "- "+path+" [file]")
}
