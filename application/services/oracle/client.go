// Package oracle builds bounded placement requests for the external
// reasoning oracle and defensively parses its responses. The oracle is an
// untrusted collaborator: its output is decoded into a strict structure and
// rejected on any missing or malformed field before anything downstream
// sees it.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"brainflow-backend/application/ports"
	"brainflow-backend/domain/config"
	"brainflow-backend/domain/core/entities"
	pkgerrors "brainflow-backend/pkg/errors"
)

func pkgOracleErr(message string, cause error) error {
	return pkgerrors.NewOracleError(message, cause)
}

// RefinementItem is one proposed rephrasing in a placement decision
type RefinementItem struct {
	LineID          string `json:"lineId"`
	OriginalContent string `json:"originalContent"`
	RefinedContent  string `json:"refinedContent"`
}

// PlacementDecision is the oracle's validated answer for one batch
type PlacementDecision struct {
	TargetPath   string           `json:"targetPath"`
	CreateFile   bool             `json:"createFile"`
	CreateFolder bool             `json:"createFolder"`
	ParentPath   string           `json:"parentPath,omitempty"`
	Strategy     string           `json:"strategy,omitempty"`
	Refinements  []RefinementItem `json:"refinements"`
	Reasoning    string           `json:"reasoning,omitempty"`
}

// TreeEntry is one line of the serialized tree listing sent to the oracle
type TreeEntry struct {
	Path string
	Kind string
}

// Client sends placement requests to the oracle provider. Exactly one
// provider call is made per batch; there is no internal retry loop. The
// circuit breaker sheds calls entirely once the provider keeps failing, in
// which case the orchestrator's fallback mode takes over.
type Client struct {
	provider ports.OracleProvider
	breaker  *gobreaker.CircuitBreaker
	config   *config.DomainConfig
	logger   *zap.Logger
}

// NewClient creates an oracle client
func NewClient(provider ports.OracleProvider, cfg *config.DomainConfig, logger *zap.Logger) *Client {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "oracle",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &Client{
		provider: provider,
		breaker:  breaker,
		config:   cfg,
		logger:   logger,
	}
}

// IsAvailable reports whether a placement request has any chance of success
func (c *Client) IsAvailable() bool {
	return c.provider != nil && c.provider.IsAvailable() && c.breaker.State() != gobreaker.StateOpen
}

// RequestPlacement asks the oracle where a batch belongs and how to phrase
// it. Any transport, decode, or shape failure is an oracle failure; the
// caller falls back rather than retrying.
func (c *Client) RequestPlacement(
	ctx context.Context,
	batch []*entities.LineEdit,
	pageSnapshot string,
	tree []TreeEntry,
) (*PlacementDecision, error) {
	if c.provider == nil {
		return nil, pkgOracleErr("no oracle provider configured", nil)
	}

	prompt := c.buildPrompt(batch, pageSnapshot, tree)

	raw, err := c.breaker.Execute(func() (interface{}, error) {
		return c.provider.Complete(ctx, prompt, ports.OracleCompletionOptions{
			Temperature: 0.3,
			MaxTokens:   1500,
			Format:      "json",
		})
	})
	if err != nil {
		c.logger.Warn("Oracle call failed", zap.Error(err))
		return nil, pkgOracleErr("oracle call failed", err)
	}

	decision, err := c.parseResponse(raw.(string))
	if err != nil {
		c.logger.Warn("Oracle response rejected", zap.Error(err))
		return nil, err
	}

	return decision, nil
}

// buildPrompt assembles a bounded-size context: the batch edits, the tree
// listing, and a preview of the page the edits came from
func (c *Client) buildPrompt(batch []*entities.LineEdit, pageSnapshot string, tree []TreeEntry) string {
	var sb strings.Builder

	sb.WriteString("You organize a user's notes into a hierarchical page tree.\n")
	sb.WriteString("Decide where the edits below belong and optionally refine their phrasing.\n\n")

	sb.WriteString("Existing tree:\n")
	if len(tree) == 0 {
		sb.WriteString("(empty)\n")
	}
	limit := c.config.MaxTreeListingEntries
	for i, entry := range tree {
		if i >= limit {
			fmt.Fprintf(&sb, "... and %d more\n", len(tree)-limit)
			break
		}
		fmt.Fprintf(&sb, "- %s [%s]\n", entry.Path, entry.Kind)
	}

	sb.WriteString("\nEdits to place:\n")
	for _, edit := range batch {
		fmt.Fprintf(&sb, "- lineId=%s: %s\n", edit.LineID.String(), edit.Content)
	}

	if preview := truncate(pageSnapshot, c.config.MaxContentPreviewLen); preview != "" {
		sb.WriteString("\nCurrent page content:\n")
		sb.WriteString(preview)
		sb.WriteString("\n")
	}

	sb.WriteString(`
Return a JSON object with this structure:
{
  "targetPath": "/Folder/Page",
  "createFile": true,
  "createFolder": false,
  "parentPath": "/Folder",
  "strategy": "append",
  "refinements": [
    {"lineId": "abc", "originalContent": "raw text", "refinedContent": "polished text"}
  ],
  "reasoning": "why this placement"
}

Rules:
1. targetPath must be an absolute path of the form /Segment/Segment
2. Prefer existing pages when the content clearly belongs there
3. Set createFile true only when no existing page fits
4. Set createFolder true only when a needed folder does not exist yet
5. strategy is one of: append, integrate, new_section
6. A refinement must keep the meaning of the original line
`)

	return sb.String()
}

// parseResponse strips non-structured wrapping, extracts the outermost JSON
// object, decodes it strictly, and checks every required field
func (c *Client) parseResponse(response string) (*PlacementDecision, error) {
	payload, err := extractJSONObject(response)
	if err != nil {
		return nil, err
	}

	// Pointer fields distinguish absent from zero-valued: a response
	// missing any required field is rejected wholesale.
	var decoded struct {
		TargetPath   *string           `json:"targetPath"`
		CreateFile   *bool             `json:"createFile"`
		CreateFolder *bool             `json:"createFolder"`
		ParentPath   *string           `json:"parentPath"`
		Strategy     *string           `json:"strategy"`
		Refinements  *[]RefinementItem `json:"refinements"`
		Reasoning    *string           `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, pkgOracleErr("failed to decode oracle response", err)
	}

	if decoded.TargetPath == nil || strings.TrimSpace(*decoded.TargetPath) == "" {
		return nil, pkgOracleErr("oracle response missing targetPath", nil)
	}
	if decoded.CreateFile == nil {
		return nil, pkgOracleErr("oracle response missing createFile", nil)
	}
	if decoded.Refinements == nil {
		return nil, pkgOracleErr("oracle response missing refinements", nil)
	}
	for i, item := range *decoded.Refinements {
		if strings.TrimSpace(item.LineID) == "" {
			return nil, pkgOracleErr(fmt.Sprintf("refinement %d missing lineId", i), nil)
		}
		if strings.TrimSpace(item.RefinedContent) == "" {
			return nil, pkgOracleErr(fmt.Sprintf("refinement %d missing refinedContent", i), nil)
		}
	}

	decision := &PlacementDecision{
		TargetPath:  strings.TrimSpace(*decoded.TargetPath),
		CreateFile:  *decoded.CreateFile,
		Refinements: *decoded.Refinements,
	}
	if decoded.CreateFolder != nil {
		decision.CreateFolder = *decoded.CreateFolder
	}
	if decoded.ParentPath != nil {
		decision.ParentPath = strings.TrimSpace(*decoded.ParentPath)
	}
	if decoded.Strategy != nil {
		decision.Strategy = strings.TrimSpace(*decoded.Strategy)
	}
	if decoded.Reasoning != nil {
		decision.Reasoning = *decoded.Reasoning
	}

	return decision, nil
}

// extractJSONObject locates the outermost object delimiters after stripping
// markdown fences and surrounding prose
func extractJSONObject(response string) (string, error) {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "```json") {
		response = strings.TrimPrefix(response, "```json")
		response = strings.TrimSuffix(response, "```")
		response = strings.TrimSpace(response)
	} else if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```")
		response = strings.TrimSuffix(response, "```")
		response = strings.TrimSpace(response)
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return "", pkgOracleErr("no JSON object found in oracle response", nil)
	}
	return response[start : end+1], nil
}

// truncate shortens s to at most max bytes, backing up to a rune boundary
// so a multi-byte character is never split
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
