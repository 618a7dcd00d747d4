// Package merge applies oracle refinements to batch content and merges the
// result into tree nodes. Refinement is advisory: a refinement that fails a
// quality gate is discarded in favor of the original content, so merging can
// never destroy information.
package merge

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"brainflow-backend/application/services/overlap"
	"brainflow-backend/domain/config"
	"brainflow-backend/domain/core/entities"
)

// Strategy selects how refined content is integrated into a target node
type Strategy string

const (
	// StrategyAppend concatenates with a blank-line separator
	StrategyAppend Strategy = "append"
	// StrategyNewSection concatenates under a generated heading
	StrategyNewSection Strategy = "new_section"
	// StrategyIntegrate best-effort structural merge; degrades to append
	StrategyIntegrate Strategy = "integrate"
)

// ParseStrategy maps an oracle-proposed strategy onto a known one,
// defaulting to append
func ParseStrategy(raw string) Strategy {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case StrategyNewSection:
		return StrategyNewSection
	case StrategyIntegrate:
		return StrategyIntegrate
	default:
		return StrategyAppend
	}
}

// Refinement is the oracle's proposed rephrasing of one batch line
type Refinement struct {
	LineID          string
	OriginalContent string
	RefinedContent  string
}

// Rejection records a refinement discarded by a quality gate
type Rejection struct {
	LineID string
	Reason string
}

// Engine applies refinements and merges content into targets
type Engine struct {
	config *config.DomainConfig
	logger *zap.Logger
}

// NewEngine creates a content merge engine
func NewEngine(cfg *config.DomainConfig, logger *zap.Logger) *Engine {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &Engine{config: cfg, logger: logger}
}

// ApplyRefinements resolves each batch line to its refined content when the
// refinement passes every gate, or to the unrefined original otherwise.
// The returned text preserves batch order, joined with blank lines.
func (e *Engine) ApplyRefinements(batch []*entities.LineEdit, refinements []Refinement) (string, []Rejection) {
	byLine := make(map[string]Refinement, len(refinements))
	known := make(map[string]bool, len(batch))
	for _, edit := range batch {
		known[edit.LineID.String()] = true
	}

	var rejections []Rejection
	for _, ref := range refinements {
		if !known[ref.LineID] {
			rejections = append(rejections, Rejection{
				LineID: ref.LineID,
				Reason: "refinement references a line outside the batch",
			})
			continue
		}
		byLine[ref.LineID] = ref
	}

	parts := make([]string, 0, len(batch))
	for _, edit := range batch {
		content := edit.Content
		if ref, ok := byLine[edit.LineID.String()]; ok {
			refined, rejection := e.gateRefinement(edit, ref)
			if rejection != nil {
				rejections = append(rejections, *rejection)
			} else {
				content = refined
			}
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		parts = append(parts, strings.TrimSpace(content))
	}

	return strings.Join(parts, "\n\n"), rejections
}

// gateRefinement runs the quality gates for one refinement. A non-nil
// rejection means the original content must be used verbatim.
func (e *Engine) gateRefinement(edit *entities.LineEdit, ref Refinement) (string, *Rejection) {
	lineID := edit.LineID.String()

	// The oracle may echo stale original content; the line's actual content
	// is authoritative. A mismatch is flagged but refinement still proceeds
	// against the true content.
	if ref.OriginalContent != edit.Content {
		e.logger.Warn("Refinement original does not match line content",
			zap.String("lineID", lineID),
		)
	}

	refined := strings.TrimSpace(ref.RefinedContent)
	if refined == "" {
		return "", &Rejection{LineID: lineID, Reason: "refined content is empty"}
	}

	ratio := overlap.Ratio(edit.Content, refined)
	if ratio < e.config.MinRefinementOverlap {
		return "", &Rejection{
			LineID: lineID,
			Reason: fmt.Sprintf("lexical overlap %.2f below minimum %.2f", ratio, e.config.MinRefinementOverlap),
		}
	}

	origLen := utf8.RuneCountInString(edit.Content)
	refinedLen := utf8.RuneCountInString(refined)
	if origLen > 0 {
		lengthRatio := float64(refinedLen) / float64(origLen)
		if lengthRatio < e.config.MinLengthRatio || lengthRatio > e.config.MaxLengthRatio {
			return "", &Rejection{
				LineID: lineID,
				Reason: fmt.Sprintf("length ratio %.2f outside [%.2f, %.2f]", lengthRatio, e.config.MinLengthRatio, e.config.MaxLengthRatio),
			}
		}
	}

	return refined, nil
}

// MergeIntoTarget merges refined batch content into existing node content
// using the chosen strategy. Neither side's content is ever dropped.
func (e *Engine) MergeIntoTarget(existing string, incoming string, strategy Strategy) string {
	existing = strings.TrimRight(existing, "\n")
	incoming = strings.TrimSpace(incoming)
	if incoming == "" {
		return existing
	}
	if existing == "" {
		return incoming
	}

	switch strategy {
	case StrategyNewSection:
		return existing + "\n\n" + sectionHeading(incoming) + "\n\n" + incoming
	case StrategyIntegrate:
		return e.integrate(existing, incoming)
	default:
		return existing + "\n\n" + incoming
	}
}

// integrate inserts the incoming content after the structurally closest
// paragraph of the existing content. When no paragraph overlaps it degrades
// to append.
func (e *Engine) integrate(existing, incoming string) string {
	paragraphs := strings.Split(existing, "\n\n")
	bestIdx := -1
	bestRatio := 0.0

	for i, para := range paragraphs {
		ratio := overlap.Ratio(para, incoming)
		if ratio > bestRatio {
			bestRatio = ratio
			bestIdx = i
		}
	}

	if bestIdx < 0 || bestRatio <= 0 {
		return existing + "\n\n" + incoming
	}

	merged := make([]string, 0, len(paragraphs)+1)
	merged = append(merged, paragraphs[:bestIdx+1]...)
	merged = append(merged, incoming)
	merged = append(merged, paragraphs[bestIdx+1:]...)
	return strings.Join(merged, "\n\n")
}

// sectionHeading derives a short markdown heading from the incoming content
func sectionHeading(content string) string {
	words := strings.Fields(content)
	const headingWords = 6
	if len(words) > headingWords {
		words = words[:headingWords]
	}
	title := strings.Join(words, " ")
	title = strings.Trim(title, ".,;:!?")
	if title == "" {
		title = "Notes"
	}
	return "## " + title
}
