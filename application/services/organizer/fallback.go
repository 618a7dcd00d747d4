package organizer

import (
	"sort"

	"brainflow-backend/application/services/merge"
	"brainflow-backend/application/services/overlap"
	"brainflow-backend/domain/core/entities"
)

// fallbackTargets places a batch without the oracle: each edit goes to the
// existing file node sharing the most lexical overlap with it, or to the
// catch-all when nothing overlaps. Content is left unrefined and merged
// with the append strategy so nothing is lost while reasoning is
// unavailable.
func (s *Service) fallbackTargets(batch []*entities.LineEdit, tree []*entities.TreeNode) []target {
	files := make([]*entities.TreeNode, 0, len(tree))
	for _, node := range tree {
		if !node.IsFolder() {
			files = append(files, node)
		}
	}

	// Group edits by chosen node so each target is merged once.
	grouped := make(map[string][]*entities.LineEdit)
	order := make([]string, 0)
	byPath := make(map[string]*entities.TreeNode)

	for _, edit := range batch {
		node := bestOverlapNode(edit.Content, files)
		key := s.config.CatchAllPath
		if node != nil {
			key = node.Path().String()
			byPath[key] = node
		}
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], edit)
	}

	targets := make([]target, 0, len(order))
	for _, key := range order {
		edits := grouped[key]
		content, _ := s.engine.ApplyRefinements(edits, nil)
		if node, ok := byPath[key]; ok {
			targets = append(targets, target{
				path:     node.Path(),
				existing: node,
				content:  content,
				strategy: merge.StrategyAppend,
			})
			continue
		}
		targets = append(targets, s.catchAllTarget(content))
	}
	return targets
}

// bestOverlapNode returns the file node whose title and content share the
// most significant tokens with the edit, or nil when nothing overlaps
func bestOverlapNode(content string, files []*entities.TreeNode) *entities.TreeNode {
	type scored struct {
		node  *entities.TreeNode
		score int
	}

	candidates := make([]scored, 0, len(files))
	for _, node := range files {
		score := overlap.Score(content, node.Title()+" "+node.Content())
		if score > 0 {
			candidates = append(candidates, scored{node: node, score: score})
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	return candidates[0].node
}
