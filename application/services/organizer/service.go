// Package organizer coordinates one transactional "organize a batch"
// operation: oracle placement, path validation, content merge, persistence.
// Oracle and validation failures are absorbed locally; only persistence
// failures and invariant violations abort the batch, and an aborted batch
// leaves the edit log exactly as if it had never been attempted.
package organizer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"brainflow-backend/application/ports"
	"brainflow-backend/application/services/merge"
	"brainflow-backend/application/services/oracle"
	"brainflow-backend/application/services/paths"
	"brainflow-backend/domain/config"
	"brainflow-backend/domain/core/entities"
	"brainflow-backend/domain/core/valueobjects"
	"brainflow-backend/domain/events"
	pkgerrors "brainflow-backend/pkg/errors"
	"brainflow-backend/pkg/observability"
)

// RunState tracks the orchestration state machine
type RunState string

const (
	StateValidating RunState = "validating"
	StatePlacing    RunState = "placing"
	StateMerging    RunState = "merging"
	StatePersisting RunState = "persisting"
	StateCommitting RunState = "committing"
	StateDone       RunState = "done"
	StateFailed     RunState = "failed"
)

// Result reports what one organization run did
type Result struct {
	State          RunState
	UpdatedNodes   []*entities.TreeNode
	NewNodes       []*entities.TreeNode
	ProcessedLines []events.LineVersionRef
	TouchedPaths   []string
	Rejections     []merge.Rejection
	Errors         []string
	UsedFallback   bool
}

// Service orchestrates organization runs
type Service struct {
	store    ports.PageStore
	oracle   *oracle.Client
	resolver *paths.Resolver
	engine   *merge.Engine
	metrics  *observability.Metrics
	config   *config.DomainConfig
	logger   *zap.Logger
}

// NewService creates an organization orchestrator
func NewService(
	store ports.PageStore,
	oracleClient *oracle.Client,
	resolver *paths.Resolver,
	engine *merge.Engine,
	metrics *observability.Metrics,
	cfg *config.DomainConfig,
	logger *zap.Logger,
) *Service {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &Service{
		store:    store,
		oracle:   oracleClient,
		resolver: resolver,
		engine:   engine,
		metrics:  metrics,
		config:   cfg,
		logger:   logger,
	}
}

// target is one node the batch content will be merged into
type target struct {
	path     valueobjects.TreePath
	existing *entities.TreeNode
	content  string
	strategy merge.Strategy
	// ensureFolders means the oracle explicitly asked for folder creation
	ensureFolders bool
}

// OrganizeBatch runs the full state machine for one batch. The returned
// error is non-nil only when the batch aborted; absorbed failures appear in
// Result.Errors and Result.Rejections instead. Marking the batch organized
// is the caller's commit step and must happen only on success.
func (s *Service) OrganizeBatch(ctx context.Context, userID string, batch []*entities.LineEdit) (*Result, error) {
	started := time.Now()
	result := &Result{State: StateValidating}

	if len(batch) == 0 {
		result.State = StateFailed
		return result, pkgerrors.NewValidationError("cannot organize an empty batch")
	}
	for _, edit := range batch {
		result.ProcessedLines = append(result.ProcessedLines, events.LineVersionRef{
			LineID:   edit.LineID.String(),
			Version:  edit.Version,
			Revision: edit.Revision,
		})
	}

	tree, err := s.store.ListTree(ctx, userID)
	if err != nil {
		result.State = StateFailed
		return result, pkgerrors.NewPersistenceError("list tree", err)
	}

	result.State = StatePlacing
	targets, err := s.place(ctx, userID, batch, tree, result)
	if err != nil {
		result.State = StateFailed
		return result, err
	}

	result.State = StatePersisting
	if err := s.persist(ctx, userID, targets, result); err != nil {
		result.State = StateFailed
		s.observe(started, result)
		return result, err
	}

	// Committing (marking the batch organized in the edit log) is the
	// caller's step: it owns the aggregate and performs it only on success.
	result.State = StateCommitting
	result.State = StateDone
	s.observe(started, result)

	s.logger.Info("Batch organized",
		zap.String("userID", userID),
		zap.Int("batchSize", len(batch)),
		zap.Strings("touchedPaths", result.TouchedPaths),
		zap.Bool("usedFallback", result.UsedFallback),
	)
	return result, nil
}

// place decides where the batch goes: oracle placement when available,
// lexical fallback otherwise. It also runs the merge engine, so the
// returned targets carry final content.
func (s *Service) place(
	ctx context.Context,
	userID string,
	batch []*entities.LineEdit,
	tree []*entities.TreeNode,
	result *Result,
) ([]target, error) {
	snapshot := s.pageSnapshot(ctx, userID, batch)

	decision, err := s.oracle.RequestPlacement(ctx, batch, snapshot, treeListing(tree))
	if err != nil {
		// Oracle failure is recoverable: no retry of the same call, the
		// batch is placed by lexical overlap instead.
		result.UsedFallback = true
		result.Errors = append(result.Errors, fmt.Sprintf("oracle unavailable: %v", err))
		if s.metrics != nil {
			s.metrics.FallbacksTotal.Inc()
		}
		return s.fallbackTargets(batch, tree), nil
	}

	result.State = StateMerging
	return s.oracleTargets(batch, tree, decision, result), nil
}

// oracleTargets turns a validated placement decision into a single merge
// target, redirecting to the catch-all node when the proposed path is
// illegal or unresolvable rather than aborting the batch.
func (s *Service) oracleTargets(
	batch []*entities.LineEdit,
	tree []*entities.TreeNode,
	decision *oracle.PlacementDecision,
	result *Result,
) []target {
	refinements := make([]merge.Refinement, 0, len(decision.Refinements))
	for _, item := range decision.Refinements {
		refinements = append(refinements, merge.Refinement{
			LineID:          item.LineID,
			OriginalContent: item.OriginalContent,
			RefinedContent:  item.RefinedContent,
		})
	}
	content, rejections := s.engine.ApplyRefinements(batch, refinements)
	result.Rejections = append(result.Rejections, rejections...)
	if s.metrics != nil && len(rejections) > 0 {
		s.metrics.RefinementsRejected.Add(float64(len(rejections)))
	}

	strategy := merge.ParseStrategy(decision.Strategy)

	validation := s.resolver.ValidatePath(decision.TargetPath)
	if !validation.Legal {
		reason := fmt.Sprintf("illegal oracle path %q: %v", decision.TargetPath, validation.Reasons)
		result.Errors = append(result.Errors, reason)
		return []target{s.catchAllTarget(content)}
	}

	path, err := valueobjects.NewTreePath(decision.TargetPath)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return []target{s.catchAllTarget(content)}
	}

	if existing := nodeAtPath(tree, path); existing != nil {
		return []target{{path: path, existing: existing, content: content, strategy: strategy}}
	}

	if !decision.CreateFile {
		result.Errors = append(result.Errors,
			fmt.Sprintf("path %q does not exist and file creation was not requested", path.String()))
		return []target{s.catchAllTarget(content)}
	}

	return []target{{
		path:          path,
		content:       content,
		strategy:      strategy,
		ensureFolders: decision.CreateFolder,
	}}
}

// catchAllTarget packages content for the default catch-all node
func (s *Service) catchAllTarget(content string) target {
	path, _ := valueobjects.NewTreePath(s.config.CatchAllPath)
	return target{path: path, content: content, strategy: merge.StrategyAppend}
}

// persist writes every target through the store. The first write failure
// aborts the batch; nothing is marked organized, so the same batch is
// retried wholesale on the next trigger.
func (s *Service) persist(ctx context.Context, userID string, targets []target, result *Result) error {
	for _, tgt := range targets {
		if tgt.content == "" {
			continue
		}

		existing := tgt.existing
		if existing == nil {
			// Another target in this run, or a concurrent collaborator, may
			// have created the node since the tree snapshot.
			node, err := s.store.GetNodeByPath(ctx, userID, tgt.path)
			if err == nil {
				existing = node
			} else if !pkgerrors.IsNotFound(err) {
				return pkgerrors.NewPersistenceError("lookup target", err)
			}
		}

		if existing != nil {
			merged := s.engine.MergeIntoTarget(existing.Content(), tgt.content, tgt.strategy)
			if err := existing.ReplaceContent(merged); err != nil {
				return err
			}
			if err := s.store.UpdateNode(ctx, existing); err != nil {
				return pkgerrors.NewPersistenceError("update node", err)
			}
			result.UpdatedNodes = append(result.UpdatedNodes, existing)
			result.TouchedPaths = append(result.TouchedPaths, existing.Path().String())
			continue
		}

		node, isNew, err := s.createNode(ctx, userID, tgt, result)
		if err != nil {
			return err
		}
		if isNew {
			result.NewNodes = append(result.NewNodes, node)
		} else {
			result.UpdatedNodes = append(result.UpdatedNodes, node)
		}
		result.TouchedPaths = append(result.TouchedPaths, node.Path().String())
	}
	return nil
}

// createNode creates a new file node at the target path, creating requested
// folders bottom-up and uniquifying on collision. Returns isNew=false when
// the content was redirected into an already existing catch-all node.
func (s *Service) createNode(ctx context.Context, userID string, tgt target, result *Result) (*entities.TreeNode, bool, error) {
	parentID := valueobjects.NodeID{}

	res, err := s.resolver.ResolveParent(ctx, userID, tgt.path)
	if err != nil {
		return nil, false, err
	}

	switch {
	case res.IsRoot:
		// Files may always be created at the root.
	case res.Exists && res.IsFolder:
		parentID = res.ParentID
	case res.Exists && !res.IsFolder:
		// The oracle proposed nesting under a file. That path can never
		// resolve, so the content is redirected instead of failing the batch
		// forever on every retrigger.
		result.Errors = append(result.Errors,
			fmt.Sprintf("parent %q exists as a file", res.ParentPath.String()))
		return s.mergeIntoCatchAll(ctx, userID, tgt.content)
	case tgt.ensureFolders:
		created, err := s.resolver.EnsureFolders(ctx, userID, tgt.path)
		for _, folder := range created {
			result.NewNodes = append(result.NewNodes, folder)
			result.TouchedPaths = append(result.TouchedPaths, folder.Path().String())
		}
		if err != nil {
			if pkgerrors.IsConflict(err) {
				result.Errors = append(result.Errors, err.Error())
				return s.mergeIntoCatchAll(ctx, userID, tgt.content)
			}
			return nil, false, err
		}
		if len(created) > 0 {
			parentID = created[len(created)-1].ID()
		}
	default:
		// Parent missing and folder creation was not requested: folders are
		// never silently invented, so the content goes to the catch-all.
		result.Errors = append(result.Errors,
			fmt.Sprintf("parent %q does not exist and folder creation was not requested", res.ParentPath.String()))
		return s.mergeIntoCatchAll(ctx, userID, tgt.content)
	}

	path, err := s.resolver.Uniquify(ctx, userID, tgt.path)
	if err != nil {
		return nil, false, err
	}

	node, err := entities.NewFileNode(userID, path, parentID, tgt.content)
	if err != nil {
		return nil, false, err
	}
	if _, err := s.store.CreateNode(ctx, node); err != nil {
		return nil, false, pkgerrors.NewPersistenceError("create node", err)
	}
	return node, true, nil
}

// mergeIntoCatchAll appends content to the catch-all node, creating it on
// first use
func (s *Service) mergeIntoCatchAll(ctx context.Context, userID string, content string) (*entities.TreeNode, bool, error) {
	path, err := valueobjects.NewTreePath(s.config.CatchAllPath)
	if err != nil {
		return nil, false, pkgerrors.NewInvariantError("configured catch-all path is illegal")
	}

	node, err := s.store.GetNodeByPath(ctx, userID, path)
	if err == nil {
		merged := s.engine.MergeIntoTarget(node.Content(), content, merge.StrategyAppend)
		if err := node.ReplaceContent(merged); err != nil {
			return nil, false, err
		}
		if err := s.store.UpdateNode(ctx, node); err != nil {
			return nil, false, pkgerrors.NewPersistenceError("update catch-all", err)
		}
		return node, false, nil
	}
	if !pkgerrors.IsNotFound(err) {
		return nil, false, pkgerrors.NewPersistenceError("lookup catch-all", err)
	}

	node, err = entities.NewFileNode(userID, path, valueobjects.NodeID{}, content)
	if err != nil {
		return nil, false, err
	}
	if _, err := s.store.CreateNode(ctx, node); err != nil {
		return nil, false, pkgerrors.NewPersistenceError("create catch-all", err)
	}
	return node, true, nil
}

// pageSnapshot fetches a content preview of the page the batch was edited
// on, when the store knows it
func (s *Service) pageSnapshot(ctx context.Context, userID string, batch []*entities.LineEdit) string {
	pageID := batch[0].PageID
	if pageID == "" {
		return ""
	}
	nodeID, err := valueobjects.NewNodeIDFromString(pageID)
	if err != nil {
		return ""
	}
	node, err := s.store.GetNodeByID(ctx, userID, nodeID)
	if err != nil {
		return ""
	}
	return node.Content()
}

func (s *Service) observe(started time.Time, result *Result) {
	if s.metrics == nil {
		return
	}
	outcome := string(result.State)
	s.metrics.BatchesTotal.WithLabelValues(outcome).Inc()
	s.metrics.OrganizeDuration.Observe(time.Since(started).Seconds())
}

// treeListing serializes tree nodes for the oracle prompt
func treeListing(tree []*entities.TreeNode) []oracle.TreeEntry {
	entries := make([]oracle.TreeEntry, 0, len(tree))
	for _, node := range tree {
		entries = append(entries, oracle.TreeEntry{
			Path: node.Path().String(),
			Kind: string(node.Kind()),
		})
	}
	return entries
}

// nodeAtPath finds a node in the tree snapshot by path
func nodeAtPath(tree []*entities.TreeNode, path valueobjects.TreePath) *entities.TreeNode {
	for _, node := range tree {
		if node.Path().Equals(path) {
			return node
		}
	}
	return nil
}
