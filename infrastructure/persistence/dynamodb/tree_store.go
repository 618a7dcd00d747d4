// Package dynamodb persists tree nodes in a single DynamoDB table.
//
// Layout: each node is stored as PK=USER#<userID>, SK=NODE#<nodeID>, with a
// companion guard item PK=USER#<userID>, SK=PATH#<path> that enforces path
// uniqueness through conditional writes. Moves and creates write both items
// in one transaction.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"brainflow-backend/application/ports"
	"brainflow-backend/domain/core/entities"
	"brainflow-backend/domain/core/valueobjects"
	pkgerrors "brainflow-backend/pkg/errors"
)

// TreeStore implements ports.PageStore on DynamoDB
type TreeStore struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewTreeStore creates a DynamoDB-backed PageStore
func NewTreeStore(client *dynamodb.Client, tableName string, logger *zap.Logger) *TreeStore {
	return &TreeStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

var _ ports.PageStore = (*TreeStore)(nil)

// nodeItem is the DynamoDB item structure for a tree node
type nodeItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	NodeID     string `dynamodbav:"NodeID"`
	UserID     string `dynamodbav:"UserID"`
	Kind       string `dynamodbav:"Kind"`
	ParentID   string `dynamodbav:"ParentID,omitempty"`
	Path       string `dynamodbav:"Path"`
	Content    string `dynamodbav:"Content,omitempty"`
	CreatedAt  string `dynamodbav:"CreatedAt"`
	UpdatedAt  string `dynamodbav:"UpdatedAt"`
}

// pathGuardItem reserves a path within a user's tree
type pathGuardItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	NodeID     string `dynamodbav:"NodeID"`
}

func userPK(userID string) string              { return fmt.Sprintf("USER#%s", userID) }
func nodeSK(id valueobjects.NodeID) string     { return fmt.Sprintf("NODE#%s", id.String()) }
func pathSK(path valueobjects.TreePath) string { return fmt.Sprintf("PATH#%s", path.String()) }

func toItem(node *entities.TreeNode) nodeItem {
	return nodeItem{
		PK:         userPK(node.UserID()),
		SK:         nodeSK(node.ID()),
		EntityType: "TREE_NODE",
		NodeID:     node.ID().String(),
		UserID:     node.UserID(),
		Kind:       string(node.Kind()),
		ParentID:   node.ParentID().String(),
		Path:       node.Path().String(),
		Content:    node.Content(),
		CreatedAt:  node.CreatedAt().UTC().Format(time.RFC3339Nano),
		UpdatedAt:  node.UpdatedAt().UTC().Format(time.RFC3339Nano),
	}
}

func fromItem(item nodeItem) (*entities.TreeNode, error) {
	nodeID, err := valueobjects.NewNodeIDFromString(item.NodeID)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("unmarshal node", err)
	}
	var parent valueobjects.NodeID
	if item.ParentID != "" {
		parent, err = valueobjects.NewNodeIDFromString(item.ParentID)
		if err != nil {
			return nil, pkgerrors.NewPersistenceError("unmarshal node", err)
		}
	}
	path, err := valueobjects.NewTreePath(item.Path)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("unmarshal node", err)
	}
	created, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("unmarshal node", err)
	}
	updated, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("unmarshal node", err)
	}
	return entities.ReconstructTreeNode(nodeID, item.UserID, entities.NodeKind(item.Kind), parent, path, item.Content, created, updated)
}

func (s *TreeStore) GetNodeByID(ctx context.Context, userID string, id valueobjects.NodeID) (*entities.TreeNode, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: nodeSK(id)},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("get node", err)
	}
	if result.Item == nil {
		return nil, pkgerrors.NewNotFoundError("node not found: " + id.String())
	}

	var item nodeItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, pkgerrors.NewPersistenceError("unmarshal node", err)
	}
	return fromItem(item)
}

func (s *TreeStore) GetNodeByPath(ctx context.Context, userID string, path valueobjects.TreePath) (*entities.TreeNode, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: pathSK(path)},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("get node by path", err)
	}
	if result.Item == nil {
		return nil, pkgerrors.NewNotFoundError("node not found at path: " + path.String())
	}

	var guard pathGuardItem
	if err := attributevalue.UnmarshalMap(result.Item, &guard); err != nil {
		return nil, pkgerrors.NewPersistenceError("unmarshal path guard", err)
	}
	nodeID, err := valueobjects.NewNodeIDFromString(guard.NodeID)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("unmarshal path guard", err)
	}
	return s.GetNodeByID(ctx, userID, nodeID)
}

func (s *TreeStore) CreateNode(ctx context.Context, node *entities.TreeNode) (valueobjects.NodeID, error) {
	nodeAV, err := attributevalue.MarshalMap(toItem(node))
	if err != nil {
		return valueobjects.NodeID{}, pkgerrors.NewPersistenceError("marshal node", err)
	}
	guardAV, err := attributevalue.MarshalMap(pathGuardItem{
		PK:         userPK(node.UserID()),
		SK:         pathSK(node.Path()),
		EntityType: "PATH_GUARD",
		NodeID:     node.ID().String(),
	})
	if err != nil {
		return valueobjects.NodeID{}, pkgerrors.NewPersistenceError("marshal path guard", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(s.tableName),
				Item:                nodeAV,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(s.tableName),
				Item:                guardAV,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
		},
	})
	if err != nil {
		if isConditionalFailure(err) {
			return valueobjects.NodeID{}, pkgerrors.NewConflictError("path already exists: " + node.Path().String())
		}
		return valueobjects.NodeID{}, pkgerrors.NewPersistenceError("create node", err)
	}

	s.logger.Debug("Node created",
		zap.String("nodeID", node.ID().String()),
		zap.String("path", node.Path().String()),
	)
	return node.ID(), nil
}

func (s *TreeStore) UpdateNode(ctx context.Context, node *entities.TreeNode) error {
	existing, err := s.GetNodeByID(ctx, node.UserID(), node.ID())
	if err != nil {
		return err
	}

	nodeAV, err := attributevalue.MarshalMap(toItem(node))
	if err != nil {
		return pkgerrors.NewPersistenceError("marshal node", err)
	}

	items := []types.TransactWriteItem{
		{Put: &types.Put{
			TableName:           aws.String(s.tableName),
			Item:                nodeAV,
			ConditionExpression: aws.String("attribute_exists(PK)"),
		}},
	}

	// A relocation retires the old path guard and claims the new one
	if !existing.Path().Equals(node.Path()) {
		guardAV, err := attributevalue.MarshalMap(pathGuardItem{
			PK:         userPK(node.UserID()),
			SK:         pathSK(node.Path()),
			EntityType: "PATH_GUARD",
			NodeID:     node.ID().String(),
		})
		if err != nil {
			return pkgerrors.NewPersistenceError("marshal path guard", err)
		}
		items = append(items,
			types.TransactWriteItem{Delete: &types.Delete{
				TableName: aws.String(s.tableName),
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: userPK(node.UserID())},
					"SK": &types.AttributeValueMemberS{Value: pathSK(existing.Path())},
				},
			}},
			types.TransactWriteItem{Put: &types.Put{
				TableName:           aws.String(s.tableName),
				Item:                guardAV,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
		)
	}

	if _, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		if isConditionalFailure(err) {
			return pkgerrors.NewConflictError("path already exists: " + node.Path().String())
		}
		return pkgerrors.NewPersistenceError("update node", err)
	}
	return nil
}

func (s *TreeStore) ListTree(ctx context.Context, userID string) ([]*entities.TreeNode, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(userPK(userID))).
		And(expression.Key("SK").BeginsWith("NODE#"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("build tree query", err)
	}

	var nodes []*entities.TreeNode
	var lastKey map[string]types.AttributeValue
	for {
		result, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         lastKey,
		})
		if err != nil {
			return nil, pkgerrors.NewPersistenceError("list tree", err)
		}

		for _, raw := range result.Items {
			var item nodeItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, pkgerrors.NewPersistenceError("unmarshal node", err)
			}
			node, err := fromItem(item)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		lastKey = result.LastEvaluatedKey
	}
	return nodes, nil
}

func isConditionalFailure(err error) bool {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return true
			}
		}
		return false
	}
	var condFailed *types.ConditionalCheckFailedException
	return errors.As(err, &condFailed)
}
