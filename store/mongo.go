package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/types"
)

// mongoDoc 是知识行的 Mongo 文档模型。元数据保持原生嵌套文档，
// ListByMetadata 可以直接下推到查询条件。
type mongoDoc struct {
	ID         string         `bson:"_id"`
	UserID     string         `bson:"user_id"`
	Content    string         `bson:"content"`
	Embedding  []float64      `bson:"embedding,omitempty"`
	Metadata   map[string]any `bson:"metadata,omitempty"`
	ChunkIndex int            `bson:"chunk_index"`
	ParentDoc  string         `bson:"parent_doc,omitempty"`
	CreatedAt  time.Time      `bson:"created_at"`
	UpdatedAt  time.Time      `bson:"updated_at"`
}

func toMongoDoc(item *types.KnowledgeItem) *mongoDoc {
	return &mongoDoc{
		ID:         item.ID,
		UserID:     item.UserID,
		Content:    item.Content,
		Embedding:  item.Embedding,
		Metadata:   item.Metadata,
		ChunkIndex: item.ChunkIndex,
		ParentDoc:  item.ParentDoc,
		CreatedAt:  item.CreatedAt,
		UpdatedAt:  item.UpdatedAt,
	}
}

func fromMongoDoc(doc *mongoDoc) *types.KnowledgeItem {
	return &types.KnowledgeItem{
		ID:         doc.ID,
		UserID:     doc.UserID,
		Content:    doc.Content,
		Embedding:  doc.Embedding,
		Metadata:   doc.Metadata,
		ChunkIndex: doc.ChunkIndex,
		ParentDoc:  doc.ParentDoc,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

// MongoStore Mongo 集合知识存储
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewMongoStore 按配置连接 Mongo 并创建 user_id 索引
func NewMongoStore(cfg config.MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := mongo.Connect(options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})
	if err != nil {
		logger.Warn("failed to create user_id index", zap.Error(err))
	}

	return &MongoStore{client: client, coll: coll, logger: logger}, nil
}

func (s *MongoStore) checkOwner(ctx context.Context, id, userID string) error {
	var doc mongoDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id},
		options.FindOne().SetProjection(bson.M{"user_id": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return types.NewError(types.ErrNotFound, fmt.Sprintf("knowledge item %s not found", id))
	}
	if err != nil {
		return storeErr("lookup", err)
	}
	if doc.UserID != userID {
		return types.NewError(types.ErrCrossUserAccess,
			fmt.Sprintf("knowledge item %s is not owned by user %s", id, userID))
	}
	return nil
}

// Insert 插入新文档
func (s *MongoStore) Insert(ctx context.Context, item *types.KnowledgeItem) error {
	if item.ID == "" || item.UserID == "" {
		return types.NewError(types.ErrInvalidRequest, "knowledge item requires id and user_id")
	}
	doc := toMongoDoc(item)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	doc.UpdatedAt = time.Now()
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return storeErr("insert", err)
	}
	return nil
}

// Upsert 插入或整文档替换
func (s *MongoStore) Upsert(ctx context.Context, item *types.KnowledgeItem) error {
	if item.ID == "" || item.UserID == "" {
		return types.NewError(types.ErrInvalidRequest, "knowledge item requires id and user_id")
	}
	err := s.checkOwner(ctx, item.ID, item.UserID)
	if types.GetErrorCode(err) == types.ErrCrossUserAccess {
		return err
	}

	doc := toMongoDoc(item)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	doc.UpdatedAt = time.Now()
	_, err = s.coll.ReplaceOne(ctx, bson.M{"_id": item.ID, "user_id": item.UserID},
		doc, options.Replace().SetUpsert(true))
	if err != nil {
		return storeErr("upsert", err)
	}
	return nil
}

// Get 按 id 读取本用户的文档
func (s *MongoStore) Get(ctx context.Context, userID, id string) (*types.KnowledgeItem, error) {
	if err := s.checkOwner(ctx, id, userID); err != nil {
		return nil, err
	}
	var doc mongoDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&doc); err != nil {
		return nil, storeErr("get", err)
	}
	return fromMongoDoc(&doc), nil
}

func (s *MongoStore) find(ctx context.Context, filter bson.M) ([]*types.KnowledgeItem, error) {
	cursor, err := s.coll.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, storeErr("list", err)
	}
	defer cursor.Close(ctx)

	var out []*types.KnowledgeItem
	for cursor.Next(ctx) {
		var doc mongoDoc
		if err := cursor.Decode(&doc); err != nil {
			s.logger.Warn("skipping malformed knowledge document", zap.Error(err))
			continue
		}
		out = append(out, fromMongoDoc(&doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, storeErr("list", err)
	}
	if out == nil {
		out = []*types.KnowledgeItem{}
	}
	return out, nil
}

// ListByUser 列出本用户全部文档
func (s *MongoStore) ListByUser(ctx context.Context, userID string) ([]*types.KnowledgeItem, error) {
	return s.find(ctx, bson.M{"user_id": userID})
}

// ListByMetadata 按元数据键值过滤，下推到 Mongo 查询
func (s *MongoStore) ListByMetadata(ctx context.Context, userID, key string, value any) ([]*types.KnowledgeItem, error) {
	return s.find(ctx, bson.M{"user_id": userID, "metadata." + key: value})
}

// UpdateMetadata 合并写入元数据
func (s *MongoStore) UpdateMetadata(ctx context.Context, userID, id string, metadata map[string]any) error {
	if err := s.checkOwner(ctx, id, userID); err != nil {
		return err
	}
	set := bson.M{"updated_at": time.Now()}
	for k, v := range metadata {
		set["metadata."+k] = v
	}
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": id, "user_id": userID}, bson.M{"$set": set})
	if err != nil {
		return storeErr("update metadata", err)
	}
	return nil
}

// Delete 删除本用户的文档，跨用户删除被拒绝
func (s *MongoStore) Delete(ctx context.Context, userID, id string) error {
	if err := s.checkOwner(ctx, id, userID); err != nil {
		return err
	}
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID}); err != nil {
		return storeErr("delete", err)
	}
	return nil
}

// CountByUser 返回本用户的文档数
func (s *MongoStore) CountByUser(ctx context.Context, userID string) (int64, error) {
	count, err := s.coll.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, storeErr("count", err)
	}
	return count, nil
}

// Close 断开 Mongo 连接
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
