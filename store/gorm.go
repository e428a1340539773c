package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/types"
)

// knowledgeRow 是知识行的数据库模型。向量和元数据序列化为
// JSON 文本列：行式存储不索引向量，相似度检索在上层完成。
type knowledgeRow struct {
	ID         string `gorm:"primaryKey;size:64"`
	UserID     string `gorm:"index:idx_knowledge_user;size:64;not null"`
	Content    string `gorm:"type:text"`
	Embedding  string `gorm:"type:text"`
	Metadata   string `gorm:"type:text"`
	ChunkIndex int
	ParentDoc  string `gorm:"index;size:64"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (knowledgeRow) TableName() string { return "knowledge_items" }

func toRow(item *types.KnowledgeItem) (*knowledgeRow, error) {
	embedding, err := json.Marshal(item.Embedding)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding: %w", err)
	}
	metadata, err := json.Marshal(item.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return &knowledgeRow{
		ID:         item.ID,
		UserID:     item.UserID,
		Content:    item.Content,
		Embedding:  string(embedding),
		Metadata:   string(metadata),
		ChunkIndex: item.ChunkIndex,
		ParentDoc:  item.ParentDoc,
		CreatedAt:  item.CreatedAt,
		UpdatedAt:  item.UpdatedAt,
	}, nil
}

func fromRow(row *knowledgeRow) (*types.KnowledgeItem, error) {
	item := &types.KnowledgeItem{
		ID:         row.ID,
		UserID:     row.UserID,
		Content:    row.Content,
		ChunkIndex: row.ChunkIndex,
		ParentDoc:  row.ParentDoc,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
	if row.Embedding != "" && row.Embedding != "null" {
		if err := json.Unmarshal([]byte(row.Embedding), &item.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}
	if row.Metadata != "" && row.Metadata != "null" {
		if err := json.Unmarshal([]byte(row.Metadata), &item.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return item, nil
}

// GormStore 关系数据库知识存储（postgres / mysql / sqlite）
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open 按配置打开数据库连接并应用连接池设置
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := cfg.DSN
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "postgres":
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
				cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
		}
		dialector = postgres.Open(dsn)
	case "mysql":
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True",
				cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
		}
		dialector = mysql.Open(dsn)
	case "sqlite", "":
		if dsn == "" {
			dsn = "file:ragflow.db"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return db, nil
}

// NewGormStore 创建关系数据库知识存储并迁移表结构
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&knowledgeRow{}); err != nil {
		return nil, fmt.Errorf("migrate knowledge_items: %w", err)
	}
	return &GormStore{db: db, logger: logger}, nil
}

func storeErr(op string, err error) error {
	return types.NewError(types.ErrStoreError, op+" failed").WithCause(err)
}

// checkOwner 校验行归属。调用方给定 userID，行存在但属他人时拒绝。
func (s *GormStore) checkOwner(ctx context.Context, id, userID string) error {
	var row knowledgeRow
	err := s.db.WithContext(ctx).Select("id", "user_id").Where("id = ?", id).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return types.NewError(types.ErrNotFound, fmt.Sprintf("knowledge item %s not found", id))
	}
	if err != nil {
		return storeErr("lookup", err)
	}
	if row.UserID != userID {
		return types.NewError(types.ErrCrossUserAccess,
			fmt.Sprintf("knowledge item %s is not owned by user %s", id, userID))
	}
	return nil
}

// Insert 插入新行
func (s *GormStore) Insert(ctx context.Context, item *types.KnowledgeItem) error {
	if item.ID == "" || item.UserID == "" {
		return types.NewError(types.ErrInvalidRequest, "knowledge item requires id and user_id")
	}
	row, err := toRow(item)
	if err != nil {
		return storeErr("insert", err)
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	row.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return storeErr("insert", err)
	}
	return nil
}

// Upsert 插入或整行替换
func (s *GormStore) Upsert(ctx context.Context, item *types.KnowledgeItem) error {
	if item.ID == "" || item.UserID == "" {
		return types.NewError(types.ErrInvalidRequest, "knowledge item requires id and user_id")
	}
	err := s.checkOwner(ctx, item.ID, item.UserID)
	switch types.GetErrorCode(err) {
	case types.ErrNotFound:
		return s.Insert(ctx, item)
	case types.ErrCrossUserAccess:
		return err
	case "":
		// 已存在且归属正确，整行替换
	default:
		return err
	}

	row, rerr := toRow(item)
	if rerr != nil {
		return storeErr("upsert", rerr)
	}
	row.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Model(&knowledgeRow{}).Where("id = ? AND user_id = ?", item.ID, item.UserID).
		Updates(map[string]any{
			"content":     row.Content,
			"embedding":   row.Embedding,
			"metadata":    row.Metadata,
			"chunk_index": row.ChunkIndex,
			"parent_doc":  row.ParentDoc,
			"updated_at":  row.UpdatedAt,
		}).Error; err != nil {
		return storeErr("upsert", err)
	}
	return nil
}

// Get 按 id 读取本用户的行
func (s *GormStore) Get(ctx context.Context, userID, id string) (*types.KnowledgeItem, error) {
	if err := s.checkOwner(ctx, id, userID); err != nil {
		return nil, err
	}
	var row knowledgeRow
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&row).Error; err != nil {
		return nil, storeErr("get", err)
	}
	return fromRow(&row)
}

// ListByUser 列出本用户全部行
func (s *GormStore) ListByUser(ctx context.Context, userID string) ([]*types.KnowledgeItem, error) {
	var rows []knowledgeRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, storeErr("list", err)
	}
	out := make([]*types.KnowledgeItem, 0, len(rows))
	for i := range rows {
		item, err := fromRow(&rows[i])
		if err != nil {
			s.logger.Warn("skipping malformed knowledge row",
				zap.String("id", rows[i].ID), zap.Error(err))
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

// ListByMetadata 列出本用户 metadata[key] == value 的行。
// 元数据是 JSON 文本列，过滤在客户端完成。
func (s *GormStore) ListByMetadata(ctx context.Context, userID, key string, value any) ([]*types.KnowledgeItem, error) {
	all, err := s.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*types.KnowledgeItem, 0, len(all))
	for _, item := range all {
		if metaMatches(item, key, value) {
			out = append(out, item)
		}
	}
	return out, nil
}

// UpdateMetadata 合并写入元数据
func (s *GormStore) UpdateMetadata(ctx context.Context, userID, id string, metadata map[string]any) error {
	item, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if item.Metadata == nil {
		item.Metadata = make(map[string]any, len(metadata))
	}
	for k, v := range metadata {
		item.Metadata[k] = v
	}
	merged, err := json.Marshal(item.Metadata)
	if err != nil {
		return storeErr("update metadata", err)
	}
	if err := s.db.WithContext(ctx).Model(&knowledgeRow{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{"metadata": string(merged), "updated_at": time.Now()}).Error; err != nil {
		return storeErr("update metadata", err)
	}
	return nil
}

// Delete 删除本用户的行，跨用户删除被拒绝
func (s *GormStore) Delete(ctx context.Context, userID, id string) error {
	if err := s.checkOwner(ctx, id, userID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).
		Delete(&knowledgeRow{}).Error; err != nil {
		return storeErr("delete", err)
	}
	return nil
}

// CountByUser 返回本用户的行数
func (s *GormStore) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&knowledgeRow{}).
		Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, storeErr("count", err)
	}
	return count, nil
}

// ClearAll 清空全部数据（测试用）
func (s *GormStore) ClearAll(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&knowledgeRow{}).Error; err != nil {
		return storeErr("clear", err)
	}
	return nil
}
