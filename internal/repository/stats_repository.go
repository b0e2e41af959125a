package repository

import (
	"context"
	"math"
	"strings"
	"time"

	"chunkit-go/internal/model"
	"chunkit-go/pkg/log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// StatsRepository 接口定义了用户统计文档（EngagementRecord）的持久化操作。
//
// 与业务主链路不同，统计链路采用软错误模型：任何底层存储故障都只记录
// 日志并返回失败标记/空结果，绝不向调用方抛出错误——统计是尽力而为的，
// 不允许拖垮上传与切分的主流程。
//
// 每个写操作都表达为对单个用户文档的一条原子更新语句
// （$inc/$max/$min/$addToSet），并发调用同一用户时由 MongoDB 保证
// 不丢失更新，应用侧不需要乐观锁。
type StatsRepository interface {
	EnsureUser(ctx context.Context, userID uint) bool
	GetRecord(ctx context.Context, userID uint) (*model.EngagementRecord, bool)
	ApplyUploadStats(ctx context.Context, userID uint, size int64, mediaType string) bool
	ApplyProcessStats(ctx context.Context, userID uint, seconds float64, chunksSent int64, success bool) bool
	ApplyActivity(ctx context.Context, userID uint, today string, streak int, hour int) bool
	CountUsers(ctx context.Context) (int64, bool)
	CountUsersWithLargerSize(ctx context.Context, size int64) (int64, bool)
	SetAchievements(ctx context.Context, userID uint, achievements []string) bool
}

// statsRepository 是 StatsRepository 接口的 MongoDB 实现。
type statsRepository struct {
	col *mongo.Collection
}

// NewStatsRepository 创建一个新的 StatsRepository 实例，
// 并确保 user_id 上存在唯一索引（EnsureUser 的并发安全依赖它）。
func NewStatsRepository(col *mongo.Collection) StatsRepository {
	r := &statsRepository{col: col}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		log.Errorf("[StatsRepository] 创建 user_id 唯一索引失败: %v", err)
	}
	return r
}

// EnsureUser 为用户创建带默认值的统计文档，已存在则不做任何修改。
// 通过 upsert + 唯一索引保证并发首次访问时也只会创建一份。
func (r *statsRepository) EnsureUser(ctx context.Context, userID uint) bool {
	defaults := bson.M{
		"created_at":           time.Now().UTC(),
		"files_uploaded":       int64(0),
		"total_size":           int64(0),
		"chunks_sent":          int64(0),
		"file_type_counts":     bson.M{},
		"largest_file_size":    int64(0),
		"smallest_file_size":   int64(math.MaxInt64),
		"successful_processes": int64(0),
		"total_attempts":       int64(0),
		"fastest_process_time": math.Inf(1),
		"slowest_process_time": float64(0),
		"activity_hours":       []int{},
		"last_active_date":     "",
		"current_streak":       0,
		"longest_streak":       0,
		"achievements":         []string{},
	}

	_, err := r.col.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$setOnInsert": defaults},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		log.Errorf("[StatsRepository] EnsureUser 失败, userID: %d, error: %v", userID, err)
		return false
	}
	return true
}

// GetRecord 读取用户的统计文档。读取失败或文档不存在时返回 (nil, false)。
func (r *statsRepository) GetRecord(ctx context.Context, userID uint) (*model.EngagementRecord, bool) {
	var record model.EngagementRecord
	err := r.col.FindOne(ctx, bson.M{"user_id": userID}).Decode(&record)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			log.Errorf("[StatsRepository] 读取统计文档失败, userID: %d, error: %v", userID, err)
		}
		return nil, false
	}
	return &record, true
}

// ApplyUploadStats 记录一次文件上传：累加计数与体积，更新尺寸极值。
// 极值比较发生在存储端（$max/$min 对比文档中已持久化的值）。
func (r *statsRepository) ApplyUploadStats(ctx context.Context, userID uint, size int64, mediaType string) bool {
	update := bson.M{
		"$inc": bson.M{
			"files_uploaded": int64(1),
			"total_size":     size,
			"file_type_counts." + sanitizeTypeKey(mediaType): int64(1),
		},
		"$max": bson.M{"largest_file_size": size},
		"$min": bson.M{"smallest_file_size": size},
	}
	return r.safeUpdate(ctx, userID, update, "ApplyUploadStats")
}

// ApplyProcessStats 记录一次切分处理：累加尝试/成功次数与分块数，更新耗时极值。
func (r *statsRepository) ApplyProcessStats(ctx context.Context, userID uint, seconds float64, chunksSent int64, success bool) bool {
	successInc := int64(0)
	if success {
		successInc = 1
	}
	update := bson.M{
		"$inc": bson.M{
			"successful_processes": successInc,
			"total_attempts":       int64(1),
			"chunks_sent":          chunksSent,
		},
		"$min": bson.M{"fastest_process_time": seconds},
		"$max": bson.M{"slowest_process_time": seconds},
	}
	return r.safeUpdate(ctx, userID, update, "ApplyProcessStats")
}

// ApplyActivity 写入一次活跃记录：最近活跃日期、当前连续天数、
// 最长连续天数（$max）以及活跃小时集合（$addToSet 去重）。
func (r *statsRepository) ApplyActivity(ctx context.Context, userID uint, today string, streak int, hour int) bool {
	update := bson.M{
		"$set": bson.M{
			"last_active_date": today,
			"current_streak":   streak,
		},
		"$max":      bson.M{"longest_streak": streak},
		"$addToSet": bson.M{"activity_hours": hour},
	}
	return r.safeUpdate(ctx, userID, update, "ApplyActivity")
}

// CountUsers 统计全部用户数。
func (r *statsRepository) CountUsers(ctx context.Context) (int64, bool) {
	total, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		log.Errorf("[StatsRepository] 统计用户总数失败: %v", err)
		return 0, false
	}
	return total, true
}

// CountUsersWithLargerSize 统计累计上传体积严格大于给定值的用户数。
func (r *statsRepository) CountUsersWithLargerSize(ctx context.Context, size int64) (int64, bool) {
	count, err := r.col.CountDocuments(ctx, bson.M{"total_size": bson.M{"$gt": size}})
	if err != nil {
		log.Errorf("[StatsRepository] 统计排名失败: %v", err)
		return 0, false
	}
	return count, true
}

// SetAchievements 整体替换用户的已解锁成就集合。
func (r *statsRepository) SetAchievements(ctx context.Context, userID uint, achievements []string) bool {
	update := bson.M{"$set": bson.M{"achievements": achievements}}
	return r.safeUpdate(ctx, userID, update, "SetAchievements")
}

// safeUpdate 对指定用户文档执行一条更新语句，失败时记录日志并返回 false。
func (r *statsRepository) safeUpdate(ctx context.Context, userID uint, update bson.M, op string) bool {
	_, err := r.col.UpdateOne(ctx, bson.M{"user_id": userID}, update)
	if err != nil {
		log.Errorf("[StatsRepository] %s 失败, userID: %d, error: %v", op, userID, err)
		return false
	}
	return true
}

// sanitizeTypeKey 把媒体类型转成合法的 Mongo 字段名。
// 媒体类型中可能出现 '.'（如 application/vnd.ms-excel），
// 而 '.' 在更新路径中会被解释为嵌套字段分隔符。
func sanitizeTypeKey(mediaType string) string {
	return strings.NewReplacer(".", "_", "$", "_").Replace(mediaType)
}
