// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"strconv"
	"time"

	"chunkit-go/internal/model"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// splitLockTTL 限定单个文件切分锁的最长持有时间，
// 防止进程异常退出后锁永远无法释放。
const splitLockTTL = 10 * time.Minute

// FileRepository 接口定义了上传文件相关的数据持久化操作。
type FileRepository interface {
	Create(file *model.UploadedFile) error
	FindByID(fileID uint) (*model.UploadedFile, error)
	FindByUserID(userID uint) ([]model.UploadedFile, error)
	Delete(fileID uint) error

	// Split lock operations (Redis)
	AcquireSplitLock(ctx context.Context, fileID uint) (bool, error)
	ReleaseSplitLock(ctx context.Context, fileID uint) error
}

// fileRepository 是 FileRepository 接口的 GORM+Redis 实现。
type fileRepository struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewFileRepository 创建一个新的 FileRepository 实例。
func NewFileRepository(db *gorm.DB, redisClient *redis.Client) FileRepository {
	return &fileRepository{db: db, redisClient: redisClient}
}

// getSplitLockKey generates the redis key guarding a file's split request.
func (r *fileRepository) getSplitLockKey(fileID uint) string {
	return "split:lock:" + strconv.FormatUint(uint64(fileID), 10)
}

// Create 在数据库中创建一个新的上传文件记录。
func (r *fileRepository) Create(file *model.UploadedFile) error {
	return r.db.Create(file).Error
}

// FindByID 根据文件 ID 检索上传文件记录。
func (r *fileRepository) FindByID(fileID uint) (*model.UploadedFile, error) {
	var file model.UploadedFile
	err := r.db.First(&file, fileID).Error
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// FindByUserID 查找指定用户上传的所有文件。
func (r *fileRepository) FindByUserID(userID uint) ([]model.UploadedFile, error) {
	var files []model.UploadedFile
	err := r.db.Where("user_id = ?", userID).Find(&files).Error
	return files, err
}

// Delete 删除一个上传文件记录及其全部分块记录。
func (r *fileRepository) Delete(fileID uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", fileID).Delete(&model.Chunk{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.UploadedFile{}, fileID).Error
	})
}

// AcquireSplitLock 尝试获取指定文件的切分锁。
// 返回 false 表示该文件已有切分请求在进行中。
func (r *fileRepository) AcquireSplitLock(ctx context.Context, fileID uint) (bool, error) {
	return r.redisClient.SetNX(ctx, r.getSplitLockKey(fileID), 1, splitLockTTL).Result()
}

// ReleaseSplitLock 释放指定文件的切分锁。
func (r *fileRepository) ReleaseSplitLock(ctx context.Context, fileID uint) error {
	return r.redisClient.Del(ctx, r.getSplitLockKey(fileID)).Err()
}
