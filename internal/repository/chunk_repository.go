package repository

import (
	"chunkit-go/internal/model"

	"gorm.io/gorm"
)

// ChunkRepository 接口定义了文件分块记录的持久化操作。
type ChunkRepository interface {
	// ReplaceForFile 以一个事务原子地替换指定文件的全部分块记录：
	// 旧批次（若有）被整体删除，新批次按传入顺序整体写入。
	// 任何一步失败都会回滚，不会留下可见的半截批次。
	ReplaceForFile(fileID uint, chunks []*model.Chunk) error
	FindByFileID(fileID uint) ([]model.Chunk, error)
}

// chunkRepository 是 ChunkRepository 接口的 GORM 实现。
type chunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository 创建一个新的 ChunkRepository 实例。
func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

// ReplaceForFile 在单个事务内先删后插，保证重试切分会取代旧批次而不是追加。
func (r *chunkRepository) ReplaceForFile(fileID uint, chunks []*model.Chunk) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", fileID).Delete(&model.Chunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.Create(chunks).Error
	})
}

// FindByFileID 按位置升序返回指定文件的所有分块记录。
func (r *chunkRepository) FindByFileID(fileID uint) ([]model.Chunk, error) {
	var chunks []model.Chunk
	err := r.db.Where("file_id = ?", fileID).Order("position asc").Find(&chunks).Error
	return chunks, err
}
