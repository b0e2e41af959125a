// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// UploadedFile 对应于数据库中的 'uploaded_file' 表。
// 它记录了用户上传的每个源文件的元数据。
type UploadedFile struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"userId"`
	FileName    string    `gorm:"type:varchar(255);not null" json:"fileName"`
	MediaType   string    `gorm:"type:varchar(100);not null" json:"mediaType"`
	Size        int64     `gorm:"not null" json:"size"`
	StoragePath string    `gorm:"type:varchar(255);not null" json:"-"` // 本地存储路径，仅服务端使用
	ObjectURL   string    `gorm:"type:varchar(512)" json:"objectUrl"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (UploadedFile) TableName() string {
	return "uploaded_file"
}

// Chunk 对应于数据库中的 'file_chunk' 表。
// 每一行是源文件网格切分后的一个矩形分块。
// 同一文件的 Position 从 1 开始按行优先顺序连续递增，不允许出现空洞或重复。
type Chunk struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID    uint      `gorm:"not null;index" json:"fileId"`
	ChunkURL  string    `gorm:"type:varchar(512);not null" json:"chunkUrl"`
	Position  int       `gorm:"not null" json:"position"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Chunk) TableName() string {
	return "file_chunk"
}
