// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// 任务类型：upload 对应一次文件上传，process 对应一次切分处理。
const (
	KindUpload  = "upload"
	KindProcess = "process"
)

// EngagementTask represents a user engagement event to be applied to the stats store.
type EngagementTask struct {
	Kind           string  `json:"kind"`
	UserID         uint    `json:"user_id"`
	FileID         uint    `json:"file_id"`
	FileSize       int64   `json:"file_size,omitempty"`
	MediaType      string  `json:"media_type,omitempty"`
	ChunksSent     int64   `json:"chunks_sent,omitempty"`
	ProcessSeconds float64 `json:"process_seconds,omitempty"`
	Success        bool    `json:"success"`
}
