package model

import "time"

// EngagementRecord 是 MongoDB 中每个用户唯一的统计文档。
// 所有计数器、极值和成就都通过单条原子更新语句维护，
// 文档结构与 stats 集合中的字段一一对应。
type EngagementRecord struct {
	UserID    uint      `bson:"user_id" json:"userId"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`

	FilesUploaded  int64            `bson:"files_uploaded" json:"filesUploaded"`
	TotalSize      int64            `bson:"total_size" json:"totalSize"`
	ChunksSent     int64            `bson:"chunks_sent" json:"chunksSent"`
	FileTypeCounts map[string]int64 `bson:"file_type_counts" json:"fileTypeCounts"`

	// 尺寸极值。SmallestFileSize 以 MaxInt64 作为“尚无观测”的哨兵值，
	// 这样首次 $min 更新即为第一次观测值。
	LargestFileSize  int64 `bson:"largest_file_size" json:"largestFileSize"`
	SmallestFileSize int64 `bson:"smallest_file_size" json:"smallestFileSize"`

	SuccessfulProcesses int64 `bson:"successful_processes" json:"successfulProcesses"`
	TotalAttempts       int64 `bson:"total_attempts" json:"totalAttempts"`

	// 处理耗时极值（秒）。FastestProcessTime 以 +Inf 作为哨兵值。
	FastestProcessTime float64 `bson:"fastest_process_time" json:"fastestProcessTime"`
	SlowestProcessTime float64 `bson:"slowest_process_time" json:"slowestProcessTime"`

	// 活跃统计：出现过活动的小时集合（0-23）、最近活跃日期（UTC，YYYY-MM-DD）、
	// 当前与最长连续活跃天数。
	ActivityHours  []int  `bson:"activity_hours" json:"activityHours"`
	LastActiveDate string `bson:"last_active_date" json:"lastActiveDate"`
	CurrentStreak  int    `bson:"current_streak" json:"currentStreak"`
	LongestStreak  int    `bson:"longest_streak" json:"longestStreak"`

	// 已解锁的成就名称集合，只增不减。
	Achievements []string `bson:"achievements" json:"achievements"`
}
