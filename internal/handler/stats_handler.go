package handler

import (
	"math"
	"net/http"

	"chunkit-go/internal/model"
	"chunkit-go/internal/service"

	"github.com/gin-gonic/gin"
)

// StatsHandler 负责处理用户参与度统计相关的 API 请求。
type StatsHandler struct {
	statsService service.StatsService
}

// NewStatsHandler 创建一个新的 StatsHandler 实例。
func NewStatsHandler(statsService service.StatsService) *StatsHandler {
	return &StatsHandler{statsService: statsService}
}

// StatsResponse 是统计文档的对外视图。
// 内部文档用哨兵值表示"尚无数据"的极值，对外统一转成 0。
type StatsResponse struct {
	FilesUploaded       int64            `json:"filesUploaded"`
	TotalSize           int64            `json:"totalSize"`
	ChunksSent          int64            `json:"chunksSent"`
	FileTypeCounts      map[string]int64 `json:"fileTypeCounts"`
	LargestFileSize     int64            `json:"largestFileSize"`
	SmallestFileSize    int64            `json:"smallestFileSize"`
	SuccessfulProcesses int64            `json:"successfulProcesses"`
	TotalAttempts       int64            `json:"totalAttempts"`
	FastestProcessTime  float64          `json:"fastestProcessTime"`
	SlowestProcessTime  float64          `json:"slowestProcessTime"`
	ActivityHours       []int            `json:"activityHours"`
	LastActiveDate      string           `json:"lastActiveDate"`
	CurrentStreak       int              `json:"currentStreak"`
	LongestStreak       int              `json:"longestStreak"`
	Achievements        []string         `json:"achievements"`
}

func newStatsResponse(record *model.EngagementRecord) StatsResponse {
	resp := StatsResponse{
		FilesUploaded:       record.FilesUploaded,
		TotalSize:           record.TotalSize,
		ChunksSent:          record.ChunksSent,
		FileTypeCounts:      record.FileTypeCounts,
		LargestFileSize:     record.LargestFileSize,
		SmallestFileSize:    record.SmallestFileSize,
		SuccessfulProcesses: record.SuccessfulProcesses,
		TotalAttempts:       record.TotalAttempts,
		FastestProcessTime:  record.FastestProcessTime,
		SlowestProcessTime:  record.SlowestProcessTime,
		ActivityHours:       record.ActivityHours,
		LastActiveDate:      record.LastActiveDate,
		CurrentStreak:       record.CurrentStreak,
		LongestStreak:       record.LongestStreak,
		Achievements:        record.Achievements,
	}
	if record.SmallestFileSize == math.MaxInt64 {
		resp.SmallestFileSize = 0
	}
	if math.IsInf(record.FastestProcessTime, 1) {
		resp.FastestProcessTime = 0
	}
	if resp.FileTypeCounts == nil {
		resp.FileTypeCounts = map[string]int64{}
	}
	if resp.ActivityHours == nil {
		resp.ActivityHours = []int{}
	}
	if resp.Achievements == nil {
		resp.Achievements = []string{}
	}
	return resp
}

// GetStats 返回当前用户的完整统计视图。
// 统计文档尚不存在时返回全零视图，而不是 404。
func (h *StatsHandler) GetStats(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	record := h.statsService.GetRecord(c.Request.Context(), user.ID)
	if record == nil {
		record = &model.EngagementRecord{
			SmallestFileSize:   math.MaxInt64,
			FastestProcessTime: math.Inf(1),
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"data":    newStatsResponse(record),
		"message": "success",
	})
}

// GetRank 返回当前用户按累计上传体积的名次与参与用户总数。
func (h *StatsHandler) GetRank(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	rank, total := h.statsService.GetRank(c.Request.Context(), user.ID)
	if rank == 0 {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    http.StatusNotFound,
			"message": "暂无统计数据",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"rank":  rank,
			"total": total,
		},
	})
}

// RefreshAchievements 重新求值成就规则并返回本次新解锁的成就。
// 完整列表通过 GetStats 的 achievements 字段获取。
func (h *StatsHandler) RefreshAchievements(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	newly := h.statsService.EvaluateAchievements(c.Request.Context(), user.ID)
	if newly == nil {
		newly = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"data":    gin.H{"newlyEarned": newly},
		"message": "success",
	})
}
