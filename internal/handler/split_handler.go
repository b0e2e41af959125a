package handler

import (
	"errors"
	"net/http"

	"chunkit-go/internal/config"
	"chunkit-go/internal/service"
	"chunkit-go/internal/splitter"
	"chunkit-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SplitHandler 负责处理图片切分相关的 API 请求。
type SplitHandler struct {
	splitService service.SplitService
	splitCfg     config.SplitConfig
}

// NewSplitHandler 创建一个新的 SplitHandler 实例。
func NewSplitHandler(splitService service.SplitService, splitCfg config.SplitConfig) *SplitHandler {
	return &SplitHandler{splitService: splitService, splitCfg: splitCfg}
}

// SplitRequest 定义了切分 API 的请求体结构。chunks 缺省时使用配置默认值。
type SplitRequest struct {
	Chunks int `json:"chunks"`
}

// Split 对指定文件执行网格切分。
func (h *SplitHandler) Split(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	fileID, ok := pathID(c, "id")
	if !ok {
		return
	}

	// 请求体可以整体省略，此时使用配置的默认分块数
	var req SplitRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    http.StatusBadRequest,
				"message": "无效的请求负载",
			})
			return
		}
	}
	if req.Chunks <= 0 {
		req.Chunks = h.splitCfg.DefaultChunks
	}

	chunks, err := h.splitService.Split(c.Request.Context(), user.ID, fileID, req.Chunks)
	if err != nil {
		log.Warnf("Split: failed for user '%s', fileID: %d, error: %v", user.Username, fileID, err)
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrFileNotFound):
			status = http.StatusNotFound
		case errors.Is(err, service.ErrSplitInProgress):
			status = http.StatusConflict
		case errors.Is(err, service.ErrInvalidImage), errors.Is(err, splitter.ErrInvalidDimensions):
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"code": status, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"fileId": fileID,
			"count":  len(chunks),
			"chunks": chunks,
		},
	})
}

// ListChunks 返回指定文件最近一次切分产生的分块，按位置升序。
func (h *SplitHandler) ListChunks(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	fileID, ok := pathID(c, "id")
	if !ok {
		return
	}

	chunks, err := h.splitService.ListChunks(c.Request.Context(), user.ID, fileID)
	if err != nil {
		if errors.Is(err, service.ErrFileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    http.StatusNotFound,
				"message": "文件不存在",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "查询分块失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": chunks, "message": "success"})
}
