package handler

import (
	"errors"
	"net/http"
	"strconv"

	"chunkit-go/internal/model"
	"chunkit-go/internal/service"
	"chunkit-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// FileHandler 负责处理文件上传与管理相关的 API 请求。
type FileHandler struct {
	fileService service.FileService
}

// NewFileHandler 创建一个新的 FileHandler 实例。
func NewFileHandler(fileService service.FileService) *FileHandler {
	return &FileHandler{fileService: fileService}
}

// currentUser 从上下文中取出 AuthMiddleware 注入的用户对象。
func currentUser(c *gin.Context) (*model.User, bool) {
	userValue, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return nil, false
	}
	user, ok := userValue.(*model.User)
	if !ok || user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "用户数据类型错误"})
		return nil, false
	}
	return user, true
}

// pathID 解析路径参数中的数字 ID。
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的 " + name + " 参数",
		})
		return 0, false
	}
	return uint(id), true
}

// Upload 处理图片上传请求（multipart 表单字段 "file"）。
func (h *FileHandler) Upload(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：缺少 file 字段",
		})
		return
	}

	file, err := h.fileService.Upload(c.Request.Context(), user.ID, fileHeader)
	if err != nil {
		log.Warnf("Upload: failed for user '%s', error: %v", user.Username, err)
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrFileTooLarge):
			status = http.StatusRequestEntityTooLarge
		case errors.Is(err, service.ErrUnsupportedFileType):
			status = http.StatusUnsupportedMediaType
		}
		c.JSON(status, gin.H{"code": status, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": file, "message": "success"})
}

// List 返回当前用户的全部文件。
func (h *FileHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	files, err := h.fileService.ListByUser(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "查询文件列表失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": files, "message": "success"})
}

// Get 返回单个文件的详情。
func (h *FileHandler) Get(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	fileID, ok := pathID(c, "id")
	if !ok {
		return
	}

	file, err := h.fileService.GetFile(c.Request.Context(), user.ID, fileID)
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
			"message": "查询文件失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": file, "message": "success"})
}

// Download 返回原图的预签名下载地址。
func (h *FileHandler) Download(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	fileID, ok := pathID(c, "id")
	if !ok {
		return
	}

	url, err := h.fileService.DownloadURL(c.Request.Context(), user.ID, fileID)
	if err != nil {
		if errors.Is(err, service.ErrFileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    http.StatusNotFound,
				"message": "文件不存在",
			})
			return
		}
		log.Warnf("Download: failed for user '%s', fileID: %d, error: %v", user.Username, fileID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "生成下载地址失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": gin.H{"url": url}, "message": "success"})
}

// Delete 删除一个文件及其分块。
func (h *FileHandler) Delete(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	fileID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.fileService.Delete(c.Request.Context(), user.ID, fileID); err != nil {
		if errors.Is(err, service.ErrFileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    http.StatusNotFound,
				"message": "文件不存在",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "删除文件失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "文件已删除"})
}
