// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chunkit-go/internal/config"
	"chunkit-go/internal/model"
	"chunkit-go/internal/repository"
	"chunkit-go/pkg/log"
	"chunkit-go/pkg/tasks"

	"gorm.io/gorm"
)

var (
	ErrFileTooLarge        = errors.New("file exceeds the maximum allowed size")
	ErrUnsupportedFileType = errors.New("unsupported file type")
)

// imageExtensions 列出允许上传的图片扩展名。
// 切分执行器只处理这些格式，入口处即拒绝其余类型。
var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".bmp":  {},
	".tif":  {},
	".tiff": {},
}

// DownloadStore 在上传能力之外补充预签名下载地址的生成。
type DownloadStore interface {
	ObjectStore
	PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// FileService 接口定义了文件上传与管理相关的业务操作。
type FileService interface {
	Upload(ctx context.Context, userID uint, fileHeader *multipart.FileHeader) (*model.UploadedFile, error)
	ListByUser(ctx context.Context, userID uint) ([]model.UploadedFile, error)
	GetFile(ctx context.Context, userID uint, fileID uint) (*model.UploadedFile, error)
	DownloadURL(ctx context.Context, userID uint, fileID uint) (string, error)
	Delete(ctx context.Context, userID uint, fileID uint) error
}

type fileService struct {
	fileRepo  repository.FileRepository
	store     DownloadStore
	producer  TaskProducer
	uploadCfg config.UploadConfig
}

// NewFileService 创建一个新的 FileService 实例。
func NewFileService(
	fileRepo repository.FileRepository,
	store DownloadStore,
	producer TaskProducer,
	uploadCfg config.UploadConfig,
) FileService {
	return &fileService{
		fileRepo:  fileRepo,
		store:     store,
		producer:  producer,
		uploadCfg: uploadCfg,
	}
}

// Upload 接收一个图片文件：落盘到本地上传目录供后续切分使用，
// 同步一份到对象存储作为原图的持久副本，最后写库并投递上传统计任务。
func (s *fileService) Upload(ctx context.Context, userID uint, fileHeader *multipart.FileHeader) (*model.UploadedFile, error) {
	log.Infof("[Upload] 开始处理文件上传, 用户ID: %d, 文件名: %s, 大小: %d",
		userID, fileHeader.Filename, fileHeader.Size)

	if fileHeader.Size > s.uploadCfg.MaxSizeMB*1024*1024 {
		return nil, ErrFileTooLarge
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if _, ok := imageExtensions[ext]; !ok {
		return nil, ErrUnsupportedFileType
	}

	localPath, err := s.saveLocal(fileHeader, ext)
	if err != nil {
		log.Errorf("[Upload] 保存本地文件失败, error: %v", err)
		return nil, err
	}

	mediaType := mime.TypeByExtension(ext)
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	objectName := originalObjectName(userID, localPath)
	objectURL, err := s.store.UploadLocalFile(ctx, localPath, objectName, mediaType)
	if err != nil {
		log.Errorf("[Upload] 上传原图到对象存储失败, error: %v", err)
		os.Remove(localPath)
		return nil, err
	}

	file := &model.UploadedFile{
		UserID:      userID,
		FileName:    fileHeader.Filename,
		MediaType:   mediaType,
		Size:        fileHeader.Size,
		StoragePath: localPath,
		ObjectURL:   objectURL,
	}
	if err := s.fileRepo.Create(file); err != nil {
		log.Errorf("[Upload] 创建文件记录失败, error: %v", err)
		os.Remove(localPath)
		return nil, err
	}

	task := tasks.EngagementTask{
		Kind:      tasks.KindUpload,
		UserID:    userID,
		FileID:    file.ID,
		FileSize:  file.Size,
		MediaType: mediaType,
	}
	if err := s.producer.ProduceEngagementTask(task); err != nil {
		log.Warnf("[Upload] 投递上传统计任务失败, fileID: %d, error: %v", file.ID, err)
	}

	log.Infof("[Upload] 文件上传成功, fileID: %d, 用户ID: %d", file.ID, userID)
	return file, nil
}

// saveLocal 把上传内容写入本地上传目录，文件名带纳秒时间戳避免冲突。
func (s *fileService) saveLocal(fileHeader *multipart.FileHeader, ext string) (string, error) {
	if err := os.MkdirAll(s.uploadCfg.Dir, 0o755); err != nil {
		return "", err
	}

	base := strings.TrimSuffix(filepath.Base(fileHeader.Filename), filepath.Ext(fileHeader.Filename))
	localPath := filepath.Join(s.uploadCfg.Dir, fmt.Sprintf("%d_%s%s", time.Now().UnixNano(), base, ext))

	src, err := fileHeader.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(localPath)
		return "", err
	}
	return localPath, nil
}

// originalObjectName 计算原图在对象存储中的对象名。
// 上传与下载共用该推导，保证两侧指向同一对象。
func originalObjectName(userID uint, localPath string) string {
	return fmt.Sprintf("originals/%d/%s", userID, filepath.Base(localPath))
}

func (s *fileService) ListByUser(ctx context.Context, userID uint) ([]model.UploadedFile, error) {
	return s.fileRepo.FindByUserID(userID)
}

// DownloadURL 为原图生成一个带时效的预签名下载地址。
func (s *fileService) DownloadURL(ctx context.Context, userID uint, fileID uint) (string, error) {
	file, err := s.GetFile(ctx, userID, fileID)
	if err != nil {
		return "", err
	}
	return s.store.PresignedURL(ctx, originalObjectName(userID, file.StoragePath), time.Hour)
}

func (s *fileService) GetFile(ctx context.Context, userID uint, fileID uint) (*model.UploadedFile, error) {
	file, err := s.fileRepo.FindByID(fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	if file.UserID != userID {
		return nil, ErrFileNotFound
	}
	return file, nil
}

// Delete 删除文件记录及其全部分块记录，并清理本地落盘副本。
func (s *fileService) Delete(ctx context.Context, userID uint, fileID uint) error {
	file, err := s.GetFile(ctx, userID, fileID)
	if err != nil {
		return err
	}
	if err := s.fileRepo.Delete(fileID); err != nil {
		log.Errorf("[Delete] 删除文件记录失败, fileID: %d, error: %v", fileID, err)
		return err
	}
	if file.StoragePath != "" {
		if err := os.Remove(file.StoragePath); err != nil && !os.IsNotExist(err) {
			log.Warnf("[Delete] 清理本地文件失败, path: %s, error: %v", file.StoragePath, err)
		}
	}
	return nil
}
