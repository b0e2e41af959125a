package service

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"chunkit-go/internal/model"
	"chunkit-go/internal/repository"
	"chunkit-go/internal/splitter"
	"chunkit-go/pkg/log"
	"chunkit-go/pkg/tasks"

	"gorm.io/gorm"
)

var (
	ErrFileNotFound    = errors.New("file not found")
	ErrSplitInProgress = errors.New("split already in progress for this file")
	ErrInvalidImage    = errors.New("file is not a splittable image")
	ErrSplitFailed     = errors.New("chunk generation failed")
	ErrUploadFailed    = errors.New("chunk upload failed")
	ErrPersistFailed   = errors.New("chunk persistence failed")
)

// ObjectStore 抽象了分块产物的对象存储上传与清理能力。
type ObjectStore interface {
	UploadLocalFile(ctx context.Context, localPath, objectName, contentType string) (string, error)
	RemoveObject(ctx context.Context, objectName string) error
}

// TaskProducer 抽象了统计任务的异步投递能力。
type TaskProducer interface {
	ProduceEngagementTask(task tasks.EngagementTask) error
}

// SplitService 接口定义了图片切分编排相关的业务操作。
type SplitService interface {
	// Split 对指定文件执行一次完整的网格切分：规划网格、并行生成
	// 分块、逐个上传到对象存储，最后以事务方式替换该文件的历史分块。
	// 重复切分会整体取代上一次的结果，不会与之混合。
	Split(ctx context.Context, userID, fileID uint, chunks int) ([]model.Chunk, error)
	ListChunks(ctx context.Context, userID, fileID uint) ([]model.Chunk, error)
}

// splitService 是 SplitService 接口的实现。
type splitService struct {
	fileRepo  repository.FileRepository
	chunkRepo repository.ChunkRepository
	executor  *splitter.Executor
	store     ObjectStore
	producer  TaskProducer
}

// NewSplitService 创建一个新的 SplitService 实例。
func NewSplitService(
	fileRepo repository.FileRepository,
	chunkRepo repository.ChunkRepository,
	executor *splitter.Executor,
	store ObjectStore,
	producer TaskProducer,
) SplitService {
	return &splitService{
		fileRepo:  fileRepo,
		chunkRepo: chunkRepo,
		executor:  executor,
		store:     store,
		producer:  producer,
	}
}

func (s *splitService) Split(ctx context.Context, userID, fileID uint, chunks int) ([]model.Chunk, error) {
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

	// 同一文件同一时刻只允许一次切分，避免两次执行交错后
	// 持久化出混合批次。
	acquired, err := s.fileRepo.AcquireSplitLock(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrSplitInProgress
	}
	defer s.fileRepo.ReleaseSplitLock(ctx, fileID)

	start := time.Now()
	result, err := s.doSplit(ctx, file, chunks)
	elapsed := time.Since(start).Seconds()

	// 无论成败都投递一条处理统计任务；统计链路绝不反向影响切分结果。
	task := tasks.EngagementTask{
		Kind:           tasks.KindProcess,
		UserID:         userID,
		FileID:         fileID,
		FileSize:       file.Size,
		MediaType:      file.MediaType,
		ChunksSent:     int64(len(result)),
		ProcessSeconds: elapsed,
		Success:        err == nil,
	}
	if perr := s.producer.ProduceEngagementTask(task); perr != nil {
		log.Warnf("[SplitService] 投递处理统计任务失败, fileID: %d, error: %v", fileID, perr)
	}

	if err != nil {
		return nil, err
	}
	log.Infof("[SplitService] 切分完成, fileID: %d, chunks: %d, elapsed: %.3fs",
		fileID, len(result), elapsed)
	return result, nil
}

// doSplit 执行切分主体：几何规划、分块生成、上传与持久化。
// 工作目录在返回前整体清理，对象存储中已上传的分块由
// ReplaceForFile 的整体替换语义保证不会产生可见的半成品批次。
func (s *splitService) doSplit(ctx context.Context, file *model.UploadedFile, chunks int) ([]model.Chunk, error) {
	width, height, err := splitter.ProbeDimensions(file.StoragePath)
	if err != nil {
		log.Errorf("[SplitService] 读取图片尺寸失败, fileID: %d, path: %s, error: %v",
			file.ID, file.StoragePath, err)
		return nil, ErrInvalidImage
	}

	plan, err := splitter.Plan(width, height, chunks)
	if err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", fmt.Sprintf("chunkit-split-%d-", file.ID))
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	artifacts, err := s.executor.Execute(ctx, file.StoragePath, workDir, plan)
	if err != nil {
		log.Errorf("[SplitService] 分块生成失败, fileID: %d, error: %v", file.ID, err)
		return nil, ErrSplitFailed
	}

	ext := filepath.Ext(file.StoragePath)
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// 上一批分块的数量。位置重合的对象会被同名覆盖，超出新批次的
	// 位置则成为需要清理的陈旧对象。
	prevCount := 0
	if prev, perr := s.chunkRepo.FindByFileID(file.ID); perr == nil {
		prevCount = len(prev)
	}

	records := make([]*model.Chunk, 0, len(artifacts))
	for _, artifact := range artifacts {
		objectName := fmt.Sprintf("chunks/%d/%d%s", file.ID, artifact.Position, ext)
		url, err := s.store.UploadLocalFile(ctx, artifact.Path, objectName, contentType)
		if err != nil {
			log.Errorf("[SplitService] 分块上传失败, fileID: %d, position: %d, error: %v",
				file.ID, artifact.Position, err)
			s.removeOrphanObjects(ctx, file.ID, records, prevCount, ext)
			return nil, ErrUploadFailed
		}
		records = append(records, &model.Chunk{
			FileID:   file.ID,
			ChunkURL: url,
			Position: artifact.Position,
		})
	}

	if err := s.chunkRepo.ReplaceForFile(file.ID, records); err != nil {
		log.Errorf("[SplitService] 分块持久化失败, fileID: %d, error: %v", file.ID, err)
		s.removeOrphanObjects(ctx, file.ID, records, prevCount, ext)
		return nil, ErrPersistFailed
	}

	// 新批次比上一批小时，清掉超出新批次的陈旧分块对象。
	for pos := len(records) + 1; pos <= prevCount; pos++ {
		s.removeChunkObject(ctx, file.ID, pos, ext)
	}

	out := make([]model.Chunk, len(records))
	for i, record := range records {
		out[i] = *record
	}
	return out, nil
}

// removeOrphanObjects 在上传或持久化失败后清理本次已上传、又没有任何
// 记录指向的分块对象。位置落在上一批范围内的对象是同名覆盖，旧记录
// 仍然指向它们，不能删。
func (s *splitService) removeOrphanObjects(ctx context.Context, fileID uint, uploaded []*model.Chunk, prevCount int, ext string) {
	for _, record := range uploaded {
		if record.Position > prevCount {
			s.removeChunkObject(ctx, fileID, record.Position, ext)
		}
	}
}

// removeChunkObject 尽力删除一个分块对象，失败只记日志不中断流程。
func (s *splitService) removeChunkObject(ctx context.Context, fileID uint, position int, ext string) {
	objectName := fmt.Sprintf("chunks/%d/%d%s", fileID, position, ext)
	if err := s.store.RemoveObject(ctx, objectName); err != nil {
		log.Warnf("[SplitService] 清理分块对象失败, fileID: %d, object: %s, error: %v",
			fileID, objectName, err)
	}
}

func (s *splitService) ListChunks(ctx context.Context, userID, fileID uint) ([]model.Chunk, error) {
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
	return s.chunkRepo.FindByFileID(fileID)
}
