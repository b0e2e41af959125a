package splitter

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
)

// Artifact 是执行器产出的一个分块文件，Path 指向工作目录内的本地文件，
// Position 与规划方案中对应 Cell 的序号一致。
type Artifact struct {
	Position int
	Path     string
}

// ChunkExecutionError 表示某个单元的裁剪或编码失败，
// 携带失败单元的序号以便调用方定位和重试。
type ChunkExecutionError struct {
	Position int
	Err      error
}

func (e *ChunkExecutionError) Error() string {
	return fmt.Sprintf("分块 %d 裁剪失败: %v", e.Position, e.Err)
}

func (e *ChunkExecutionError) Unwrap() error {
	return e.Err
}

// Executor 并发执行切分方案中的全部裁剪操作。
type Executor struct {
	workers int
}

// NewExecutor 创建一个新的执行器。workers <= 0 时使用 CPU 核心数。
func NewExecutor(workers int) *Executor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Executor{workers: workers}
}

// Execute 按方案裁剪源图片，把每个分块以源图相同的编码格式写入 workDir，
// 并按 Position 升序返回产物列表。各单元由固定大小的 worker 池并发处理，
// 完成顺序不影响返回顺序：每个任务在派发前就绑定了自己的方案序号，
// 结果按序号写入预分配的结果数组（而不是按到达顺序追加）。
// 任何一个单元失败都会使整批失败，调用方不会拿到部分结果。
// Execute 不清理 workDir，目录的删除由调用方负责。
func (e *Executor) Execute(ctx context.Context, sourcePath, workDir string, plan *PartitionPlan) ([]Artifact, error) {
	src, err := imaging.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("加载源图片失败: %w", err)
	}

	format, err := imaging.FormatFromFilename(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("无法识别源图片的编码格式: %w", err)
	}

	base := filepath.Base(sourcePath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	// 结果数组按方案序号预分配，每个 worker 只写自己负责的下标，
	// 因此不需要对结果本身加锁。
	results := make([]Artifact, len(plan.Cells))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		execErr error
	)
	setErr := func(err error) {
		mu.Lock()
		if execErr == nil {
			execErr = err
		}
		mu.Unlock()
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return execErr != nil
	}

	jobs := make(chan Cell)
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cell := range jobs {
				if ctx.Err() != nil {
					setErr(ctx.Err())
					continue
				}
				if failed() {
					continue
				}
				rect := image.Rect(cell.Left, cell.Top, cell.Left+cell.Width, cell.Top+cell.Height)
				cropped := imaging.Crop(src, rect)
				outPath := filepath.Join(workDir, fmt.Sprintf("%s.chunk%d%s", name, cell.Position, ext))
				if err := imaging.Save(cropped, outPath, formatSaveOptions(format)...); err != nil {
					setErr(&ChunkExecutionError{Position: cell.Position, Err: err})
					continue
				}
				results[cell.Position-1] = Artifact{Position: cell.Position, Path: outPath}
			}
		}()
	}

	for _, cell := range plan.Cells {
		if ctx.Err() != nil {
			// 停止派发剩余单元，已派发的任务自然结束
			setErr(ctx.Err())
			break
		}
		jobs <- cell
		if failed() {
			break
		}
	}
	close(jobs)
	wg.Wait()

	if execErr != nil {
		return nil, execErr
	}
	return results, nil
}

// formatSaveOptions 返回按格式编码时的保存选项。
func formatSaveOptions(format imaging.Format) []imaging.EncodeOption {
	if format == imaging.JPEG {
		return []imaging.EncodeOption{imaging.JPEGQuality(90)}
	}
	return nil
}
