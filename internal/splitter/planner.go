// Package splitter 实现了图片网格切分的核心算法：
// 几何规划（planner）与并发裁剪执行（executor）。
package splitter

import (
	"errors"
	"fmt"
	"image"
	"math"
	"os"
)

// ErrInvalidDimensions 表示源图尺寸或请求的切分数量不合法，
// 或无法从源文件探测出像素尺寸。
var ErrInvalidDimensions = errors.New("invalid image dimensions")

// Cell 是切分网格中的一个矩形单元，像素坐标以图片左上角为原点。
// Position 是行优先（从左上到右下）的 1 基序号，后续分块记录的
// 位置即来源于此。
type Cell struct {
	Left     int
	Top      int
	Width    int
	Height   int
	Position int
}

// PartitionPlan 是一次切分的完整几何方案。
// 不变式：所有 Cell 恰好无重叠、无缝隙地覆盖整个 Width×Height 像素矩形。
type PartitionPlan struct {
	Width  int
	Height int
	Rows   int
	Cols   int
	Cells  []Cell
}

// Plan 根据源图尺寸和请求的切分数量计算网格方案。
// 网格为 cols×rows，其中 cols = floor(sqrt(N))，rows = floor(N/cols)，
// 因此实际产生的分块数 rows*cols 可能小于请求值，这不是错误。
// 单元宽高向上取整，最后一列/行收窄到剩余像素，保证整图精确覆盖。
func Plan(width, height, chunks int) (*PartitionPlan, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if chunks <= 0 {
		return nil, fmt.Errorf("%w: 请求的分块数 %d 不合法", ErrInvalidDimensions, chunks)
	}

	cols := int(math.Sqrt(float64(chunks)))
	rows := chunks / cols

	cellWidth := (width + cols - 1) / cols
	cellHeight := (height + rows - 1) / rows

	// 当网格数超过像素数时，向上取整的单元会越过图像右/下边界，
	// 把网格收缩到实际含有像素的列数和行数，维持整图精确覆盖。
	cols = (width + cellWidth - 1) / cellWidth
	rows = (height + cellHeight - 1) / cellHeight

	cells := make([]Cell, 0, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			left := x * cellWidth
			top := y * cellHeight
			w := cellWidth
			if left+w > width {
				w = width - left
			}
			h := cellHeight
			if top+h > height {
				h = height - top
			}
			cells = append(cells, Cell{
				Left:     left,
				Top:      top,
				Width:    w,
				Height:   h,
				Position: y*cols + x + 1,
			})
		}
	}

	return &PartitionPlan{
		Width:  width,
		Height: height,
		Rows:   rows,
		Cols:   cols,
		Cells:  cells,
	}, nil
}

// ProbeDimensions 探测源文件的像素尺寸。
// 仅解码图片头部而不加载全图。无法识别的文件返回 ErrInvalidDimensions。
func ProbeDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("打开源文件失败: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: 无法解码源文件 %s: %v", ErrInvalidDimensions, path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, cfg.Width, cfg.Height)
	}
	return cfg.Width, cfg.Height, nil
}
