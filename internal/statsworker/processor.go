// Package statsworker 消费 Kafka 中的参与度任务并落地统计更新。
package statsworker

import (
	"context"
	"fmt"

	"chunkit-go/internal/service"
	"chunkit-go/pkg/log"
	"chunkit-go/pkg/tasks"
)

// Processor 把一条参与度任务转换为对统计文档的一组更新：
// 计数/极值更新、活跃记录，最后重算成就。
type Processor struct {
	stats service.StatsService
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(stats service.StatsService) *Processor {
	return &Processor{stats: stats}
}

// Process 处理单条任务。只有文档初始化失败会返回错误触发消费重试；
// 其后的统计写入是尽力而为的，单条失败不值得重放整个任务。
func (p *Processor) Process(ctx context.Context, task tasks.EngagementTask) error {
	if !p.stats.EnsureUser(ctx, task.UserID) {
		return fmt.Errorf("ensure stats document for user %d failed", task.UserID)
	}

	switch task.Kind {
	case tasks.KindUpload:
		p.stats.RecordUpload(ctx, task.UserID, task.FileSize, task.MediaType)
	case tasks.KindProcess:
		p.stats.RecordProcess(ctx, task.UserID, task.ProcessSeconds, task.ChunksSent, task.Success)
	default:
		// 未知类型直接丢弃，重试也不会让它变得可识别。
		log.Warnf("[StatsWorker] 丢弃未知任务类型: %s, userID: %d", task.Kind, task.UserID)
		return nil
	}

	p.stats.RecordActivity(ctx, task.UserID)
	p.stats.EvaluateAchievements(ctx, task.UserID)
	return nil
}
