package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chunkit-go/internal/model"
	"chunkit-go/internal/repository"
	"chunkit-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// rankCacheTTL 控制排名查询结果在 Redis 中的缓存时长。
// 排名需要对全集合做两次 count，短缓存可以挡掉热点用户的重复查询。
const rankCacheTTL = 30 * time.Second

// achievementRule 描述一条成就解锁规则：展示名 + 判定条件。
type achievementRule struct {
	name    string
	unlocks func(r *model.EngagementRecord) bool
}

// achievementRules 按固定顺序求值，保证成就列表的输出顺序稳定。
// 所有条件都是单调的：一旦满足，后续统计只会让它继续满足。
var achievementRules = []achievementRule{
	{"🎯 First File", func(r *model.EngagementRecord) bool { return r.FilesUploaded >= 1 }},
	{"🏆 File Master", func(r *model.EngagementRecord) bool { return r.FilesUploaded >= 100 }},
	{"💪 Data Heavyweight", func(r *model.EngagementRecord) bool { return r.TotalSize >= 1_000_000_000 }},
	{"⚡ Speed Demon", func(r *model.EngagementRecord) bool { return r.FastestProcessTime < 1.0 }},
	{"🔥 Streak Warrior", func(r *model.EngagementRecord) bool { return r.CurrentStreak >= 7 }},
	{"📚 Type Collector", func(r *model.EngagementRecord) bool { return len(r.FileTypeCounts) >= 5 }},
}

// StatsService 接口定义了用户参与度统计相关的业务操作。
//
// 所有方法都遵循软错误模型：存储失败只记日志，不返回 error，
// 查询类方法在失败时返回零值。统计链路永远不能阻断业务主链路。
type StatsService interface {
	// EnsureUser 为用户创建统计文档（若尚不存在），返回是否成功。
	// 这是唯一暴露成败的统计操作：异步消费侧据此决定是否重试。
	EnsureUser(ctx context.Context, userID uint) bool
	RecordUpload(ctx context.Context, userID uint, size int64, mediaType string)
	RecordProcess(ctx context.Context, userID uint, seconds float64, chunksSent int64, success bool)
	RecordActivity(ctx context.Context, userID uint)
	GetRecord(ctx context.Context, userID uint) *model.EngagementRecord
	GetRank(ctx context.Context, userID uint) (rank int64, total int64)
	// EvaluateAchievements 返回本次求值新解锁的成就（可能为空）。
	// 完整的已解锁列表始终在统计文档的 achievements 字段里。
	EvaluateAchievements(ctx context.Context, userID uint) []string
}

// statsService 是 StatsService 接口的实现。
type statsService struct {
	repo        repository.StatsRepository
	redisClient *redis.Client

	// now 可在测试中替换，用于固定日历日期。
	now func() time.Time
}

// NewStatsService 创建一个新的 StatsService 实例。
func NewStatsService(repo repository.StatsRepository, redisClient *redis.Client) StatsService {
	return &statsService{
		repo:        repo,
		redisClient: redisClient,
		now:         time.Now,
	}
}

func (s *statsService) EnsureUser(ctx context.Context, userID uint) bool {
	return s.repo.EnsureUser(ctx, userID)
}

func (s *statsService) RecordUpload(ctx context.Context, userID uint, size int64, mediaType string) {
	if !s.repo.ApplyUploadStats(ctx, userID, size, mediaType) {
		return
	}
	log.Debugf("[StatsService] 记录上传统计, userID: %d, size: %d, type: %s", userID, size, mediaType)
}

func (s *statsService) RecordProcess(ctx context.Context, userID uint, seconds float64, chunksSent int64, success bool) {
	if !s.repo.ApplyProcessStats(ctx, userID, seconds, chunksSent, success) {
		return
	}
	log.Debugf("[StatsService] 记录处理统计, userID: %d, seconds: %.3f, chunks: %d, success: %v",
		userID, seconds, chunksSent, success)
}

// RecordActivity 记录一次用户活跃：按 UTC 日历推导连续活跃天数，
// 并把当前小时加入活跃小时集合。
func (s *statsService) RecordActivity(ctx context.Context, userID uint) {
	record, ok := s.repo.GetRecord(ctx, userID)
	if !ok {
		log.Warnf("[StatsService] 统计文档不可读，跳过活跃记录, userID: %d", userID)
		return
	}

	nowUTC := s.now().UTC()
	today := nowUTC.Format("2006-01-02")
	streak := nextStreak(record.LastActiveDate, today, record.CurrentStreak)
	s.repo.ApplyActivity(ctx, userID, today, streak, nowUTC.Hour())
}

func (s *statsService) GetRecord(ctx context.Context, userID uint) *model.EngagementRecord {
	record, ok := s.repo.GetRecord(ctx, userID)
	if !ok {
		return nil
	}
	return record
}

// GetRank 返回用户按累计上传体积的名次与参与用户总数。
// 并列体积的用户获得相同名次。结果短时间缓存于 Redis。
func (s *statsService) GetRank(ctx context.Context, userID uint) (int64, int64) {
	cacheKey := fmt.Sprintf("stats:rank:%d", userID)
	if s.redisClient != nil {
		if cached, err := s.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			if rank, total, ok := parseRankCache(cached); ok {
				return rank, total
			}
		}
	}

	total, ok := s.repo.CountUsers(ctx)
	if !ok {
		return 0, 0
	}
	record, ok := s.repo.GetRecord(ctx, userID)
	if !ok {
		// 读不到该用户的统计文档时名次记 0，但总数仍然有效。
		return 0, total
	}
	larger, ok := s.repo.CountUsersWithLargerSize(ctx, record.TotalSize)
	if !ok {
		return 0, 0
	}
	rank := larger + 1

	if s.redisClient != nil {
		if err := s.redisClient.Set(ctx, cacheKey,
			fmt.Sprintf("%d/%d", rank, total), rankCacheTTL).Err(); err != nil {
			log.Warnf("[StatsService] 写入排名缓存失败, userID: %d, error: %v", userID, err)
		}
	}
	return rank, total
}

// EvaluateAchievements 根据当前统计求值全部成就规则，把新解锁的成就
// 追加持久化并返回。已解锁的成就永不回收；没有新解锁时不产生写操作，
// 因此连续两次调用第二次必然返回空。
func (s *statsService) EvaluateAchievements(ctx context.Context, userID uint) []string {
	record, ok := s.repo.GetRecord(ctx, userID)
	if !ok {
		return nil
	}

	existing := make(map[string]struct{}, len(record.Achievements))
	for _, name := range record.Achievements {
		existing[name] = struct{}{}
	}

	var newly []string
	for _, rule := range achievementRules {
		if _, has := existing[rule.name]; has {
			continue
		}
		if rule.unlocks(record) {
			newly = append(newly, rule.name)
		}
	}
	if len(newly) > 0 {
		s.repo.SetAchievements(ctx, userID, append(record.Achievements, newly...))
		log.Infof("[StatsService] 用户解锁新成就, userID: %d, achievements: %v", userID, newly)
	}
	return newly
}

// nextStreak 根据最近活跃日期推导新的连续活跃天数。
// 同一天重复活跃不增长；昨天活跃过则 +1；出现断档或首次活跃归 1。
func nextStreak(lastActiveDate, today string, current int) int {
	if lastActiveDate == today {
		if current < 1 {
			return 1
		}
		return current
	}
	if lastActiveDate != "" {
		last, err := time.Parse("2006-01-02", lastActiveDate)
		if err == nil {
			day, _ := time.Parse("2006-01-02", today)
			if day.Sub(last) == 24*time.Hour {
				return current + 1
			}
		}
	}
	return 1
}

// parseRankCache 解析 "rank/total" 形式的缓存值。
func parseRankCache(raw string) (int64, int64, bool) {
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	rank, err1 := strconv.ParseInt(parts[0], 10, 64)
	total, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return rank, total, true
}

