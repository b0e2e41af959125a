package service

import (
	"context"
	"math"
	"testing"
	"time"

	"chunkit-go/internal/model"
)

// memStatsRepo 在内存中模拟统计文档的原子更新语义。
type memStatsRepo struct {
	records map[uint]*model.EngagementRecord
	fail    bool
}

func newMemStatsRepo() *memStatsRepo {
	return &memStatsRepo{records: make(map[uint]*model.EngagementRecord)}
}

func (m *memStatsRepo) EnsureUser(ctx context.Context, userID uint) bool {
	if m.fail {
		return false
	}
	if _, ok := m.records[userID]; !ok {
		m.records[userID] = &model.EngagementRecord{
			UserID:             userID,
			CreatedAt:          time.Now().UTC(),
			FileTypeCounts:     map[string]int64{},
			SmallestFileSize:   math.MaxInt64,
			FastestProcessTime: math.Inf(1),
			ActivityHours:      []int{},
			Achievements:       []string{},
		}
	}
	return true
}

func (m *memStatsRepo) GetRecord(ctx context.Context, userID uint) (*model.EngagementRecord, bool) {
	if m.fail {
		return nil, false
	}
	record, ok := m.records[userID]
	if !ok {
		return nil, false
	}
	copied := *record
	return &copied, true
}

func (m *memStatsRepo) ApplyUploadStats(ctx context.Context, userID uint, size int64, mediaType string) bool {
	record, ok := m.records[userID]
	if m.fail || !ok {
		return false
	}
	record.FilesUploaded++
	record.TotalSize += size
	record.FileTypeCounts[mediaType]++
	if size > record.LargestFileSize {
		record.LargestFileSize = size
	}
	if size < record.SmallestFileSize {
		record.SmallestFileSize = size
	}
	return true
}

func (m *memStatsRepo) ApplyProcessStats(ctx context.Context, userID uint, seconds float64, chunksSent int64, success bool) bool {
	record, ok := m.records[userID]
	if m.fail || !ok {
		return false
	}
	if success {
		record.SuccessfulProcesses++
	}
	record.TotalAttempts++
	record.ChunksSent += chunksSent
	if seconds < record.FastestProcessTime {
		record.FastestProcessTime = seconds
	}
	if seconds > record.SlowestProcessTime {
		record.SlowestProcessTime = seconds
	}
	return true
}

func (m *memStatsRepo) ApplyActivity(ctx context.Context, userID uint, today string, streak int, hour int) bool {
	record, ok := m.records[userID]
	if m.fail || !ok {
		return false
	}
	record.LastActiveDate = today
	record.CurrentStreak = streak
	if streak > record.LongestStreak {
		record.LongestStreak = streak
	}
	for _, h := range record.ActivityHours {
		if h == hour {
			return true
		}
	}
	record.ActivityHours = append(record.ActivityHours, hour)
	return true
}

func (m *memStatsRepo) CountUsers(ctx context.Context) (int64, bool) {
	if m.fail {
		return 0, false
	}
	return int64(len(m.records)), true
}

func (m *memStatsRepo) CountUsersWithLargerSize(ctx context.Context, size int64) (int64, bool) {
	if m.fail {
		return 0, false
	}
	var count int64
	for _, record := range m.records {
		if record.TotalSize > size {
			count++
		}
	}
	return count, true
}

func (m *memStatsRepo) SetAchievements(ctx context.Context, userID uint, achievements []string) bool {
	record, ok := m.records[userID]
	if m.fail || !ok {
		return false
	}
	record.Achievements = achievements
	return true
}

func newStatsFixture(t *testing.T) (*memStatsRepo, *statsService) {
	t.Helper()
	repo := newMemStatsRepo()
	svc := NewStatsService(repo, nil).(*statsService)
	return repo, svc
}

func TestNextStreak(t *testing.T) {
	cases := []struct {
		name    string
		last    string
		today   string
		current int
		want    int
	}{
		{"first activity", "", "2026-03-10", 0, 1},
		{"same day keeps streak", "2026-03-10", "2026-03-10", 4, 4},
		{"same day floors at one", "2026-03-10", "2026-03-10", 0, 1},
		{"consecutive day increments", "2026-03-09", "2026-03-10", 4, 5},
		{"gap resets", "2026-03-01", "2026-03-10", 4, 1},
		{"unparseable date resets", "garbage", "2026-03-10", 4, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := nextStreak(tc.last, tc.today, tc.current); got != tc.want {
				t.Errorf("nextStreak(%q, %q, %d) = %d, want %d", tc.last, tc.today, tc.current, got, tc.want)
			}
		})
	}
}

func TestRecordUploadExtrema(t *testing.T) {
	repo, svc := newStatsFixture(t)
	ctx := context.Background()
	svc.EnsureUser(ctx, 1)

	for _, size := range []int64{50, 10, 200} {
		svc.RecordUpload(ctx, 1, size, "image/png")
	}

	record := svc.GetRecord(ctx, 1)
	if record == nil {
		t.Fatal("GetRecord returned nil")
	}
	if record.FilesUploaded != 3 {
		t.Errorf("FilesUploaded = %d, want 3", record.FilesUploaded)
	}
	if record.TotalSize != 260 {
		t.Errorf("TotalSize = %d, want 260", record.TotalSize)
	}
	if record.SmallestFileSize != 10 {
		t.Errorf("SmallestFileSize = %d, want 10", record.SmallestFileSize)
	}
	if record.LargestFileSize != 200 {
		t.Errorf("LargestFileSize = %d, want 200", record.LargestFileSize)
	}
	if repo.records[1].FileTypeCounts["image/png"] != 3 {
		t.Errorf("FileTypeCounts[image/png] = %d, want 3", repo.records[1].FileTypeCounts["image/png"])
	}
}

func TestRecordProcessExtrema(t *testing.T) {
	_, svc := newStatsFixture(t)
	ctx := context.Background()
	svc.EnsureUser(ctx, 1)

	svc.RecordProcess(ctx, 1, 2.5, 4, true)
	svc.RecordProcess(ctx, 1, 0.8, 9, true)
	svc.RecordProcess(ctx, 1, 5.0, 0, false)

	record := svc.GetRecord(ctx, 1)
	if record.TotalAttempts != 3 || record.SuccessfulProcesses != 2 {
		t.Errorf("attempts/successes = %d/%d, want 3/2", record.TotalAttempts, record.SuccessfulProcesses)
	}
	if record.ChunksSent != 13 {
		t.Errorf("ChunksSent = %d, want 13", record.ChunksSent)
	}
	if record.FastestProcessTime != 0.8 {
		t.Errorf("FastestProcessTime = %v, want 0.8", record.FastestProcessTime)
	}
	if record.SlowestProcessTime != 5.0 {
		t.Errorf("SlowestProcessTime = %v, want 5.0", record.SlowestProcessTime)
	}
}

func TestRecordActivityStreaks(t *testing.T) {
	_, svc := newStatsFixture(t)
	ctx := context.Background()
	svc.EnsureUser(ctx, 1)

	day := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return day }
	svc.RecordActivity(ctx, 1)

	record := svc.GetRecord(ctx, 1)
	if record.CurrentStreak != 1 || record.LongestStreak != 1 {
		t.Fatalf("streaks after first activity = %d/%d, want 1/1", record.CurrentStreak, record.LongestStreak)
	}
	if record.LastActiveDate != "2026-03-10" {
		t.Errorf("LastActiveDate = %q, want 2026-03-10", record.LastActiveDate)
	}

	// Same day again: no growth, but the new hour is collected.
	svc.now = func() time.Time { return day.Add(5 * time.Hour) }
	svc.RecordActivity(ctx, 1)
	record = svc.GetRecord(ctx, 1)
	if record.CurrentStreak != 1 {
		t.Errorf("CurrentStreak after same-day activity = %d, want 1", record.CurrentStreak)
	}
	if len(record.ActivityHours) != 2 {
		t.Errorf("ActivityHours = %v, want two distinct hours", record.ActivityHours)
	}

	// Next day extends the streak.
	svc.now = func() time.Time { return day.AddDate(0, 0, 1) }
	svc.RecordActivity(ctx, 1)
	record = svc.GetRecord(ctx, 1)
	if record.CurrentStreak != 2 || record.LongestStreak != 2 {
		t.Errorf("streaks after consecutive day = %d/%d, want 2/2", record.CurrentStreak, record.LongestStreak)
	}

	// A gap resets the current streak but keeps the longest.
	svc.now = func() time.Time { return day.AddDate(0, 0, 10) }
	svc.RecordActivity(ctx, 1)
	record = svc.GetRecord(ctx, 1)
	if record.CurrentStreak != 1 {
		t.Errorf("CurrentStreak after gap = %d, want 1", record.CurrentStreak)
	}
	if record.LongestStreak != 2 {
		t.Errorf("LongestStreak after gap = %d, want 2", record.LongestStreak)
	}
}

func TestEvaluateAchievements(t *testing.T) {
	repo, svc := newStatsFixture(t)
	ctx := context.Background()
	svc.EnsureUser(ctx, 1)

	svc.RecordUpload(ctx, 1, 1000, "image/png")
	got := svc.EvaluateAchievements(ctx, 1)
	if len(got) != 1 || got[0] != "🎯 First File" {
		t.Fatalf("newly earned after first upload = %v, want [🎯 First File]", got)
	}

	// Nothing changed, so a second evaluation earns nothing.
	if again := svc.EvaluateAchievements(ctx, 1); len(again) != 0 {
		t.Errorf("re-evaluation without new activity earned %v, want none", again)
	}

	// Unlock the size and speed achievements; only the delta is returned.
	svc.RecordUpload(ctx, 1, 2_000_000_000, "image/jpeg")
	svc.RecordProcess(ctx, 1, 0.5, 4, true)
	got = svc.EvaluateAchievements(ctx, 1)

	wantNew := map[string]bool{
		"💪 Data Heavyweight": true,
		"⚡ Speed Demon":       true,
	}
	if len(got) != len(wantNew) {
		t.Fatalf("newly earned = %v, want %d entries", got, len(wantNew))
	}
	for _, name := range got {
		if !wantNew[name] {
			t.Errorf("unexpected newly earned achievement %q", name)
		}
	}
	// The persisted list accumulates everything earned so far.
	if len(repo.records[1].Achievements) != 3 {
		t.Errorf("persisted achievements = %v, want 3 entries", repo.records[1].Achievements)
	}
}

func TestGetRankWithTies(t *testing.T) {
	repo, svc := newStatsFixture(t)
	ctx := context.Background()

	for userID, total := range map[uint]int64{1: 500, 2: 300, 3: 300} {
		svc.EnsureUser(ctx, userID)
		repo.records[userID].TotalSize = total
	}

	rank, total := svc.GetRank(ctx, 1)
	if rank != 1 || total != 3 {
		t.Errorf("rank of user 1 = %d/%d, want 1/3", rank, total)
	}
	for _, userID := range []uint{2, 3} {
		rank, total = svc.GetRank(ctx, userID)
		if rank != 2 || total != 3 {
			t.Errorf("rank of user %d = %d/%d, want 2/3", userID, rank, total)
		}
	}
}

func TestGetRankUnknownUser(t *testing.T) {
	_, svc := newStatsFixture(t)
	ctx := context.Background()
	svc.EnsureUser(ctx, 1)
	svc.EnsureUser(ctx, 2)

	// Rank 0 flags the unreadable record, but the participant total stays valid.
	rank, total := svc.GetRank(ctx, 42)
	if rank != 0 || total != 2 {
		t.Errorf("rank of unknown user = %d/%d, want 0/2", rank, total)
	}
}

func TestStatsSoftFailure(t *testing.T) {
	repo, svc := newStatsFixture(t)
	ctx := context.Background()
	repo.fail = true

	if svc.EnsureUser(ctx, 1) {
		t.Error("EnsureUser should report failure")
	}
	// Soft paths must not panic and must return zero values.
	svc.RecordUpload(ctx, 1, 100, "image/png")
	svc.RecordActivity(ctx, 1)
	if record := svc.GetRecord(ctx, 1); record != nil {
		t.Errorf("GetRecord during outage = %+v, want nil", record)
	}
	if got := svc.EvaluateAchievements(ctx, 1); got != nil {
		t.Errorf("EvaluateAchievements during outage = %v, want nil", got)
	}
}
