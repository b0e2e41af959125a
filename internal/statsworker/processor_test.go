package statsworker

import (
	"context"
	"testing"

	"chunkit-go/internal/model"
	"chunkit-go/pkg/tasks"
)

// recordingStats 记录每个统计操作的调用，供断言使用。
type recordingStats struct {
	ensureFails  bool
	calls        []string
	uploadSize   int64
	processSecs  float64
	processChunk int64
	processOK    bool
}

func (r *recordingStats) EnsureUser(ctx context.Context, userID uint) bool {
	r.calls = append(r.calls, "ensure")
	return !r.ensureFails
}

func (r *recordingStats) RecordUpload(ctx context.Context, userID uint, size int64, mediaType string) {
	r.calls = append(r.calls, "upload")
	r.uploadSize = size
}

func (r *recordingStats) RecordProcess(ctx context.Context, userID uint, seconds float64, chunksSent int64, success bool) {
	r.calls = append(r.calls, "process")
	r.processSecs = seconds
	r.processChunk = chunksSent
	r.processOK = success
}

func (r *recordingStats) RecordActivity(ctx context.Context, userID uint) {
	r.calls = append(r.calls, "activity")
}

func (r *recordingStats) GetRecord(ctx context.Context, userID uint) *model.EngagementRecord {
	return nil
}

func (r *recordingStats) GetRank(ctx context.Context, userID uint) (int64, int64) { return 0, 0 }

func (r *recordingStats) EvaluateAchievements(ctx context.Context, userID uint) []string {
	r.calls = append(r.calls, "achievements")
	return nil
}

func TestProcessUploadTask(t *testing.T) {
	stats := &recordingStats{}
	processor := NewProcessor(stats)

	task := tasks.EngagementTask{Kind: tasks.KindUpload, UserID: 1, FileID: 7, FileSize: 4096, MediaType: "image/png"}
	if err := processor.Process(context.Background(), task); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	want := []string{"ensure", "upload", "activity", "achievements"}
	if len(stats.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", stats.calls, want)
	}
	for i := range want {
		if stats.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", stats.calls, want)
		}
	}
	if stats.uploadSize != 4096 {
		t.Errorf("upload size = %d, want 4096", stats.uploadSize)
	}
}

func TestProcessSplitTask(t *testing.T) {
	stats := &recordingStats{}
	processor := NewProcessor(stats)

	task := tasks.EngagementTask{
		Kind: tasks.KindProcess, UserID: 1, FileID: 7,
		ChunksSent: 9, ProcessSeconds: 1.25, Success: true,
	}
	if err := processor.Process(context.Background(), task); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if stats.processSecs != 1.25 || stats.processChunk != 9 || !stats.processOK {
		t.Errorf("process stats = (%v, %d, %v), want (1.25, 9, true)",
			stats.processSecs, stats.processChunk, stats.processOK)
	}
}

func TestProcessUnknownKindIsDropped(t *testing.T) {
	stats := &recordingStats{}
	processor := NewProcessor(stats)

	task := tasks.EngagementTask{Kind: "mystery", UserID: 1}
	if err := processor.Process(context.Background(), task); err != nil {
		t.Fatalf("unknown kind should be dropped without error, got %v", err)
	}
	for _, call := range stats.calls {
		if call == "activity" || call == "achievements" {
			t.Errorf("unknown kind should not record activity, calls = %v", stats.calls)
		}
	}
}

func TestProcessEnsureFailureIsRetryable(t *testing.T) {
	stats := &recordingStats{ensureFails: true}
	processor := NewProcessor(stats)

	task := tasks.EngagementTask{Kind: tasks.KindUpload, UserID: 1}
	if err := processor.Process(context.Background(), task); err == nil {
		t.Fatal("Process should return an error when the stats document cannot be initialized")
	}
	if len(stats.calls) != 1 || stats.calls[0] != "ensure" {
		t.Errorf("calls = %v, want only the ensure attempt", stats.calls)
	}
}
