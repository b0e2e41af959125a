package kafka

import (
	"testing"
	"time"
)

// 消费者在 broker 不可用时按指数退避重试拉取，而不是退出循环。
func TestNextFetchBackoff(t *testing.T) {
	got := []time.Duration{}
	d := time.Second
	for i := 0; i < 7; i++ {
		got = append(got, d)
		d = nextFetchBackoff(d)
	}

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d backoff = %v, want %v", i, got[i], want[i])
		}
	}
}
