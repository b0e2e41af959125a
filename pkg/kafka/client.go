// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chunkit-go/internal/config"
	"chunkit-go/pkg/database"
	"chunkit-go/pkg/log"
	"chunkit-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// TaskProcessor defines the interface for any service that can process an engagement task.
// This decouples the Kafka consumer from the concrete stats worker implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.EngagementTask) error
}

// Producer 封装了引导统计任务的 Kafka 生产者。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 创建一个新的 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: writer}
}

// ProduceEngagementTask 发送一个用户统计任务到 Kafka。
func (p *Producer) ProduceEngagementTask(task tasks.EngagementTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(context.Background(),
		kafka.Message{
			Value: taskBytes,
		},
	)
}

// Close 关闭生产者连接。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 启动一个 Kafka 消费者来处理用户统计任务。
func StartConsumer(cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  "chunkit-go-consumer",
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	fetchBackoff := time.Second
	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			// broker 抖动不能杀死统计链路：退避后继续拉取。
			log.Errorf("从 Kafka 读取消息失败, %v 后重试: %v", fetchBackoff, err)
			time.Sleep(fetchBackoff)
			fetchBackoff = nextFetchBackoff(fetchBackoff)
			continue
		}
		fetchBackoff = time.Second

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		var task tasks.EngagementTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		taskID := fmt.Sprintf("%s:%d:%d", task.Kind, task.UserID, task.FileID)
		log.Infof("开始处理统计任务: %s", taskID)
		// 同步处理任务
		if err := processor.Process(context.Background(), task); err != nil {
			log.Errorf("处理统计任务失败: %s, Error: %v", taskID, err)
			// 使用 Redis 计数失败次数，达到阈值后提交 offset 终止重试
			attemptsKey := fmt.Sprintf("kafka:attempts:%s", taskID)
			attempts, incErr := database.RDB.Incr(context.Background(), attemptsKey).Result()
			if incErr == nil {
				_ = database.RDB.Expire(context.Background(), attemptsKey, 24*time.Hour).Err()
			}
			if incErr != nil {
				// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
				continue
			}
			if attempts >= 3 {
				log.Errorf("统计任务多次失败(>=3)，提交 offset 终止重试: %s", taskID)
				if err := r.CommitMessages(context.Background(), m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
			// attempts < 3 时，不提交 offset 让 Kafka 自动重试
		} else {
			// 清理失败计数
			_ = database.RDB.Del(context.Background(), fmt.Sprintf("kafka:attempts:%s", taskID)).Err()
			// 任务处理成功后，手动提交 offset
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}
}

// nextFetchBackoff 按指数推进拉取重试间隔，封顶 30 秒。
func nextFetchBackoff(d time.Duration) time.Duration {
	if d >= 15*time.Second {
		return 30 * time.Second
	}
	return d * 2
}
