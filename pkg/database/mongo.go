package database

import (
	"context"
	"time"

	"chunkit-go/internal/config"
	"chunkit-go/pkg/log"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// InitMongo 初始化 MongoDB 连接并返回用户统计集合。
// 与 MySQL/Redis 不同，这里不使用包级全局变量：统计存储的句柄由
// main 显式持有并注入到 StatsRepository 中，生命周期也由 main 负责关闭。
func InitMongo(cfg config.MongoConfig) (*mongo.Client, *mongo.Collection) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		log.Fatal("failed to connect to mongodb", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		log.Fatal("failed to ping mongodb", err)
	}

	col := client.Database(cfg.Database).Collection(cfg.Collection)
	log.Info("MongoDB client connected successfully")
	return client, col
}
