// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chunkit-go/internal/config"
	"chunkit-go/internal/handler"
	"chunkit-go/internal/middleware"
	"chunkit-go/internal/repository"
	"chunkit-go/internal/service"
	"chunkit-go/internal/splitter"
	"chunkit-go/internal/statsworker"
	"chunkit-go/pkg/database"
	"chunkit-go/pkg/kafka"
	"chunkit-go/pkg/log"
	"chunkit-go/pkg/storage"
	"chunkit-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化存储设施：MySQL、Redis、MongoDB、MinIO、Kafka
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	mongoClient, statsCollection := database.InitMongo(cfg.Database.Mongo)
	store, err := storage.NewMinioStore(cfg.MinIO)
	if err != nil {
		log.Fatalf("MinIO 初始化失败: %v", err)
	}
	producer := kafka.NewProducer(cfg.Kafka)

	// 4. 初始化 Repository
	userRepository := repository.NewUserRepository(database.DB)
	fileRepository := repository.NewFileRepository(database.DB, database.RDB)
	chunkRepository := repository.NewChunkRepository(database.DB)
	statsRepository := repository.NewStatsRepository(statsCollection)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	executor := splitter.NewExecutor(cfg.Split.Workers)
	userService := service.NewUserService(userRepository, jwtManager)
	fileService := service.NewFileService(fileRepository, store, producer, cfg.Upload)
	splitService := service.NewSplitService(fileRepository, chunkRepository, executor, store, producer)
	statsService := service.NewStatsService(statsRepository, database.RDB)

	// 6. 启动后台 Kafka 消费者，处理参与度统计任务
	processor := statsworker.NewProcessor(statsService)
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", handler.NewAuthHandler(userService).RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", handler.NewUserHandler(userService).Register)
			users.POST("/login", handler.NewUserHandler(userService).Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", handler.NewUserHandler(userService).GetProfile)
				authed.POST("/logout", handler.NewUserHandler(userService).Logout)
			}
		}

		// File 路由组，需要认证
		files := apiV1.Group("/files")
		files.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			fileHandler := handler.NewFileHandler(fileService)
			splitHandler := handler.NewSplitHandler(splitService, cfg.Split)

			files.POST("", fileHandler.Upload)
			files.GET("", fileHandler.List)
			files.GET("/:id", fileHandler.Get)
			files.GET("/:id/download", fileHandler.Download)
			files.DELETE("/:id", fileHandler.Delete)
			files.POST("/:id/split", splitHandler.Split)
			files.GET("/:id/chunks", splitHandler.ListChunks)
		}

		// Stats 路由组，需要认证
		stats := apiV1.Group("/stats")
		stats.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			statsHandler := handler.NewStatsHandler(statsService)
			stats.GET("/me", statsHandler.GetStats)
			stats.GET("/rank", statsHandler.GetRank)
			stats.POST("/achievements/refresh", statsHandler.RefreshAchievements)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// 关闭 Kafka 生产者与 MongoDB 连接
	if err := producer.Close(); err != nil {
		log.Warnf("Kafka 生产者关闭失败: %v", err)
	}
	if err := mongoClient.Disconnect(ctx); err != nil {
		log.Warnf("MongoDB 连接关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
