// Package main 是应用程序的入口点。
package main

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"study-buddy-go/internal/chunker"
	"study-buddy-go/internal/config"
	"study-buddy-go/internal/handler"
	"study-buddy-go/internal/index"
	"study-buddy-go/internal/index/es"
	"study-buddy-go/internal/index/memory"
	"study-buddy-go/internal/middleware"
	"study-buddy-go/internal/model"
	"study-buddy-go/internal/pipeline"
	"study-buddy-go/internal/repository"
	"study-buddy-go/internal/service"
	"study-buddy-go/pkg/database"
	"study-buddy-go/pkg/embedding"
	"study-buddy-go/pkg/kafka"
	"study-buddy-go/pkg/llm"
	"study-buddy-go/pkg/log"
	"study-buddy-go/pkg/storage"
	"study-buddy-go/pkg/tasks"
	"study-buddy-go/pkg/tika"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := &config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、MinIO 与 Kafka
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err := database.DB.AutoMigrate(&model.Document{}, &model.DocumentChunk{}); err != nil {
		log.Fatal("数据库迁移失败", err)
	}
	storage.InitMinIO(cfg.MinIO)
	kafka.InitProducer(cfg.Kafka)

	// 4. 选择向量索引后端
	var store index.Store
	switch cfg.Retrieval.Store {
	case "elasticsearch":
		esStore, err := es.New(cfg.Retrieval.Elasticsearch, cfg.Embedding.Dimensions)
		if err != nil {
			log.Fatal("Elasticsearch 索引初始化失败", err)
		}
		store = esStore
		log.Info("向量索引后端: elasticsearch")
	default:
		store = memory.New(cfg.Embedding.Dimensions)
		log.Info("向量索引后端: memory")
	}

	// 5. 初始化 Repository
	documentRepo := repository.NewDocumentRepository(database.DB)
	chunkRepo := repository.NewChunkRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.RDB)
	statsRepo := repository.NewStatsRepository(database.RDB)

	// 6. 初始化 Service (依赖注入)
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewFallbackClient(cfg.LLM)

	ck, err := chunker.New(chunker.Config{
		Size:     cfg.Retrieval.ChunkSize,
		Overlap:  cfg.Retrieval.ChunkOverlap,
		Lookback: cfg.Retrieval.ChunkLookback,
	})
	if err != nil {
		log.Fatal("分块器配置无效", err)
	}

	ingestService := service.NewIngestService(ck, embeddingClient, store, chunkRepo, cfg.Embedding.BatchSize)
	retrievalService := service.NewRetrievalService(embeddingClient, store, cfg.Retrieval)
	answerService := service.NewAnswerService(retrievalService, llmClient, conversationRepo, statsRepo, cfg.LLM)
	uploadService := service.NewUploadService(documentRepo, cfg.Upload, cfg.MinIO)
	documentService := service.NewDocumentService(documentRepo, chunkRepo, statsRepo, ingestService, store, cfg.MinIO)

	// 7. 初始化摄取管道并启动后台 Kafka 消费者
	processor := pipeline.NewProcessor(tikaClient, ingestService, documentRepo, cfg.MinIO)
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 7.1 初始化导入 initfile 目录：通过标准摄取流程导入（幂等）
	go initSeedDocuments("initfile", documentRepo, cfg)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/upload", handler.NewUploadHandler(uploadService).Upload)

		queryHandler := handler.NewQueryHandler(answerService, retrievalService)
		apiV1.POST("/query", queryHandler.Query)
		apiV1.GET("/search", queryHandler.Search)

		documentHandler := handler.NewDocumentHandler(documentService)
		apiV1.GET("/documents", documentHandler.List)
		apiV1.GET("/documents/:documentId", documentHandler.Get)
		apiV1.DELETE("/documents/:documentId", documentHandler.Delete)
		apiV1.GET("/stats", documentHandler.Stats)
	}

	// Chat 路由 (WebSocket)
	r.GET("/chat", handler.NewChatHandler(answerService).Handle)

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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// Kafka 消费者是一个循环，会在程序退出时自然结束。
	log.Info("服务已优雅关闭")
}

// initSeedDocuments 扫描目录下文件并通过标准摄取流程导入。
// 以内容 MD5 判重：已有同内容文档时跳过，保证重启幂等。
func initSeedDocuments(dir string, documentRepo repository.DocumentRepository, cfg *config.Config) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("initSeedDocuments: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return
	}

	existing, err := documentRepo.FindAll()
	if err != nil {
		log.Warnf("initSeedDocuments: 读取既有文档失败，跳过初始化导入: %v", err)
		return
	}
	seen := make(map[string]bool, len(existing))
	for _, d := range existing {
		seen[d.FileMD5] = true
	}

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("initSeedDocuments: 读取文件失败 %s: %v", path, err)
			return nil
		}
		sum := md5.Sum(data)
		fileMD5 := hex.EncodeToString(sum[:])
		if seen[fileMD5] {
			log.Infof("initSeedDocuments: '%s' 已导入过，跳过", info.Name())
			return nil
		}

		documentID := uuid.NewString()
		fileName := info.Name()
		ctx := context.Background()
		if err := storage.PutDocument(ctx, cfg.MinIO.BucketName, documentID, fileName,
			bytes.NewReader(data), int64(len(data)), "application/octet-stream"); err != nil {
			log.Warnf("initSeedDocuments: 写入对象存储失败 %s: %v", fileName, err)
			return nil
		}
		doc := &model.Document{
			DocumentID: documentID,
			FileMD5:    fileMD5,
			FileName:   fileName,
			TotalSize:  int64(len(data)),
			Status:     model.DocStatusProcessing,
		}
		if err := documentRepo.Create(doc); err != nil {
			log.Warnf("initSeedDocuments: 创建文档记录失败 %s: %v", fileName, err)
			return nil
		}
		task := tasks.DocumentIngestTask{
			DocumentID: documentID,
			FileMD5:    fileMD5,
			FileName:   fileName,
			ObjectName: storage.DocumentObjectName(documentID, fileName),
		}
		if err := kafka.ProduceIngestTask(task); err != nil {
			log.Warnf("initSeedDocuments: 投递摄取任务失败 %s: %v", fileName, err)
			return nil
		}
		seen[fileMD5] = true
		log.Infof("initSeedDocuments: 已导入 '%s' (%s)", fileName, documentID)
		return nil
	})
	if walkErr != nil {
		log.Warnf("initSeedDocuments: 扫描目录失败: %v", walkErr)
	}
}
