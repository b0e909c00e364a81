// Package pipeline 定义了文档摄取的核心流程。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"study-buddy-go/internal/chunker"
	"study-buddy-go/internal/config"
	"study-buddy-go/internal/model"
	"study-buddy-go/internal/repository"
	"study-buddy-go/internal/service"
	"study-buddy-go/pkg/log"
	"study-buddy-go/pkg/storage"
	"study-buddy-go/pkg/tasks"
	"study-buddy-go/pkg/tika"
)

// Processor 封装了文档摄取的所有依赖和逻辑。
// 它消费 Kafka 任务，完成 下载 → 提取 → 摄取 → 标记状态 的流程。
type Processor struct {
	tikaClient    *tika.Client
	ingestService service.IngestService
	documentRepo  repository.DocumentRepository
	minioCfg      config.MinIOConfig
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(tikaClient *tika.Client, ingestService service.IngestService, documentRepo repository.DocumentRepository, minioCfg config.MinIOConfig) *Processor {
	return &Processor{
		tikaClient:    tikaClient,
		ingestService: ingestService,
		documentRepo:  documentRepo,
		minioCfg:      minioCfg,
	}
}

// Process 是文档摄取的主函数。
// 空文档属于永久性失败，直接标记 failed 并返回 nil 避免重试；
// 其余错误返回给消费者，由重试机制决定去留。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentIngestTask) error {
	log.Infof("[Processor] 开始处理文档, DocumentID: %s, FileName: %s", task.DocumentID, task.FileName)

	// 1. 从 MinIO 下载文档
	log.Infof("[Processor] 步骤1: 从MinIO下载文档, Bucket: %s, Object: %s", p.minioCfg.BucketName, task.ObjectName)
	object, err := storage.GetDocument(ctx, p.minioCfg.BucketName, task.DocumentID, task.FileName)
	if err != nil {
		log.Errorf("[Processor] 从MinIO下载文档失败, Object: %s, Error: %v", task.ObjectName, err)
		return fmt.Errorf("从 MinIO 下载文档失败: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(object)
	if err != nil {
		log.Errorf("[Processor] 从MinIO对象流中读取内容失败, Error: %v", err)
		return fmt.Errorf("读取MinIO对象流失败: %w", err)
	}
	log.Infof("[Processor] 步骤1: 文档下载成功, 大小: %d字节", size)
	if size == 0 {
		log.Warnf("[Processor] 文档 '%s' 内容为空, 处理中止", task.FileName)
		return p.markFailed(task.DocumentID)
	}

	// 2. 使用 Tika 提取文本
	log.Info("[Processor] 步骤2: 使用Tika提取文本内容")
	textContent, err := p.tikaClient.ExtractText(bytes.NewReader(buf.Bytes()), task.FileName)
	if err != nil {
		log.Errorf("[Processor] 使用Tika提取文本失败, FileName: %s, Error: %v", task.FileName, err)
		return fmt.Errorf("使用 Tika 提取文本失败: %w", err)
	}
	log.Infof("[Processor] 步骤2: 文本提取成功, 内容长度: %d 字符", utf8.RuneCountInString(textContent))

	// 3. 记录页码锚点并摄取
	anchors := chunker.AnchorsFromText(textContent)
	count, err := p.ingestService.Ingest(ctx, task.DocumentID, task.FileName, textContent, anchors)
	if err != nil {
		if errors.Is(err, chunker.ErrEmptyInput) {
			log.Warnf("[Processor] 文档 '%s' 无有效文本, 标记为失败", task.FileName)
			return p.markFailed(task.DocumentID)
		}
		return err
	}

	// 4. 标记文档就绪
	if err := p.documentRepo.MarkProcessed(task.DocumentID, model.DocStatusReady, count); err != nil {
		return fmt.Errorf("更新文档状态失败: %w", err)
	}
	log.Infof("[Processor] 文档处理完成, DocumentID: %s, 分块数: %d", task.DocumentID, count)
	return nil
}

// markFailed 记录永久性失败的终态。返回 nil 让消费者提交 offset。
func (p *Processor) markFailed(documentID string) error {
	if err := p.documentRepo.MarkProcessed(documentID, model.DocStatusFailed, 0); err != nil {
		return fmt.Errorf("标记文档失败状态出错: %w", err)
	}
	return nil
}
