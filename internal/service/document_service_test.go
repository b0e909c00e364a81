package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"study-buddy-go/internal/config"
	"study-buddy-go/internal/index"
	"study-buddy-go/internal/index/memory"
	"study-buddy-go/internal/model"
	"study-buddy-go/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDocumentRepo 是内存版的 DocumentRepository。
type fakeDocumentRepo struct {
	docs       map[string]*model.Document
	lastUpload *time.Time
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{docs: map[string]*model.Document{}}
}

func (f *fakeDocumentRepo) Create(doc *model.Document) error {
	f.docs[doc.DocumentID] = doc
	return nil
}

func (f *fakeDocumentRepo) FindByDocumentID(documentID string) (*model.Document, error) {
	doc, ok := f.docs[documentID]
	if !ok {
		return nil, repository.ErrDocumentNotFound
	}
	return doc, nil
}

func (f *fakeDocumentRepo) FindAll() ([]model.Document, error) {
	var out []model.Document
	for _, d := range f.docs {
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeDocumentRepo) UpdateStatus(documentID string, status string) error {
	if doc, ok := f.docs[documentID]; ok {
		doc.Status = status
	}
	return nil
}

func (f *fakeDocumentRepo) MarkProcessed(documentID string, status string, chunkCount int) error {
	if doc, ok := f.docs[documentID]; ok {
		doc.Status = status
		doc.ChunkCount = chunkCount
	}
	return nil
}

func (f *fakeDocumentRepo) Delete(documentID string) error {
	delete(f.docs, documentID)
	return nil
}

func (f *fakeDocumentRepo) CountByStatus(status string) (int64, error) {
	if status == "" {
		return int64(len(f.docs)), nil
	}
	var n int64
	for _, d := range f.docs {
		if d.Status == status {
			n++
		}
	}
	return n, nil
}

func (f *fakeDocumentRepo) LastUploadTime() (*time.Time, error) {
	return f.lastUpload, nil
}

// fakeStatsRepo 是内存版的 StatsRepository。
type fakeStatsRepo struct {
	queries int64
}

func (f *fakeStatsRepo) IncrementQueryCount(ctx context.Context) error {
	f.queries++
	return nil
}

func (f *fakeStatsRepo) GetQueryCount(ctx context.Context) (int64, error) {
	return f.queries, nil
}

// stubPresign 替换预签名实现，测试结束后恢复。
func stubPresign(t *testing.T, fn func(bucket, object string, expiry time.Duration) (string, error)) {
	t.Helper()
	orig := presignDownloadURL
	presignDownloadURL = fn
	t.Cleanup(func() { presignDownloadURL = orig })
}

func TestGetDocumentAttachesDownloadURL(t *testing.T) {
	var gotBucket, gotObject string
	stubPresign(t, func(bucket, object string, expiry time.Duration) (string, error) {
		gotBucket, gotObject = bucket, object
		return "http://minio.local/presigned/" + object, nil
	})

	docRepo := newFakeDocumentRepo()
	require.NoError(t, docRepo.Create(&model.Document{DocumentID: "doc-1", FileName: "bio.pdf", Status: model.DocStatusReady}))
	svc := NewDocumentService(docRepo, &fakeChunkRepo{}, &fakeStatsRepo{}, nil, memory.New(2), config.MinIOConfig{BucketName: "study-buddy"})

	detail, err := svc.GetDocument("doc-1")
	require.NoError(t, err)
	assert.Equal(t, "bio.pdf", detail.FileName)
	assert.Equal(t, "http://minio.local/presigned/uploads/doc-1/bio.pdf", detail.DownloadURL)
	assert.Equal(t, "study-buddy", gotBucket)
	assert.Equal(t, "uploads/doc-1/bio.pdf", gotObject)
}

func TestGetDocumentPresignFailureOmitsURL(t *testing.T) {
	stubPresign(t, func(bucket, object string, expiry time.Duration) (string, error) {
		return "", errors.New("minio 不可达")
	})

	docRepo := newFakeDocumentRepo()
	require.NoError(t, docRepo.Create(&model.Document{DocumentID: "doc-1", FileName: "bio.pdf"}))
	svc := NewDocumentService(docRepo, &fakeChunkRepo{}, &fakeStatsRepo{}, nil, memory.New(2), config.MinIOConfig{BucketName: "study-buddy"})

	// 链接生成失败不影响元数据返回
	detail, err := svc.GetDocument("doc-1")
	require.NoError(t, err)
	assert.Equal(t, "bio.pdf", detail.FileName)
	assert.Empty(t, detail.DownloadURL)
}

func TestGetDocumentNotFound(t *testing.T) {
	svc := NewDocumentService(newFakeDocumentRepo(), &fakeChunkRepo{}, &fakeStatsRepo{}, nil, memory.New(2), config.MinIOConfig{})

	_, err := svc.GetDocument("missing")
	assert.ErrorIs(t, err, repository.ErrDocumentNotFound)
}

func TestGetStats(t *testing.T) {
	docRepo := newFakeDocumentRepo()
	last := time.Date(2026, 8, 28, 10, 30, 0, 0, time.Local)
	docRepo.lastUpload = &last
	require.NoError(t, docRepo.Create(&model.Document{DocumentID: "doc-1", Status: model.DocStatusReady}))
	require.NoError(t, docRepo.Create(&model.Document{DocumentID: "doc-2", Status: model.DocStatusProcessing}))

	chunkRepo := &fakeChunkRepo{rows: []model.DocumentChunk{
		{ChunkID: "doc-1_chunk_0", DocumentID: "doc-1"},
		{ChunkID: "doc-1_chunk_1", DocumentID: "doc-1"},
	}}
	store := memory.New(2)
	require.NoError(t, store.Upsert(context.Background(), []index.Entry{
		{ChunkID: "doc-1_chunk_0", DocumentID: "doc-1", Vector: []float32{1, 0}},
	}))
	svc := NewDocumentService(docRepo, chunkRepo, &fakeStatsRepo{queries: 7}, nil, store, config.MinIOConfig{})

	stats, err := svc.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDocuments)
	assert.Equal(t, 2, stats.TotalChunks)
	assert.Equal(t, int64(7), stats.TotalQueries)
	assert.Equal(t, 1, stats.IndexedVectors)
	assert.Equal(t, "healthy", stats.VectorStoreStatus)
	assert.Equal(t, "2026-08-28 10:30:00", stats.LastUploadTime)
}
