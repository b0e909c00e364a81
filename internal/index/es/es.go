// Package es 提供了基于 Elasticsearch dense_vector 的向量索引实现。
// 作为可选后端，它把检索扩展到进程之外；相似度并列时的确定性排序
// 由内存后端保证，本后端为尽力而为。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"study-buddy-go/internal/config"
	"study-buddy-go/internal/index"
	"study-buddy-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// document 是记录在 Elasticsearch 中的存储结构。
type document struct {
	ChunkID     string    `json:"chunk_id"`
	DocumentID  string    `json:"document_id"`
	ChunkIndex  int       `json:"chunk_index"`
	FileName    string    `json:"file_name"`
	Page        int       `json:"page"`
	StartChar   int       `json:"start_char"`
	EndChar     int       `json:"end_char"`
	TextContent string    `json:"text_content"`
	Vector      []float32 `json:"vector"`
}

// Store 是 Elasticsearch 向量索引后端。
type Store struct {
	client    *elasticsearch.Client
	indexName string
	dimension int
}

var _ index.Store = (*Store)(nil)

// New 创建 Elasticsearch 后端并确保索引存在。
func New(cfg config.ElasticsearchConfig, dimension int) (*Store, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Addresses},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("创建 Elasticsearch 客户端失败: %w", err)
	}

	s := &Store{client: client, indexName: cfg.IndexName, dimension: dimension}
	if err := s.createIndexIfNotExists(); err != nil {
		return nil, err
	}
	return s, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它。
func (s *Store) createIndexIfNotExists() error {
	res, err := s.client.Indices.Exists([]string{s.indexName})
	if err != nil {
		return fmt.Errorf("检查索引是否存在时出错: %w", err)
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", s.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", s.indexName, res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"chunk_id": { "type": "keyword" },
				"document_id": { "type": "keyword" },
				"chunk_index": { "type": "integer" },
				"file_name": { "type": "keyword" },
				"page": { "type": "integer" },
				"start_char": { "type": "integer" },
				"end_char": { "type": "integer" },
				"text_content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, s.dimension)

	res, err = s.client.Indices.Create(
		s.indexName,
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("创建索引 '%s' 失败: %w", s.indexName, err)
	}
	if res.IsError() {
		return fmt.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", s.indexName, res.String())
	}

	log.Infof("索引 '%s' 创建成功", s.indexName)
	return nil
}

// Upsert 以 ChunkID 作为文档 ID 写入，天然幂等。
func (s *Store) Upsert(ctx context.Context, entries []index.Entry) error {
	for _, e := range entries {
		if len(e.Vector) != s.dimension {
			return fmt.Errorf("%w: 分块 %s 向量维度 %d 与索引维度 %d 不符",
				index.ErrWrite, e.ChunkID, len(e.Vector), s.dimension)
		}
		doc := document{
			ChunkID:     e.ChunkID,
			DocumentID:  e.DocumentID,
			ChunkIndex:  e.ChunkIndex,
			FileName:    e.FileName,
			Page:        e.Page,
			StartChar:   e.StartChar,
			EndChar:     e.EndChar,
			TextContent: e.Text,
			Vector:      e.Vector,
		}
		docBytes, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("%w: %v", index.ErrWrite, err)
		}

		req := esapi.IndexRequest{
			Index:      s.indexName,
			DocumentID: e.ChunkID,
			Body:       bytes.NewReader(docBytes),
			Refresh:    "true",
		}
		res, err := req.Do(ctx, s.client)
		if err != nil {
			return fmt.Errorf("%w: %v", index.ErrWrite, err)
		}
		if res.IsError() {
			body := res.String()
			res.Body.Close()
			return fmt.Errorf("%w: %s", index.ErrWrite, body)
		}
		res.Body.Close()
	}
	return nil
}

// DeleteByDocument 通过 delete_by_query 删除该文档的全部记录。
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"document_id": documentID},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return fmt.Errorf("%w: %v", index.ErrWrite, err)
	}

	res, err := s.client.DeleteByQuery(
		[]string{s.indexName},
		&buf,
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", index.ErrWrite, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: %s", index.ErrWrite, res.String())
	}
	return nil
}

// Search 使用 knn 查询检索 Top-K，可按文档 ID 过滤。
func (s *Store) Search(ctx context.Context, vector []float32, k int, filter index.Filter) ([]index.Hit, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: 查询向量维度 %d 与索引维度 %d 不符",
			index.ErrQuery, len(vector), s.dimension)
	}
	if k <= 0 {
		return []index.Hit{}, nil
	}

	knn := map[string]interface{}{
		"field":          "vector",
		"query_vector":   vector,
		"k":              k,
		"num_candidates": k * 10,
	}
	if len(filter.DocumentIDs) > 0 {
		knn["filter"] = map[string]interface{}{
			"terms": map[string]interface{}{"document_id": filter.DocumentIDs},
		}
	}
	esQuery := map[string]interface{}{
		"knn":  knn,
		"size": k,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("%w: %v", index.ErrQuery, err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.indexName),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", index.ErrQuery, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("%w: %s", index.ErrQuery, string(bodyBytes))
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source document `json:"_source"`
				Score  float64  `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("%w: %v", index.ErrQuery, err)
	}

	hits := make([]index.Hit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, index.Hit{
			Entry: index.Entry{
				ChunkID:    h.Source.ChunkID,
				DocumentID: h.Source.DocumentID,
				ChunkIndex: h.Source.ChunkIndex,
				FileName:   h.Source.FileName,
				Page:       h.Source.Page,
				StartChar:  h.Source.StartChar,
				EndChar:    h.Source.EndChar,
				Text:       h.Source.TextContent,
				Vector:     h.Source.Vector,
			},
			// ES 的 knn _score 为 (1+cosine)/2，换算回原始余弦值
			Score: h.Score*2 - 1,
		})
	}
	return hits, nil
}

// Count 返回索引内的记录总数。
func (s *Store) Count(ctx context.Context) (int, error) {
	res, err := s.client.Count(
		s.client.Count.WithContext(ctx),
		s.client.Count.WithIndex(s.indexName),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", index.ErrQuery, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("%w: %s", index.ErrQuery, res.String())
	}

	var countResp struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&countResp); err != nil {
		return 0, fmt.Errorf("%w: %v", index.ErrQuery, err)
	}
	return countResp.Count, nil
}
