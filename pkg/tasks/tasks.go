// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// DocumentIngestTask represents the data structure for a document ingestion job.
type DocumentIngestTask struct {
	DocumentID string `json:"document_id"`
	FileMD5    string `json:"file_md5"`
	FileName   string `json:"file_name"`
	ObjectName string `json:"object_name"`
}
