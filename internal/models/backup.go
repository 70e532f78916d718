package models

import "time"

// BackupFile is one file copied into a backup
type BackupFile struct {
	OriginalPath string `json:"original_path"`
	RelativePath string `json:"relative_path"`
	Size         int64  `json:"size"`
	Hash         string `json:"hash"`
}

// BackupEntry describes a batch-scoped safety copy
type BackupEntry struct {
	Path      string       `json:"path"`
	BatchID   string       `json:"batch_id"`
	Timestamp time.Time    `json:"timestamp"`
	Files     []BackupFile `json:"files"`
}

// FileCount returns the number of files in the backup
func (b *BackupEntry) FileCount() int {
	return len(b.Files)
}

// TotalSize returns the summed size of all backed-up files
func (b *BackupEntry) TotalSize() int64 {
	var total int64
	for _, f := range b.Files {
		total += f.Size
	}
	return total
}
