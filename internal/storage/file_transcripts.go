package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	xerrors "OpenMCP-Dialog/internal/errors"
)

const (
	transcriptLogName   = "transcripts.log"
	maxCachedTranscript = 512
)

// FileTranscriptRepository 以 JSON Lines 追加写本地文件，适合单机部署与开发调试。
type FileTranscriptRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []TranscriptRecord
}

// NewFileTranscriptRepository 在 dataDir 下创建或恢复归档文件。
func NewFileTranscriptRepository(dataDir string) (*FileTranscriptRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建归档目录失败")
	}
	repo := &FileTranscriptRepository{dataFile: filepath.Join(dataDir, transcriptLogName)}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 追加一条归档记录。
func (f *FileTranscriptRepository) Save(_ context.Context, record TranscriptRecord) error {
	if err := ValidateRecord(record); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开归档文件失败")
	}
	defer file.Close()

	encoded, err := json.Marshal(record)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化归档记录失败")
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入归档文件失败")
	}

	f.records = append([]TranscriptRecord{record}, f.records...)
	if len(f.records) > maxCachedTranscript {
		f.records = f.records[:maxCachedTranscript]
	}
	return nil
}

// ListBySession 返回指定会话最近的归档记录，按时间倒序。
func (f *FileTranscriptRepository) ListBySession(_ context.Context, sessionID string, limit int) ([]TranscriptRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	results := make([]TranscriptRecord, 0, limit)
	for _, record := range f.records {
		if record.SessionID != sessionID {
			continue
		}
		results = append(results, record)
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

func (f *FileTranscriptRepository) loadFromDisk() error {
	file, err := os.OpenFile(f.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取归档文件失败")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var restored []TranscriptRecord
	for scanner.Scan() {
		var record TranscriptRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		restored = append([]TranscriptRecord{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析归档文件失败")
	}

	if len(restored) > maxCachedTranscript {
		restored = restored[:maxCachedTranscript]
	}
	f.records = restored
	return nil
}
