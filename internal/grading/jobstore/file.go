package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"essaygrade/internal/grading/model"
	appErr "essaygrade/pkg/errors"
)

// FileStore keeps all tracked jobs in one JSON file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Save(_ context.Context, job model.BatchJob) error {
	if job.ID == "" {
		return appErr.ValidationError("upload_id", "required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs, err := s.load()
	if err != nil {
		return err
	}
	if prev, ok := jobs[job.ID]; ok && prev.Status.Terminal() {
		return nil
	}
	jobs[job.ID] = job.Clone()
	return s.write(jobs)
}

func (s *FileStore) Get(_ context.Context, uploadID string) (model.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs, err := s.load()
	if err != nil {
		return model.BatchJob{}, err
	}
	job, ok := jobs[uploadID]
	if !ok {
		return model.BatchJob{}, appErr.NotFoundError("batch job " + uploadID)
	}
	return job, nil
}

func (s *FileStore) List(_ context.Context) ([]model.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]model.BatchJob, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, job)
	}
	sortJobs(out)
	return out, nil
}

func (s *FileStore) Delete(_ context.Context, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := jobs[uploadID]; !ok {
		return nil
	}
	delete(jobs, uploadID)
	return s.write(jobs)
}

func (s *FileStore) load() (map[string]model.BatchJob, error) {
	jobs := map[string]model.BatchJob{}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return jobs, nil
		}
		return nil, fmt.Errorf("read job state failed: %w", err)
	}
	if len(data) == 0 {
		return jobs, nil
	}
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("parse job state failed: %w", err)
	}
	return jobs, nil
}

func (s *FileStore) write(jobs map[string]model.BatchJob) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create job state dir failed: %w", err)
	}
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job state failed: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write job state failed: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace job state failed: %w", err)
	}
	return nil
}
