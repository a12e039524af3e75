// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-json-experiment/json"
	"gorm.io/gorm"

	"github.com/doublecheck-agents/doublecheck/a2a"
)

// taskRecord is the GORM row shape for a persisted task. Status, history,
// and artifacts are stored as JSON columns so the row survives protocol
// type evolution.
type taskRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	SessionID string `gorm:"index;size:64"`
	State     string `gorm:"size:16"`
	Status    []byte
	History   []byte
	Artifacts []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DatabaseStore is a database implementation of Store using GORM. The
// caller supplies the *gorm.DB; this package never opens connections.
type DatabaseStore struct {
	db          *gorm.DB
	tableName   string
	createTable bool
}

var _ Store = (*DatabaseStore)(nil)

// DatabaseStoreConfig holds configuration for DatabaseStore.
type DatabaseStoreConfig struct {
	DB          *gorm.DB
	TableName   string // optional, defaults to "tasks"
	CreateTable bool   // whether Initialize migrates the table
}

// NewDatabaseStore creates a new DatabaseStore.
func NewDatabaseStore(config DatabaseStoreConfig) (*DatabaseStore, error) {
	if config.DB == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}

	tableName := config.TableName
	if tableName == "" {
		tableName = "tasks"
	}

	return &DatabaseStore{
		db:          config.DB,
		tableName:   tableName,
		createTable: config.CreateTable,
	}, nil
}

// Initialize migrates the task table when configured to do so.
func (s *DatabaseStore) Initialize(ctx context.Context) error {
	if !s.createTable {
		return nil
	}
	if err := s.table(ctx).AutoMigrate(&taskRecord{}); err != nil {
		return NewStoreError("initialize", "", err)
	}
	return nil
}

// Save persists a task to the database.
func (s *DatabaseStore) Save(ctx context.Context, task *a2a.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if task.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	record, err := newTaskRecord(task)
	if err != nil {
		return NewStoreError("save", task.ID, err)
	}

	if err := s.table(ctx).Save(record).Error; err != nil {
		return NewStoreError("save", task.ID, err)
	}
	return nil
}

// Get retrieves a task by its ID from the database.
func (s *DatabaseStore) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	var record taskRecord
	if err := s.table(ctx).First(&record, "id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, a2a.TaskNotFoundError{TaskID: taskID}
		}
		return nil, NewStoreError("get", taskID, err)
	}

	return record.toTask()
}

// List retrieves tasks with optional session filtering.
func (s *DatabaseStore) List(ctx context.Context, sessionID string, limit, offset int) ([]*a2a.Task, error) {
	db := s.table(ctx)
	if sessionID != "" {
		db = db.Where("session_id = ?", sessionID)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}

	var records []taskRecord
	if err := db.Find(&records).Error; err != nil {
		return nil, NewStoreError("list", "", err)
	}

	tasks := make([]*a2a.Task, 0, len(records))
	for _, record := range records {
		task, err := record.toTask()
		if err != nil {
			return nil, NewStoreError("list", record.ID, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Count returns the number of stored tasks.
func (s *DatabaseStore) Count(ctx context.Context, sessionID string) (int64, error) {
	db := s.table(ctx).Model(&taskRecord{})
	if sessionID != "" {
		db = db.Where("session_id = ?", sessionID)
	}

	var count int64
	if err := db.Count(&count).Error; err != nil {
		return 0, NewStoreError("count", "", err)
	}
	return count, nil
}

// Close releases the underlying connection.
func (s *DatabaseStore) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return NewStoreError("close", "", err)
	}
	return sqlDB.Close()
}

func (s *DatabaseStore) table(ctx context.Context) *gorm.DB {
	db := s.db.WithContext(ctx)
	if s.tableName != "tasks" {
		db = db.Table(s.tableName)
	}
	return db
}

// newTaskRecord converts a task into its row representation.
func newTaskRecord(task *a2a.Task) (*taskRecord, error) {
	status, err := json.Marshal(task.Status)
	if err != nil {
		return nil, fmt.Errorf("marshal status: %w", err)
	}
	history, err := json.Marshal(task.History)
	if err != nil {
		return nil, fmt.Errorf("marshal history: %w", err)
	}
	artifacts, err := json.Marshal(task.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("marshal artifacts: %w", err)
	}

	return &taskRecord{
		ID:        task.ID,
		SessionID: task.SessionID,
		State:     string(task.Status.State),
		Status:    status,
		History:   history,
		Artifacts: artifacts,
	}, nil
}

// toTask converts a row back into a task.
func (r taskRecord) toTask() (*a2a.Task, error) {
	task := &a2a.Task{
		ID:        r.ID,
		SessionID: r.SessionID,
	}

	if err := json.Unmarshal(r.Status, &task.Status); err != nil {
		return nil, fmt.Errorf("unmarshal status: %w", err)
	}
	if len(r.History) > 0 {
		if err := json.Unmarshal(r.History, &task.History); err != nil {
			return nil, fmt.Errorf("unmarshal history: %w", err)
		}
	}
	if len(r.Artifacts) > 0 {
		if err := json.Unmarshal(r.Artifacts, &task.Artifacts); err != nil {
			return nil, fmt.Errorf("unmarshal artifacts: %w", err)
		}
	}

	return task, nil
}
