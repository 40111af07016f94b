package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Manager tracks asynchronous tasks: submission, status, cancellation and
// graceful shutdown.
type Manager interface {
	Submit(ctx context.Context, taskFunc TaskFunc, params interface{}) (uuid.UUID, error)
	Get(taskID uuid.UUID) (*Task, error)
	Cancel(taskID uuid.UUID) error
	UpdateProgress(taskID uuid.UUID, progress int, message string) error
	RegisterCallback(taskID uuid.UUID, callback Callback) error
	UnregisterCallbacks(taskID uuid.UUID)
	Cleanup(age time.Duration)
	Close()
	Shutdown(ctx context.Context) error
}

// Task is an asynchronous unit of work tracked by the manager.
type Task struct {
	ID        uuid.UUID
	Status    Status
	Progress  int
	Message   string
	Result    interface{}
	CreatedAt time.Time
	UpdatedAt time.Time
	Cancel    context.CancelFunc
}

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// TaskFunc is the function executed by a task.
type TaskFunc func(ctx context.Context, params interface{}) (interface{}, error)

// Callback is invoked on every status change of the task it is registered for.
type Callback func(task *Task)

// Config holds TaskManager settings.
type Config struct {
	MaxTasks int
}

// TaskManager is the in-memory Manager implementation.
type TaskManager struct {
	tasks     map[uuid.UUID]*Task
	mu        sync.RWMutex
	maxTasks  int
	callbacks map[uuid.UUID][]Callback
	closing   chan struct{}
	wg        sync.WaitGroup
}

var _ Manager = (*TaskManager)(nil)

// New creates a TaskManager bounded to cfg.MaxTasks concurrently active tasks.
func New(cfg Config) (*TaskManager, error) {
	maxTasks := cfg.MaxTasks
	if maxTasks <= 0 {
		maxTasks = 10
	}

	return &TaskManager{
		tasks:     make(map[uuid.UUID]*Task),
		maxTasks:  maxTasks,
		callbacks: make(map[uuid.UUID][]Callback),
		closing:   make(chan struct{}),
	}, nil
}

// Submit registers and starts a new task. The task runs on an independent
// context so request cancellation does not abort generation mid-commit; the
// logger is carried over from the submitting context.
func (tm *TaskManager) Submit(ctx context.Context, taskFunc TaskFunc, params interface{}) (uuid.UUID, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	select {
	case <-tm.closing:
		return uuid.UUID{}, errors.New("task manager is shutting down")
	default:
	}

	activeTasks := 0
	for _, task := range tm.tasks {
		if task.Status == StatusPending || task.Status == StatusRunning {
			activeTasks++
		}
	}
	if activeTasks >= tm.maxTasks {
		return uuid.UUID{}, fmt.Errorf("maximum number of active tasks (%d) exceeded", tm.maxTasks)
	}

	taskID := uuid.New()

	baseTaskCtx, cancel := context.WithCancel(context.Background())
	taskLogger := log.Ctx(ctx)
	taskCtx := taskLogger.WithContext(baseTaskCtx)

	task := &Task{
		ID:        taskID,
		Status:    StatusPending,
		Progress:  0,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Cancel:    cancel,
	}
	tm.tasks[taskID] = task

	tm.wg.Add(1)
	go func() {
		defer tm.wg.Done()
		defer cancel()

		tm.runTask(taskCtx, task, taskFunc, params)
	}()

	return taskID, nil
}

func (tm *TaskManager) runTask(ctx context.Context, task *Task, taskFunc TaskFunc, params interface{}) {
	tm.updateTaskStatus(ctx, task, StatusRunning, 0, "task started")

	result, err := taskFunc(ctx, params)

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			log.Ctx(ctx).Info().Str("taskID", task.ID.String()).Msg("Task context was cancelled")
			task.Result = result
			tm.updateTaskStatus(ctx, task, StatusCancelled, task.Progress, "task cancelled")
		} else {
			log.Ctx(ctx).Error().Err(ctx.Err()).Str("taskID", task.ID.String()).Msg("Task context error")
			tm.updateTaskStatus(ctx, task, StatusFailed, task.Progress, fmt.Sprintf("context error: %v", ctx.Err()))
		}
		return
	}

	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("taskID", task.ID.String()).Msg("Task finished with error")
		task.Result = result
		tm.updateTaskStatus(ctx, task, StatusFailed, task.Progress, fmt.Sprintf("error: %v", err))
	} else {
		task.Result = result
		log.Ctx(ctx).Info().Str("taskID", task.ID.String()).Msg("Task completed successfully")
		tm.updateTaskStatus(ctx, task, StatusCompleted, 100, "task completed")
	}
}

func (tm *TaskManager) updateTaskStatus(ctx context.Context, task *Task, status Status, progress int, message string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	task.Status = status
	task.Progress = progress
	task.Message = message
	task.UpdatedAt = time.Now()

	if callbacks, ok := tm.callbacks[task.ID]; ok {
		for _, callback := range callbacks {
			go callback(task)
		}
	}

	log.Ctx(ctx).Info().
		Str("taskID", task.ID.String()).
		Str("newStatus", string(task.Status)).
		Int("progress", task.Progress).
		Str("message", task.Message).
		Msg("Task status updated")
}

// UpdateProgress reports intermediate progress for a running task.
func (tm *TaskManager) UpdateProgress(taskID uuid.UUID, progress int, message string) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	task, ok := tm.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s not found", taskID)
	}
	if task.Status != StatusRunning && task.Status != StatusPending {
		return fmt.Errorf("cannot update progress of task in status %s", task.Status)
	}

	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	task.Progress = progress
	task.Message = message
	task.UpdatedAt = time.Now()

	if callbacks, ok := tm.callbacks[taskID]; ok {
		for _, callback := range callbacks {
			go callback(task)
		}
	}
	return nil
}

// Get returns the task with the given ID.
func (tm *TaskManager) Get(taskID uuid.UUID) (*Task, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	task, ok := tm.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	return task, nil
}

// Cancel aborts a pending or running task.
func (tm *TaskManager) Cancel(taskID uuid.UUID) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	task, ok := tm.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s not found", taskID)
	}

	if task.Status != StatusPending && task.Status != StatusRunning {
		return fmt.Errorf("cannot cancel task in status %s", task.Status)
	}

	if task.Cancel != nil {
		task.Cancel()
	}

	task.Status = StatusCancelled
	task.Message = "task cancelled by caller"
	task.UpdatedAt = time.Now()

	return nil
}

// RegisterCallback registers a status-change callback for a task.
func (tm *TaskManager) RegisterCallback(taskID uuid.UUID, callback Callback) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if _, ok := tm.tasks[taskID]; !ok {
		return fmt.Errorf("task %s not found", taskID)
	}

	tm.callbacks[taskID] = append(tm.callbacks[taskID], callback)
	return nil
}

// UnregisterCallbacks removes all callbacks registered for a task.
func (tm *TaskManager) UnregisterCallbacks(taskID uuid.UUID) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	delete(tm.callbacks, taskID)
}

// Cleanup removes finished tasks older than the given age.
func (tm *TaskManager) Cleanup(age time.Duration) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	now := time.Now()
	for id, task := range tm.tasks {
		if (task.Status == StatusCompleted || task.Status == StatusFailed || task.Status == StatusCancelled) &&
			now.Sub(task.UpdatedAt) > age {
			delete(tm.tasks, id)
			delete(tm.callbacks, id)
		}
	}
}

// Close cancels all unfinished tasks and waits for their goroutines.
func (tm *TaskManager) Close() {
	close(tm.closing)
	tm.mu.Lock()
	for _, task := range tm.tasks {
		if task.Status == StatusPending || task.Status == StatusRunning {
			if task.Cancel != nil {
				task.Cancel()
			}
		}
	}
	tm.mu.Unlock()

	tm.wg.Wait()
}

// Shutdown waits for running tasks to finish, up to the context deadline.
func (tm *TaskManager) Shutdown(ctx context.Context) error {
	close(tm.closing)

	done := make(chan struct{})
	go func() {
		tm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.New("timed out waiting for tasks to finish")
	}
}
