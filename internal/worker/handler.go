package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"epic-engine/internal/interfaces"
	"epic-engine/internal/messaging"
	"epic-engine/internal/models"
	"epic-engine/pkg/taskmanager"
)

// inflightTask carries per-task bookkeeping for the chapter hook.
type inflightTask struct {
	mu        sync.Mutex
	taskID    string
	requested int
	base      int
	managerID uuid.UUID
	hasMgr    bool
}

// Handler executes generation tasks from the queue. Each task runs through
// the task manager so it gets its own cancellable context and shows up in the
// registry, while the handler blocks until the task settles so the delivery
// can be acked or nacked correctly.
type Handler struct {
	engine   interfaces.Engine
	progress messaging.ProgressPublisher
	tasks    taskmanager.Manager
	logger   *zap.Logger
	inflight sync.Map // story uuid.UUID -> *inflightTask
}

var _ messaging.TaskHandler = (*Handler)(nil)

func NewHandler(
	engine interfaces.Engine,
	progress messaging.ProgressPublisher,
	tasks taskmanager.Manager,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		engine:   engine,
		progress: progress,
		tasks:    tasks,
		logger:   logger.Named("WorkerHandler"),
	}
}

// OnChapterCommitted is wired as the engine's per-chapter hook. It broadcasts
// a progress event and updates the task registry; both are best effort and
// never block the generation loop on failure.
func (h *Handler) OnChapterCommitted(chapter *models.Chapter) {
	incrementChapterCommitted()

	v, ok := h.inflight.Load(chapter.StoryID)
	if !ok {
		return
	}
	t := v.(*inflightTask)

	t.mu.Lock()
	if t.base < 0 {
		t.base = chapter.Number - 1
	}
	completed := chapter.Number - t.base
	taskID := t.taskID
	requested := t.requested
	managerID, hasMgr := t.managerID, t.hasMgr
	t.mu.Unlock()

	if hasMgr && requested > 0 {
		pct := completed * 100 / requested
		msg := fmt.Sprintf("chapter %d committed (%d/%d)", chapter.Number, completed, requested)
		if err := h.tasks.UpdateProgress(managerID, pct, msg); err != nil {
			h.logger.Debug("Failed to update task progress", zap.Error(err))
		}
	}

	event := messaging.ProgressEventPayload{
		EventType:    messaging.ProgressEventChapter,
		TaskID:       taskID,
		StoryID:      chapter.StoryID.String(),
		ArcIndex:     chapter.ArcIndex,
		Chapter:      chapter.Number,
		ChapterTitle: chapter.Title,
		Cliffhanger:  chapter.Cliffhanger,
		Cursor:       chapter.Number,
		OccurredAt:   time.Now().UTC(),
	}
	if err := h.progress.PublishProgress(context.Background(), event); err != nil {
		h.logger.Warn("Failed to publish chapter progress event",
			zap.String("taskID", taskID),
			zap.Int("chapter", chapter.Number),
			zap.Error(err))
	}
}

// Handle runs one generation task to completion.
func (h *Handler) Handle(ctx context.Context, payload messaging.GenerationTaskPayload) error {
	incrementTasksReceived()
	started := time.Now()
	defer func() {
		recordTaskDuration(time.Since(started))
		_ = PushMetricsNow()
	}()

	log := h.logger.With(
		zap.String("taskID", payload.TaskID),
		zap.String("storyID", payload.StoryID))

	storyID, err := uuid.Parse(payload.StoryID)
	if err != nil {
		incrementTaskFailed("invalid_story_id")
		return fmt.Errorf("%w: invalid story id %q", models.ErrInvalidInput, payload.StoryID)
	}

	entry := &inflightTask{
		taskID:    payload.TaskID,
		requested: payload.Count,
		base:      -1,
	}
	h.inflight.Store(storyID, entry)
	defer h.inflight.Delete(storyID)

	var advanceErr error
	managerID, err := h.tasks.Submit(ctx, func(taskCtx context.Context, _ interface{}) (interface{}, error) {
		report, err := h.engine.Advance(taskCtx, storyID, payload.ArcIndex, payload.Count)
		advanceErr = err
		return report, err
	}, payload)
	if err != nil {
		incrementTaskFailed("submit")
		return fmt.Errorf("failed to submit generation task: %w", err)
	}

	entry.mu.Lock()
	entry.managerID = managerID
	entry.hasMgr = true
	entry.mu.Unlock()

	done := make(chan *taskmanager.Task, 1)
	if err := h.tasks.RegisterCallback(managerID, func(task *taskmanager.Task) {
		if isTerminal(task.Status) {
			select {
			case done <- task:
			default:
			}
		}
	}); err != nil {
		log.Warn("Failed to register task callback", zap.Error(err))
	}
	defer h.tasks.UnregisterCallbacks(managerID)

	// The task may have settled before the callback was registered.
	if task, err := h.tasks.Get(managerID); err == nil && isTerminal(task.Status) {
		select {
		case done <- task:
		default:
		}
	}

	var finished *taskmanager.Task
	select {
	case finished = <-done:
	case <-ctx.Done():
		log.Info("Shutdown requested, cancelling running generation task")
		_ = h.tasks.Cancel(managerID)
		finished = <-done
	}

	var report *models.AdvanceReport
	if finished.Result != nil {
		report, _ = finished.Result.(*models.AdvanceReport)
	}

	switch finished.Status {
	case taskmanager.StatusCancelled:
		incrementTaskFailed("cancelled")
		h.publishFinal(messaging.ProgressEventFailed, payload, report, "task cancelled")
		return fmt.Errorf("generation task cancelled: %w", context.Canceled)

	case taskmanager.StatusFailed:
		if advanceErr == nil {
			advanceErr = errors.New(finished.Message)
		}
		reason := failureReason(advanceErr)
		incrementTaskFailed(reason)
		h.publishFinal(messaging.ProgressEventFailed, payload, report, advanceErr.Error())
		log.Error("Generation task failed",
			zap.String("reason", reason),
			zap.Error(advanceErr))
		return advanceErr

	default:
		incrementTaskSucceeded()
		h.publishFinal(messaging.ProgressEventCompleted, payload, report, "")
		if report != nil {
			log.Info("Generation task succeeded",
				zap.Int("completed", report.Completed),
				zap.Int("cursor", report.Cursor),
				zap.Bool("storyCompleted", report.StoryCompleted))
		}
		return nil
	}
}

func (h *Handler) publishFinal(eventType messaging.ProgressEventType, payload messaging.GenerationTaskPayload, report *models.AdvanceReport, errDetails string) {
	event := messaging.ProgressEventPayload{
		EventType:    eventType,
		TaskID:       payload.TaskID,
		StoryID:      payload.StoryID,
		ArcIndex:     payload.ArcIndex,
		Requested:    payload.Count,
		ErrorDetails: errDetails,
		OccurredAt:   time.Now().UTC(),
	}
	if report != nil {
		event.Completed = report.Completed
		event.Cursor = report.Cursor
		event.StoryDone = report.StoryCompleted
	}
	if err := h.progress.PublishProgress(context.Background(), event); err != nil {
		h.logger.Warn("Failed to publish final progress event",
			zap.String("taskID", payload.TaskID),
			zap.String("eventType", string(eventType)),
			zap.Error(err))
	}
}

func isTerminal(status taskmanager.Status) bool {
	return status == taskmanager.StatusCompleted ||
		status == taskmanager.StatusFailed ||
		status == taskmanager.StatusCancelled
}

// failureReason maps an advance error to a metric label.
func failureReason(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, models.ErrStoryBusy):
		return "story_busy"
	case errors.Is(err, models.ErrArcBoundary):
		return "arc_boundary"
	case errors.Is(err, models.ErrOutOfOrder):
		return "out_of_order"
	case errors.Is(err, models.ErrContinuityFold):
		return "continuity_fold"
	case errors.Is(err, models.ErrGenerationFailed):
		return "backend"
	case errors.Is(err, models.ErrStoryNotFound):
		return "story_not_found"
	case errors.Is(err, models.ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}
