package messaging

import "time"

// ProgressEventType identifies the kind of progress event broadcast while a
// generation task is running.
type ProgressEventType string

const (
	ProgressEventChapter   ProgressEventType = "chapter_committed"
	ProgressEventCompleted ProgressEventType = "task_completed"
	ProgressEventFailed    ProgressEventType = "task_failed"
)

// GenerationTaskPayload is the message enqueued for the worker when a client
// asks to advance a story. IDs travel as strings and are parsed at the
// consuming side.
type GenerationTaskPayload struct {
	TaskID     string    `json:"task_id"`
	StoryID    string    `json:"story_id"`
	ArcIndex   int       `json:"arc_index"`
	Count      int       `json:"count"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// ProgressEventPayload is broadcast on the fanout exchange after every
// committed chapter and once when the task finishes or fails. Consumers that
// miss events can always re-read the story cursor from the API.
type ProgressEventPayload struct {
	EventType    ProgressEventType `json:"event_type"`
	TaskID       string            `json:"task_id"`
	StoryID      string            `json:"story_id"`
	ArcIndex     int               `json:"arc_index"`
	Chapter      int               `json:"chapter,omitempty"`
	ChapterTitle string            `json:"chapter_title,omitempty"`
	Cliffhanger  bool              `json:"cliffhanger,omitempty"`
	Cursor       int               `json:"cursor"`
	Requested    int               `json:"requested,omitempty"`
	Completed    int               `json:"completed,omitempty"`
	StoryDone    bool              `json:"story_done,omitempty"`
	ErrorDetails string            `json:"error_details,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}
