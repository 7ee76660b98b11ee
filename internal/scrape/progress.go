package scrape

import "github.com/google/uuid"

type EventType string

const (
	EventInfo     EventType = "info"
	EventProgress EventType = "progress"
	EventError    EventType = "error"
	EventDone     EventType = "done"
)

// ProgressEvent is a single frame on a run's progress stream. Info frames
// carry a message, progress frames carry current/total, and the terminal
// done frame carries the run ID so the client can fetch results.
type ProgressEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message,omitempty"`
	Current int       `json:"current,omitempty"`
	Total   int       `json:"total,omitempty"`
	RunID   string    `json:"jobId,omitempty"`
}

// progressEmitter serializes a run's progress frames on to a channel. Exactly
// one terminal frame (done or error) is emitted, after which the channel is
// closed and further frames are discarded. All methods must be called from
// the run's goroutine.
type progressEmitter struct {
	events   chan ProgressEvent
	terminal bool
}

func newProgressEmitter() *progressEmitter {
	return &progressEmitter{events: make(chan ProgressEvent, 16)}
}

func (emitter *progressEmitter) Events() <-chan ProgressEvent { return emitter.events }

func (emitter *progressEmitter) Info(message string) {
	emitter.emit(ProgressEvent{Type: EventInfo, Message: message})
}

func (emitter *progressEmitter) Progress(current int, total int) {
	emitter.emit(ProgressEvent{Type: EventProgress, Current: current, Total: total})
}

func (emitter *progressEmitter) Done(runID uuid.UUID) {
	emitter.emit(ProgressEvent{Type: EventDone, RunID: runID.String()})
	emitter.terminate()
}

func (emitter *progressEmitter) Fail(message string) {
	emitter.emit(ProgressEvent{Type: EventError, Message: message})
	emitter.terminate()
}

func (emitter *progressEmitter) emit(event ProgressEvent) {
	if emitter.terminal {
		return
	}

	emitter.events <- event
}

func (emitter *progressEmitter) terminate() {
	if emitter.terminal {
		return
	}

	emitter.terminal = true
	close(emitter.events)
}
