package session

import (
	"context"

	"github.com/drivedrop/drivedrop/internal/drive"
)

// EventKind tags an inbound transport event.
type EventKind int

const (
	EventAttachment EventKind = iota
	EventText
	EventButton
	EventCommand
)

// Button actions. The transport renders them as inline buttons and
// echoes the action token back verbatim on press.
const (
	ActionOpenFolder = "open"
	ActionUp         = "up"
	ActionSelectHere = "here"
	ActionTypePath   = "path"
	ActionDone       = "done"
	ActionCancel     = "cancel"
)

// Event is one inbound transport event. Kind decides which payload
// fields are meaningful.
type Event struct {
	Kind   EventKind
	Sender int64

	// Attachment payload.
	Item     FileItem
	GroupKey string // attachment group correlation, empty = ungrouped

	// Text payload.
	Text string

	// Button payload.
	Action string
	Data   string // opaque per-choice data, echoed by the transport

	// Command payload.
	Command string
}

// FileItem identifies one pending file. FileID fetches the bytes
// from the transport; Name is the display and staging name.
type FileItem struct {
	FileID string
	Name   string
	Size   int64
	MIME   string // transport hint, may be empty or wrong
}

// Choice is one entry of an outbound choice-list prompt.
type Choice struct {
	Label  string
	Action string
	Data   string
}

// Responder delivers outbound messages. Implementations must not
// call back into the machine.
type Responder interface {
	SendText(ctx context.Context, user int64, text string) error
	SendChoices(ctx context.Context, user int64, text string, choices []Choice) error
}

// UploadResult is the per-item outcome reported by the pipeline,
// in the same order the items arrived.
type UploadResult struct {
	Name string
	ID   string
	Link string
	Err  error
}

// Uploader runs a confirmed batch against a destination folder.
// It never aborts early; every item gets a result.
type Uploader interface {
	Run(ctx context.Context, items []FileItem, dest drive.Folder) []UploadResult
}
