package session

import (
	"time"

	"github.com/drivedrop/drivedrop/internal/drive"
)

// State is the closed set of conversation states.
type State int

const (
	StateIdle State = iota
	StateAwaitingMoreFiles
	StateSelectingFolder
	StateAwaitingPathText
	StateAwaitingConfirmation
	StateRunningUpload
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingMoreFiles:
		return "awaiting_more_files"
	case StateSelectingFolder:
		return "selecting_folder"
	case StateAwaitingPathText:
		return "awaiting_path_text"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateRunningUpload:
		return "running_upload"
	default:
		return "unknown"
	}
}

// Session is the in-memory state of one upload conversation. It is
// mutated only by the Machine while holding its lock.
type Session struct {
	User  int64
	State State

	// Pending is the accumulated batch in arrival order. It is
	// frozen once the session leaves the accumulation state.
	Pending  []FileItem
	GroupKey string

	// Navigation state: Current is where the navigator stands;
	// Breadcrumbs holds the folders visited on the way down and
	// never contains Current.
	Current     drive.Folder
	Breadcrumbs []drive.Folder

	// Destination, set exactly once per transition into
	// confirmation. NeedsCreation marks a typed path whose folders
	// do not exist yet; Dest is only valid when it is false.
	Path          string
	NeedsCreation bool
	Dest          drive.Folder

	LastActivity time.Time
}
