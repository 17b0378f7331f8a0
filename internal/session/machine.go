package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/drivedrop/drivedrop/internal/drive"
	"github.com/drivedrop/drivedrop/internal/logging"
	"github.com/drivedrop/drivedrop/internal/monitoring"
)

// Config holds the machine's fixed parameters.
type Config struct {
	Root           drive.Folder
	AuthorizedUser int64
	ListPageSize   int
	// IdleTimeout clears sessions with no activity. Zero disables
	// the reaper; correctness does not depend on it.
	IdleTimeout time.Duration
}

// Machine owns every Session and drives the conversation state
// transitions. Events are dispatched under a single lock, so events
// for one session are processed strictly in arrival order and a
// handler runs to completion before the next event is looked at.
type Machine struct {
	cfg       Config
	store     drive.Store
	resolver  *drive.Resolver
	uploader  Uploader
	responder Responder
	log       *logging.Logger
	metrics   *monitoring.Metrics

	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewMachine creates the session state machine. All collaborators
// are injected; the machine holds no ambient global state.
func NewMachine(cfg Config, store drive.Store, uploader Uploader, responder Responder, log *logging.Logger, metrics *monitoring.Metrics) *Machine {
	if cfg.ListPageSize <= 0 {
		cfg.ListPageSize = 20
	}
	return &Machine{
		cfg:       cfg,
		store:     store,
		resolver:  drive.NewResolver(store),
		uploader:  uploader,
		responder: responder,
		log:       log,
		metrics:   metrics,
		sessions:  make(map[int64]*Session),
	}
}

// Handle processes one inbound event to completion. Every handler
// entry enforces the single authorized identity: events from anyone
// else are dropped with a refusal and no state change.
func (m *Machine) Handle(ctx context.Context, ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.Sender != m.cfg.AuthorizedUser {
		m.metrics.RecordRejected()
		m.log.Warn("rejected event from unauthorized sender", zap.Int64("sender", ev.Sender))
		m.send(ctx, ev.Sender, "You are not authorized to use this bot.")
		return
	}

	sess := m.sessions[ev.Sender]
	if sess != nil {
		sess.LastActivity = time.Now()
	}

	switch ev.Kind {
	case EventCommand:
		m.handleCommand(ctx, sess, ev)
	case EventAttachment:
		m.handleAttachment(ctx, sess, ev)
	case EventButton:
		m.handleButton(ctx, sess, ev)
	case EventText:
		m.handleText(ctx, sess, ev)
	}
}

// StartReaper clears idle sessions in the background until ctx is
// done. It is a no-op when no idle timeout is configured.
func (m *Machine) StartReaper(ctx context.Context) {
	if m.cfg.IdleTimeout <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(m.cfg.IdleTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.reapIdle(ctx)
			}
		}
	}()
}

func (m *Machine) reapIdle(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for user, sess := range m.sessions {
		if now.Sub(sess.LastActivity) > m.cfg.IdleTimeout {
			m.endSession(sess, "expired")
			m.send(ctx, user, "Your upload session timed out and was cleared. Send the files again to restart.")
		}
	}
}

func (m *Machine) handleCommand(ctx context.Context, sess *Session, ev Event) {
	switch ev.Command {
	case "start":
		m.send(ctx, ev.Sender, "Hi! Send me a file (or an album) and I'll ask where to put it on Drive.")
	case "cancel":
		if sess == nil {
			m.send(ctx, ev.Sender, "Nothing to cancel.")
			return
		}
		m.endSession(sess, "cancelled")
		m.send(ctx, ev.Sender, "Operation cancelled.")
	case "done":
		if sess == nil || sess.State != StateAwaitingMoreFiles {
			m.send(ctx, ev.Sender, "There is no open batch. Send me files first.")
			return
		}
		m.beginFolderSelection(ctx, sess)
	default:
		m.send(ctx, ev.Sender, "Unknown command. Send me a file to start, or /cancel to abort.")
	}
}

func (m *Machine) handleAttachment(ctx context.Context, sess *Session, ev Event) {
	if sess == nil {
		sess = &Session{User: ev.Sender, LastActivity: time.Now()}
		m.sessions[ev.Sender] = sess
		m.metrics.SessionStarted()

		if Add(sess, ev.Item, ev.GroupKey) {
			m.send(ctx, ev.Sender, fmt.Sprintf("Received %q.", ev.Item.Name))
			m.beginFolderSelection(ctx, sess)
			return
		}
		sess.State = StateAwaitingMoreFiles
		m.send(ctx, ev.Sender, fmt.Sprintf(
			"Received %q. Send more files for this batch, then /done to pick a folder, or /cancel.",
			ev.Item.Name))
		return
	}

	switch sess.State {
	case StateAwaitingMoreFiles:
		before := len(sess.Pending)
		sameKey := ev.GroupKey != "" && ev.GroupKey == sess.GroupKey
		if Add(sess, ev.Item, ev.GroupKey) {
			if before > 0 {
				m.send(ctx, ev.Sender, fmt.Sprintf(
					"Received %q on its own; the previous unfinished batch was discarded.", ev.Item.Name))
			} else {
				m.send(ctx, ev.Sender, fmt.Sprintf("Received %q.", ev.Item.Name))
			}
			m.beginFolderSelection(ctx, sess)
			return
		}
		if sameKey {
			m.send(ctx, ev.Sender, fmt.Sprintf(
				"Added %q (%d files pending). Send more or /done.", ev.Item.Name, len(sess.Pending)))
			return
		}
		m.send(ctx, ev.Sender, fmt.Sprintf(
			"Started a new batch with %q; the previous unfinished batch was discarded. Send more or /done.",
			ev.Item.Name))
	case StateRunningUpload:
		m.send(ctx, ev.Sender, "An upload is already running. Wait for it to finish, then resend this file.")
	default:
		// The pending batch is frozen once folder selection starts;
		// late arrivals never alter it.
		m.send(ctx, ev.Sender, "Finish choosing a folder for the current batch first, or /cancel and resend.")
	}
}

func (m *Machine) handleText(ctx context.Context, sess *Session, ev Event) {
	if sess == nil {
		m.send(ctx, ev.Sender, "Send me a file to start an upload.")
		return
	}
	switch sess.State {
	case StateAwaitingPathText:
		m.handlePathText(ctx, sess, ev.Text)
	case StateAwaitingConfirmation:
		m.handleConfirmation(ctx, sess, ev.Text)
	case StateAwaitingMoreFiles:
		m.send(ctx, ev.Sender, "Send more files, /done when finished, or /cancel.")
	default:
		m.send(ctx, ev.Sender, "Please use the folder buttons, or /cancel.")
	}
}

func (m *Machine) handlePathText(ctx context.Context, sess *Session, text string) {
	path := strings.TrimSpace(text)
	if len(drive.SplitPath(path)) == 0 {
		m.send(ctx, sess.User, "That doesn't look like a folder path. Try something like Invoices/2025/Amazon.")
		return
	}

	folder, exists, err := m.resolver.Exists(ctx, m.cfg.Root, path)
	if err != nil {
		// Probe failure is retryable: stay in path entry.
		m.log.Warn("path probe failed", zap.String("path", path), zap.Error(err))
		m.send(ctx, sess.User, fmt.Sprintf("Couldn't check that path: %v. Type another path or /cancel.", err))
		return
	}

	sess.Path = path
	if exists {
		sess.Dest = folder
		sess.NeedsCreation = false
		sess.State = StateAwaitingConfirmation
		m.send(ctx, sess.User, fmt.Sprintf(
			"Folder %q already exists. Upload %d file(s) there? (yes/no)", path, len(sess.Pending)))
		return
	}
	sess.Dest = drive.Folder{}
	sess.NeedsCreation = true
	sess.State = StateAwaitingConfirmation
	m.send(ctx, sess.User, fmt.Sprintf(
		"Folder %q doesn't exist. Create it and upload %d file(s)? (yes/no)", path, len(sess.Pending)))
}

type reply int

const (
	replyUnknown reply = iota
	replyYes
	replyNo
)

// parseReply recognizes affirmatives and negatives, including the
// Italian spellings the original deployment accepted.
func parseReply(text string) reply {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes", "y", "si", "sì":
		return replyYes
	case "no", "n":
		return replyNo
	default:
		return replyUnknown
	}
}

func (m *Machine) handleConfirmation(ctx context.Context, sess *Session, text string) {
	switch parseReply(text) {
	case replyYes:
		m.runUpload(ctx, sess)
	case replyNo:
		m.endSession(sess, "cancelled")
		m.send(ctx, sess.User, "Operation cancelled.")
	default:
		m.send(ctx, sess.User, "Please reply yes or no.")
	}
}

func (m *Machine) runUpload(ctx context.Context, sess *Session) {
	sess.State = StateRunningUpload
	m.send(ctx, sess.User, "On it...")

	dest := sess.Dest
	if sess.NeedsCreation {
		folder, err := m.resolver.Resolve(ctx, m.cfg.Root, sess.Path)
		if err != nil {
			m.log.Error("destination resolution failed", zap.String("path", sess.Path), zap.Error(err))
			m.send(ctx, sess.User, fmt.Sprintf("Couldn't create the destination folder: %v", err))
			m.endSession(sess, "failed")
			return
		}
		dest = folder
	}

	results := m.uploader.Run(ctx, sess.Pending, dest)
	m.send(ctx, sess.User, summaryMessage(sess.Path, results))
	m.endSession(sess, "completed")
}

func summaryMessage(path string, results []UploadResult) string {
	var b strings.Builder
	succeeded := 0
	for _, r := range results {
		if r.Err == nil {
			succeeded++
		}
	}
	fmt.Fprintf(&b, "Done! Uploaded %d of %d file(s) to %q.", succeeded, len(results), path)
	for _, r := range results {
		b.WriteString("\n")
		switch {
		case r.Err != nil:
			fmt.Fprintf(&b, "❌ %s — %v", r.Name, r.Err)
		case r.Link != "":
			fmt.Fprintf(&b, "✅ %s — %s", r.Name, r.Link)
		default:
			fmt.Fprintf(&b, "✅ %s", r.Name)
		}
	}
	return b.String()
}

// endSession clears every session field and returns the conversation
// to idle, whatever was in flight.
func (m *Machine) endSession(sess *Session, outcome string) {
	delete(m.sessions, sess.User)
	*sess = Session{User: sess.User, State: StateIdle}
	m.metrics.SessionEnded(outcome)
	m.log.Info("session ended", zap.Int64("user", sess.User), zap.String("outcome", outcome))
}

func (m *Machine) send(ctx context.Context, user int64, text string) {
	if err := m.responder.SendText(ctx, user, text); err != nil {
		m.log.Warn("failed to send message", zap.Int64("user", user), zap.Error(err))
	}
}
