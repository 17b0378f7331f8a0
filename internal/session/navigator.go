package session

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/drivedrop/drivedrop/internal/drive"
)

// beginFolderSelection freezes the pending batch and opens the
// navigator at the configured root.
func (m *Machine) beginFolderSelection(ctx context.Context, sess *Session) {
	sess.State = StateSelectingFolder
	sess.Current = m.cfg.Root
	sess.Breadcrumbs = nil
	m.promptFolderList(ctx, sess)
}

// promptFolderList lists the current folder's child folders as a
// choice prompt. The listing is capped at the configured page size;
// folders beyond the cap are not reachable by navigation, only by
// typing a path.
func (m *Machine) promptFolderList(ctx context.Context, sess *Session) {
	children, err := m.store.ListChildren(ctx, sess.Current.ID, drive.ListOptions{
		FoldersOnly: true,
		PageSize:    m.cfg.ListPageSize,
	})
	if err != nil {
		m.log.Error("folder listing failed", zap.String("folder", sess.Current.ID), zap.Error(err))
		m.endSession(sess, "failed")
		m.send(ctx, sess.User, fmt.Sprintf(
			"Couldn't list folders: %v. The session was cleared; send the files again to retry.", err))
		return
	}

	choices := make([]Choice, 0, len(children)+4)
	for _, child := range children {
		choices = append(choices, Choice{Label: "📁 " + child.Name, Action: ActionOpenFolder, Data: child.ID})
	}
	choices = append(choices, Choice{Label: "✅ Upload here", Action: ActionSelectHere})
	if len(sess.Breadcrumbs) > 0 {
		choices = append(choices, Choice{Label: "⬆️ Up", Action: ActionUp})
	}
	choices = append(choices,
		Choice{Label: "⌨️ Type a path", Action: ActionTypePath},
		Choice{Label: "❌ Cancel", Action: ActionCancel},
	)

	text := fmt.Sprintf("Where should %d file(s) go? Current folder: %s", len(sess.Pending), navPath(sess))
	if err := m.responder.SendChoices(ctx, sess.User, text, choices); err != nil {
		m.log.Warn("failed to send folder prompt", zap.Int64("user", sess.User), zap.Error(err))
	}
}

func (m *Machine) handleButton(ctx context.Context, sess *Session, ev Event) {
	if sess == nil {
		m.send(ctx, ev.Sender, "No upload in progress. Send me a file to start.")
		return
	}

	if ev.Action == ActionCancel {
		m.endSession(sess, "cancelled")
		m.send(ctx, ev.Sender, "Operation cancelled.")
		return
	}

	if ev.Action == ActionDone {
		if sess.State != StateAwaitingMoreFiles {
			m.send(ctx, ev.Sender, "There is no open batch right now.")
			return
		}
		m.beginFolderSelection(ctx, sess)
		return
	}

	if sess.State != StateSelectingFolder {
		m.send(ctx, ev.Sender, "That button isn't valid right now. Use /cancel to start over.")
		return
	}

	switch ev.Action {
	case ActionOpenFolder:
		m.openFolder(ctx, sess, ev.Data)
	case ActionUp:
		m.goUp(ctx, sess)
	case ActionSelectHere:
		m.selectHere(ctx, sess)
	case ActionTypePath:
		sess.State = StateAwaitingPathText
		m.send(ctx, ev.Sender, "Type the destination path, e.g. Invoices/2025/Amazon. Missing folders will be created.")
	default:
		m.send(ctx, ev.Sender, "Unrecognized choice. Use the buttons below the folder list, or /cancel.")
	}
}

// openFolder descends into the chosen child, pushing the current
// folder onto the breadcrumb stack.
func (m *Machine) openFolder(ctx context.Context, sess *Session, folderID string) {
	meta, err := m.store.GetMetadata(ctx, folderID)
	if err != nil {
		m.log.Error("folder metadata fetch failed", zap.String("folder", folderID), zap.Error(err))
		m.endSession(sess, "failed")
		m.send(ctx, sess.User, fmt.Sprintf(
			"Couldn't open that folder: %v. The session was cleared; send the files again to retry.", err))
		return
	}
	sess.Breadcrumbs = append(sess.Breadcrumbs, sess.Current)
	sess.Current = drive.Folder{ID: meta.ID, Name: meta.Name}
	m.promptFolderList(ctx, sess)
}

// goUp pops the breadcrumb stack and makes the popped folder current.
func (m *Machine) goUp(ctx context.Context, sess *Session) {
	if len(sess.Breadcrumbs) == 0 {
		m.send(ctx, sess.User, "Already at the root folder.")
		return
	}
	sess.Current = sess.Breadcrumbs[len(sess.Breadcrumbs)-1]
	sess.Breadcrumbs = sess.Breadcrumbs[:len(sess.Breadcrumbs)-1]
	m.promptFolderList(ctx, sess)
}

// selectHere confirms the current folder as the destination.
func (m *Machine) selectHere(ctx context.Context, sess *Session) {
	path, err := m.resolver.PathString(ctx, sess.Current, m.cfg.Root)
	if err != nil {
		// The breadcrumb trail reconstructs the same path without
		// remote calls; use it rather than failing the selection.
		m.log.Warn("path rendering failed, using breadcrumbs", zap.Error(err))
		path = navPath(sess)
	}
	sess.Path = path
	sess.Dest = sess.Current
	sess.NeedsCreation = false
	sess.State = StateAwaitingConfirmation
	m.send(ctx, sess.User, fmt.Sprintf(
		"Upload %d file(s) to %s? (yes/no)", len(sess.Pending), path))
}

// navPath renders the navigator's position from the breadcrumb
// stack: crumbs bottom-to-top, then the current folder.
func navPath(sess *Session) string {
	if len(sess.Breadcrumbs) == 0 {
		return "/"
	}
	names := make([]string, 0, len(sess.Breadcrumbs))
	for _, crumb := range sess.Breadcrumbs[1:] { // skip the root crumb
		names = append(names, crumb.Name)
	}
	names = append(names, sess.Current.Name)
	return "/" + strings.Join(names, "/")
}
