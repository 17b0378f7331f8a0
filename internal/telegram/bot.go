// Package telegram adapts the Telegram Bot API to the session
// machine: inbound updates become session events, outbound prompts
// become messages and inline keyboards, and file bytes are fetched
// into staging on behalf of the upload pipeline.
package telegram

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"

	"github.com/drivedrop/drivedrop/internal/logging"
	"github.com/drivedrop/drivedrop/internal/session"
)

// Callback uniques routing button presses back to session actions.
const (
	uniqueOpen   = "dd_open"
	uniqueUp     = "dd_up"
	uniqueHere   = "dd_here"
	uniquePath   = "dd_path"
	uniqueDone   = "dd_done"
	uniqueCancel = "dd_cancel"
)

var actionToUnique = map[string]string{
	session.ActionOpenFolder: uniqueOpen,
	session.ActionUp:         uniqueUp,
	session.ActionSelectHere: uniqueHere,
	session.ActionTypePath:   uniquePath,
	session.ActionDone:       uniqueDone,
	session.ActionCancel:     uniqueCancel,
}

// Bot is the long-polling Telegram transport. It implements
// session.Responder and the upload pipeline's Fetcher.
type Bot struct {
	tb      *tele.Bot
	machine *session.Machine
	log     *logging.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// New connects to the Bot API. Handlers are registered by Bind.
func New(token string, log *logging.Logger) (*Bot, error) {
	b := &Bot{log: log}
	b.ctx, b.cancel = context.WithCancel(context.Background())

	tb, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			log.Error("transport error", zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	b.tb = tb
	return b, nil
}

// Bind registers all update handlers against the machine.
func (b *Bot) Bind(machine *session.Machine) {
	b.machine = machine

	b.tb.Handle("/start", b.onCommand("start"))
	b.tb.Handle("/cancel", b.onCommand("cancel"))
	b.tb.Handle("/done", b.onCommand("done"))

	b.tb.Handle(tele.OnDocument, b.onAttachment)
	b.tb.Handle(tele.OnPhoto, b.onAttachment)
	b.tb.Handle(tele.OnVideo, b.onAttachment)
	b.tb.Handle(tele.OnAudio, b.onAttachment)
	b.tb.Handle(tele.OnVoice, b.onAttachment)

	b.tb.Handle(tele.OnText, b.onText)

	for action, unique := range actionToUnique {
		btn := tele.Btn{Unique: unique}
		b.tb.Handle(&btn, b.onButton(action))
	}
}

// Start long-polls until Stop is called. Blocking.
func (b *Bot) Start() {
	b.log.Info("telegram transport started", zap.String("bot", b.tb.Me.Username))
	b.tb.Start()
}

// Stop halts polling and abandons in-flight handler contexts.
func (b *Bot) Stop() {
	b.cancel()
	b.tb.Stop()
}

// SendText implements session.Responder.
func (b *Bot) SendText(_ context.Context, user int64, text string) error {
	_, err := b.tb.Send(tele.ChatID(user), text)
	return err
}

// SendChoices implements session.Responder: a text prompt with one
// inline button per choice, tokens echoed back on press.
func (b *Bot) SendChoices(_ context.Context, user int64, text string, choices []session.Choice) error {
	markup := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(choices))
	for _, choice := range choices {
		unique, ok := actionToUnique[choice.Action]
		if !ok {
			continue
		}
		rows = append(rows, markup.Row(markup.Data(choice.Label, unique, choice.Data)))
	}
	markup.Inline(rows...)
	_, err := b.tb.Send(tele.ChatID(user), text, markup)
	return err
}

// Fetch implements the upload pipeline's Fetcher by downloading the
// transport file to path.
func (b *Bot) Fetch(_ context.Context, fileID, path string) error {
	return b.tb.Download(&tele.File{FileID: fileID}, path)
}

func (b *Bot) onCommand(name string) tele.HandlerFunc {
	return func(c tele.Context) error {
		b.machine.Handle(b.ctx, session.Event{
			Kind:    session.EventCommand,
			Sender:  c.Sender().ID,
			Command: name,
		})
		return nil
	}
}

func (b *Bot) onText(c tele.Context) error {
	b.machine.Handle(b.ctx, session.Event{
		Kind:   session.EventText,
		Sender: c.Sender().ID,
		Text:   c.Text(),
	})
	return nil
}

func (b *Bot) onButton(action string) tele.HandlerFunc {
	return func(c tele.Context) error {
		// Acknowledge first so the client stops its spinner even if
		// the handler takes a while.
		if err := c.Respond(&tele.CallbackResponse{}); err != nil {
			b.log.Debug("callback ack failed", zap.Error(err))
		}
		b.machine.Handle(b.ctx, session.Event{
			Kind:   session.EventButton,
			Sender: c.Sender().ID,
			Action: action,
			Data:   c.Data(),
		})
		return nil
	}
}

func (b *Bot) onAttachment(c tele.Context) error {
	msg := c.Message()
	item, ok := fileItem(msg)
	if !ok {
		return c.Send("I can't handle that kind of attachment yet.")
	}
	b.machine.Handle(b.ctx, session.Event{
		Kind:     session.EventAttachment,
		Sender:   c.Sender().ID,
		Item:     item,
		GroupKey: msg.AlbumID,
	})
	return nil
}

// fileItem extracts the transferable file from a message. Names
// missing from the source are synthesized from the media kind and
// the message ID, which is monotonic per chat, so album items never
// collide in staging.
func fileItem(msg *tele.Message) (session.FileItem, bool) {
	switch {
	case msg.Document != nil:
		name := msg.Document.FileName
		if name == "" {
			name = fmt.Sprintf("document_%d", msg.ID)
		}
		return session.FileItem{
			FileID: msg.Document.FileID,
			Name:   name,
			Size:   msg.Document.FileSize,
			MIME:   msg.Document.MIME,
		}, true
	case msg.Photo != nil:
		return session.FileItem{
			FileID: msg.Photo.FileID,
			Name:   fmt.Sprintf("photo_%d.jpg", msg.ID),
			Size:   msg.Photo.FileSize,
			MIME:   "image/jpeg",
		}, true
	case msg.Video != nil:
		name := msg.Video.FileName
		if name == "" {
			name = fmt.Sprintf("video_%d.mp4", msg.ID)
		}
		return session.FileItem{
			FileID: msg.Video.FileID,
			Name:   name,
			Size:   msg.Video.FileSize,
			MIME:   msg.Video.MIME,
		}, true
	case msg.Audio != nil:
		name := msg.Audio.FileName
		if name == "" {
			name = fmt.Sprintf("audio_%d.mp3", msg.ID)
		}
		return session.FileItem{
			FileID: msg.Audio.FileID,
			Name:   name,
			Size:   msg.Audio.FileSize,
			MIME:   msg.Audio.MIME,
		}, true
	case msg.Voice != nil:
		return session.FileItem{
			FileID: msg.Voice.FileID,
			Name:   fmt.Sprintf("voice_%d.ogg", msg.ID),
			Size:   msg.Voice.FileSize,
			MIME:   msg.Voice.MIME,
		}, true
	default:
		return session.FileItem{}, false
	}
}
