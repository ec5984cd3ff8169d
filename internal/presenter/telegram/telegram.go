// Package telegram presents notifications as Telegram messages with an
// inline keyboard. Useful on headless hosts where no session notification
// daemon is running; buttons map 1:1 onto the presenter actions.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"ghnotifier/internal/presenter"
	logx "ghnotifier/pkg/logx"
)

const (
	uniqueOpen        = "ghn_open"
	uniqueAcknowledge = "ghn_ack"
)

type Config struct {
	Token  string
	ChatID int64
	// PollTimeout for the long poller. Default 10s.
	PollTimeout time.Duration
}

type response struct {
	action presenter.Action
}

type pending struct {
	ch  chan response
	msg *tele.Message
}

// Presenter sends interactive messages through one bot to one chat.
type Presenter struct {
	bot  *tele.Bot
	chat tele.ChatID
	log  logx.Logger

	seq atomic.Uint64

	mu      sync.Mutex
	waiters map[string]*pending
}

// New builds the bot, registers callback routes, and starts the poller.
// The poller stops when ctx is cancelled.
func New(ctx context.Context, cfg Config, log logx.Logger) (*Presenter, error) {
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, &presenter.Error{Backend: "telegram",
			Err: fmt.Errorf("notify.telegram.token and notify.telegram.chat_id are required")}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	pt := cfg.PollTimeout
	if pt <= 0 {
		pt = 10 * time.Second
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: pt},
	})
	if err != nil {
		return nil, &presenter.Error{Backend: "telegram", Err: err}
	}

	p := &Presenter{
		bot:     bot,
		chat:    tele.ChatID(cfg.ChatID),
		log:     log,
		waiters: map[string]*pending{},
	}

	markup := &tele.ReplyMarkup{}
	btnOpen := markup.Data("Open in browser", uniqueOpen, "")
	btnAck := markup.Data("Mark as read", uniqueAcknowledge, "")
	bot.Handle(&btnOpen, p.callback(presenter.ActionOpen))
	bot.Handle(&btnAck, p.callback(presenter.ActionAcknowledge))

	go bot.Start()
	go func() {
		<-ctx.Done()
		bot.Stop()
	}()

	return p, nil
}

func (p *Presenter) Present(ctx context.Context, req presenter.Request) (presenter.Handle, error) {
	token := strconv.FormatUint(p.seq.Add(1), 36)

	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(
		markup.Data("Open in browser", uniqueOpen, token),
		markup.Data("Mark as read", uniqueAcknowledge, token),
	))

	text := fmt.Sprintf("%s %s\n%s", badgeFor(req.Category), req.Title, req.Body)
	msg, err := p.bot.Send(p.chat, text, markup)
	if err != nil {
		return nil, &presenter.Error{Backend: "telegram", Err: err}
	}

	p.mu.Lock()
	p.waiters[token] = &pending{ch: make(chan response, 1), msg: msg}
	p.mu.Unlock()

	return token, nil
}

func (p *Presenter) Await(ctx context.Context, h presenter.Handle) (presenter.Action, error) {
	token, ok := h.(string)
	if !ok {
		return presenter.ActionDismissed, &presenter.Error{
			Backend: "telegram", Err: fmt.Errorf("bad handle %T", h)}
	}

	p.mu.Lock()
	w := p.waiters[token]
	p.mu.Unlock()
	if w == nil {
		return presenter.ActionDismissed, &presenter.Error{
			Backend: "telegram", Err: fmt.Errorf("unknown handle %q", token)}
	}
	defer p.forget(token)

	select {
	case <-ctx.Done():
		// Strip the keyboard so stale buttons can't fire later.
		if _, err := p.bot.EditReplyMarkup(w.msg, nil); err != nil {
			p.log.Debug("keyboard strip failed", logx.Err(err))
		}
		return presenter.ActionDismissed, ctx.Err()
	case r := <-w.ch:
		return r.action, nil
	}
}

func (p *Presenter) Warn(ctx context.Context, title, body string) {
	_ = ctx
	if _, err := p.bot.Send(p.chat, "⚠️ "+title+"\n"+body); err != nil {
		p.log.Warn("warning message failed", logx.Err(err))
	}
}

func (p *Presenter) callback(a presenter.Action) tele.HandlerFunc {
	return func(c tele.Context) error {
		token := c.Data()
		p.mu.Lock()
		w := p.waiters[token]
		p.mu.Unlock()
		if w == nil {
			// Race lost against the timeout; acknowledge the tap quietly.
			return c.Respond(&tele.CallbackResponse{Text: "expired"})
		}
		select {
		case w.ch <- response{action: a}:
		default:
		}
		if _, err := p.bot.EditReplyMarkup(w.msg, nil); err != nil {
			p.log.Debug("keyboard strip failed", logx.Err(err))
		}
		return c.Respond(&tele.CallbackResponse{})
	}
}

func (p *Presenter) forget(token string) {
	p.mu.Lock()
	delete(p.waiters, token)
	p.mu.Unlock()
}

func badgeFor(c presenter.Category) string {
	switch c {
	case presenter.CategoryPullOpen:
		return "🟢"
	case presenter.CategoryPullMerged:
		return "🟣"
	case presenter.CategoryPullClosed:
		return "🔴"
	case presenter.CategoryPullRequest:
		return "🔀"
	default:
		return "🔔"
	}
}
