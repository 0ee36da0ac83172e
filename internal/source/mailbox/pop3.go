// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/knadh/go-pop3"

	"github.com/pdiddy/watchcat/internal/logger"
	"github.com/pdiddy/watchcat/internal/source"
)

// pop3Client is the subset of *pop3.Conn the adapter uses.
type pop3Client interface {
	Auth(user, password string) error
	Uidl(msgID int) ([]pop3.MessageID, error)
	Top(msgID int, numLines int) (*gomessage.Entity, error)
	RetrRaw(msgID int) (*bytes.Buffer, error)
	Quit() error
}

// dialPOP3 opens a POP3 connection. Tests substitute a fake.
var dialPOP3 = func(_ context.Context, host string, port int, useSSL bool, timeout time.Duration) (pop3Client, error) {
	p := pop3.New(pop3.Opt{
		Host:        host,
		Port:        port,
		TLSEnabled:  useSSL,
		DialTimeout: timeout,
	})
	return p.NewConn()
}

type pop3Session struct {
	c pop3Client
}

func (s *pop3Session) Close() error { return s.c.Quit() }

func (a *Adapter) connectPOP3(ctx context.Context) (*pop3Session, error) {
	c, err := dialPOP3(ctx, a.host, a.port, a.useSSL, a.timeout)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", a.addr(), err)
	}
	if err := c.Auth(a.username, a.password); err != nil {
		c.Quit()
		return nil, fmt.Errorf("pop3 auth as %s: %w", a.username, err)
	}
	return &pop3Session{c: c}, nil
}

// fetch lists the mailbox, reads each message's headers with TOP, and
// retrieves the oldest limit messages whose Date falls in w. Dated messages
// come first in ascending date order so that messages deferred by the limit
// are never older than the newest one returned; the cursor then leaves them
// inside the next window. Undated messages follow in message order.
func (s *pop3Session) fetch(ctx context.Context, limit int, w source.Window, now func() time.Time) ([]source.RawItem, error) {
	log := logger.Named("pop3")
	ids, err := s.c.Uidl(0)
	if err != nil {
		return nil, fmt.Errorf("uidl: %w", err)
	}

	type candidate struct {
		msg  pop3.MessageID
		date time.Time
	}
	cands := make([]candidate, 0, len(ids))
	for _, m := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		date, err := s.headerDate(m.ID)
		if err != nil {
			return nil, fmt.Errorf("top %d: %w", m.ID, err)
		}
		if !w.Contains(date) {
			continue
		}
		cands = append(cands, candidate{msg: m, date: date})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.date.IsZero() != b.date.IsZero() {
			return b.date.IsZero()
		}
		if !a.date.Equal(b.date) {
			return a.date.Before(b.date)
		}
		return a.msg.ID < b.msg.ID
	})
	if len(cands) > limit {
		log.Warn().Int("deferred", len(cands)-limit).Int("max_messages", limit).
			Msg("more messages in window than max_messages, the rest follow on later pulls")
		cands = cands[:limit]
	}
	log.Debug().Int("listed", len(ids)).Int("retrieving", len(cands)).Msg("listing")

	out := make([]source.RawItem, 0, len(cands))
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buf, err := s.c.RetrRaw(c.msg.ID)
		if err != nil {
			return nil, fmt.Errorf("retr %d: %w", c.msg.ID, err)
		}
		uid := c.msg.UID
		if uid == "" {
			uid = strconv.Itoa(c.msg.ID)
		}
		out = append(out, source.RawItem{
			ID:      uid,
			Origin:  c.date,
			Fetched: now(),
			Data:    buf.Bytes(),
		})
	}
	return out, nil
}

// headerDate reads the Date header of message id; zero when absent or
// unparseable. A header the parser rejects for its charset is undated
// rather than an error.
func (s *pop3Session) headerDate(id int) (time.Time, error) {
	e, err := s.c.Top(id, 0)
	if err != nil {
		if gomessage.IsUnknownCharset(err) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	h := mail.Header{Header: e.Header}
	t, err := h.Date()
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}
