// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/pdiddy/watchcat/internal/filter"
	"github.com/pdiddy/watchcat/internal/logger"
	"github.com/pdiddy/watchcat/internal/source"
)

// imapClient is the subset of *client.Client the adapter uses.
type imapClient interface {
	Login(username, password string) error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	Logout() error
	Terminate() error
}

// ctxDialer makes the IMAP dial honor the pull context.
type ctxDialer struct {
	ctx context.Context
	d   *net.Dialer
}

func (c ctxDialer) Dial(network, addr string) (net.Conn, error) {
	return c.d.DialContext(c.ctx, network, addr)
}

// dialIMAP opens an IMAP connection. Tests substitute a fake.
var dialIMAP = func(ctx context.Context, addr, host string, useSSL bool, timeout time.Duration) (imapClient, error) {
	d := ctxDialer{ctx: ctx, d: &net.Dialer{Timeout: timeout}}
	if useSSL {
		return client.DialWithDialerTLS(d, addr, &tls.Config{ServerName: host})
	}
	return client.DialWithDialer(d, addr)
}

type imapSession struct {
	c      imapClient
	folder string
}

func (s *imapSession) Close() error { return s.c.Logout() }

func (a *Adapter) connectIMAP(ctx context.Context) (*imapSession, error) {
	c, err := dialIMAP(ctx, a.addr(), a.host, a.useSSL, a.timeout)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", a.addr(), err)
	}
	if err := c.Login(a.username, a.password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("imap login as %s: %w", a.username, err)
	}
	if _, err := c.Select(a.folder, true); err != nil {
		c.Logout()
		return nil, fmt.Errorf("selecting folder %s: %w", a.folder, err)
	}
	return &imapSession{c: c, folder: a.folder}, nil
}

func (s *imapSession) fetch(ctx context.Context, criteria *imap.SearchCriteria, now func() time.Time) ([]source.RawItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	uids, err := s.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("uid search: %w", err)
	}
	logger.Named("imap").Debug().Str("folder", s.folder).Int("matches", len(uids)).Msg("searched")
	if len(uids) == 0 {
		return nil, nil
	}

	seq := new(imap.SeqSet)
	seq.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchEnvelope, imap.FetchUid}

	// go-imap has no context support; terminate the connection to unblock.
	stop := context.AfterFunc(ctx, func() { s.c.Terminate() })
	defer stop()

	ch := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() { done <- s.c.UidFetch(seq, items, ch) }()

	fetched := now()
	var out []source.RawItem
	uidOf := map[string]uint32{}
	for msg := range ch {
		if msg == nil {
			continue
		}
		item, err := rawFromIMAP(msg, fetched)
		if err != nil {
			// Kept with no data so normalization counts it as skipped and
			// holds the cursor at its date.
			logger.Named("imap").Warn().Err(err).Str("item", item.ID).Msg("unreadable message")
		}
		uidOf[item.ID] = msg.Uid
		out = append(out, item)
	}
	if err := <-done; err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("uid fetch: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return uidOf[out[i].ID] < uidOf[out[j].ID] })
	return out, nil
}

// rawFromIMAP converts a fetched message. A message with no UID or an
// unreadable body is returned with nil Data alongside the error; messages
// without a UID are identified by sequence number.
func rawFromIMAP(msg *imap.Message, fetched time.Time) (source.RawItem, error) {
	item := source.RawItem{Fetched: fetched}
	if msg.Envelope != nil {
		item.Origin = msg.Envelope.Date
	}
	if msg.Uid == 0 {
		item.ID = "seq-" + strconv.FormatUint(uint64(msg.SeqNum), 10)
		return item, errors.New("server returned no uid")
	}
	item.ID = strconv.FormatUint(uint64(msg.Uid), 10)
	for _, lit := range msg.Body {
		if lit == nil {
			continue
		}
		b, err := io.ReadAll(lit)
		if err != nil {
			return item, fmt.Errorf("reading body: %w", err)
		}
		item.Data = b
		break
	}
	return item, nil
}

// Translator maps filter predicates onto IMAP SEARCH keys. IMAP matches
// header substrings case-insensitively, but servers differ in how they fold
// non-ASCII text and decode encoded words, so header keys are relaxations and
// the predicate is re-checked in memory. equals is relaxed to contains on
// the trimmed value. SENTSINCE and SENTBEFORE compare dates in the message's
// own zone, so date bounds widen to whole days with a one-day margin on each
// side. Body search varies between servers and stays in memory, as does id,
// which falls back to the uid when a message has no Message-ID.
type Translator struct{}

var headerNames = map[filter.Field]string{
	filter.FieldTitle:  "Subject",
	filter.FieldAuthor: "From",
}

// Translate implements source.Translator.
func (Translator) Translate(p filter.Predicate) (filter.Predicate, source.Translation) {
	if _, ok := headerNames[p.Field()]; ok {
		switch p.Op() {
		case filter.OpContains:
			if p.Text() != "" {
				return p, source.Superset
			}
		case filter.OpEquals:
			if text := strings.TrimSpace(p.Text()); text != "" {
				return filter.Contains(p.Field(), text), source.Superset
			}
		}
	}
	if p.Field() == filter.FieldPublished {
		switch p.Op() {
		case filter.OpAfter:
			return filter.After(filter.FieldPublished, sinceDay(p.Time())), source.Superset
		case filter.OpBefore:
			return filter.Before(filter.FieldPublished, beforeDay(p.Time())), source.Superset
		}
	}
	return p, source.Untranslatable
}

func (Translator) SupportsOr() bool  { return true }
func (Translator) SupportsNot() bool { return true }

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sinceDay(t time.Time) time.Time  { return utcDay(t).AddDate(0, 0, -1) }
func beforeDay(t time.Time) time.Time { return utcDay(t).AddDate(0, 0, 2) }

// searchCriteria renders the native expression ANDed with the window.
func searchCriteria(native filter.Expr, w source.Window) *imap.SearchCriteria {
	c := imap.NewSearchCriteria()
	if !w.Since.IsZero() {
		c.SentSince = sinceDay(w.Since)
	}
	if !w.Until.IsZero() {
		c.SentBefore = beforeDay(w.Until)
	}
	if native != nil {
		renderInto(c, native)
	}
	return c
}

// renderInto adds e to c. Keys within one criteria are ANDed by IMAP.
func renderInto(c *imap.SearchCriteria, e filter.Expr) {
	switch n := e.(type) {
	case filter.AndExpr:
		renderInto(c, n.Left())
		renderInto(c, n.Right())
	case filter.OrExpr:
		c.Or = append(c.Or, [2]*imap.SearchCriteria{render(n.Left()), render(n.Right())})
	case filter.NotExpr:
		c.Not = append(c.Not, render(n.Inner()))
	case filter.Predicate:
		renderPredicate(c, n)
	}
}

func render(e filter.Expr) *imap.SearchCriteria {
	c := imap.NewSearchCriteria()
	renderInto(c, e)
	return c
}

func renderPredicate(c *imap.SearchCriteria, p filter.Predicate) {
	switch p.Op() {
	case filter.OpContains:
		if c.Header == nil {
			c.Header = make(textproto.MIMEHeader)
		}
		c.Header.Add(headerNames[p.Field()], p.Text())
	case filter.OpAfter:
		if c.SentSince.IsZero() || p.Time().After(c.SentSince) {
			c.SentSince = p.Time()
		}
	case filter.OpBefore:
		if c.SentBefore.IsZero() || p.Time().Before(c.SentBefore) {
			c.SentBefore = p.Time()
		}
	}
}
