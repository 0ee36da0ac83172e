// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mailbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	gomessage "github.com/emersion/go-message"
	"github.com/knadh/go-pop3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/watchcat/internal/filter"
	"github.com/pdiddy/watchcat/internal/source"
	"github.com/pdiddy/watchcat/pkg/types"
)

type fakeIMAP struct {
	mu         sync.Mutex
	loginErr   error
	messages   map[uint32][]byte
	dates      map[uint32]time.Time
	searched   *imap.SearchCriteria
	selected   string
	readOnly   bool
	loggedOut  bool
	block      chan struct{}
	terminated chan struct{}
}

func (f *fakeIMAP) Login(_, _ string) error { return f.loginErr }

func (f *fakeIMAP) Select(name string, readOnly bool) (*imap.MailboxStatus, error) {
	f.selected, f.readOnly = name, readOnly
	return &imap.MailboxStatus{Name: name}, nil
}

func (f *fakeIMAP) UidSearch(c *imap.SearchCriteria) ([]uint32, error) {
	f.searched = c
	var uids []uint32
	for uid := range f.messages {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
	return uids, nil
}

func (f *fakeIMAP) UidFetch(seq *imap.SeqSet, _ []imap.FetchItem, ch chan *imap.Message) error {
	defer close(ch)
	if f.block != nil {
		select {
		case <-f.block:
		case <-f.terminated:
			return errors.New("connection closed")
		}
	}
	uids := make([]uint32, 0, len(f.messages))
	for uid := range f.messages {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
	for _, uid := range uids {
		if !seq.Contains(uid) {
			continue
		}
		ch <- &imap.Message{
			Uid:      uid,
			Envelope: &imap.Envelope{Date: f.dates[uid]},
			Body: map[*imap.BodySectionName]imap.Literal{
				&imap.BodySectionName{}: bytes.NewBuffer(f.messages[uid]),
			},
		}
	}
	return nil
}

func (f *fakeIMAP) Logout() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = true
	return nil
}

func (f *fakeIMAP) Terminate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.terminated != nil {
		select {
		case <-f.terminated:
		default:
			close(f.terminated)
		}
	}
	return nil
}

func useIMAP(t *testing.T, f *fakeIMAP) {
	t.Helper()
	old := dialIMAP
	dialIMAP = func(context.Context, string, string, bool, time.Duration) (imapClient, error) { return f, nil }
	t.Cleanup(func() { dialIMAP = old })
}

type fakePOP3 struct {
	ids       []pop3.MessageID
	raw       map[int][]byte
	authErr   error
	retrieved []int
	topped    int
	quit      bool
}

func (f *fakePOP3) Auth(_, _ string) error             { return f.authErr }
func (f *fakePOP3) Uidl(int) ([]pop3.MessageID, error) { return f.ids, nil }
func (f *fakePOP3) Quit() error                        { f.quit = true; return nil }

func (f *fakePOP3) Top(id int, _ int) (*gomessage.Entity, error) {
	f.topped++
	return gomessage.Read(bytes.NewReader(f.raw[id]))
}

func (f *fakePOP3) RetrRaw(id int) (*bytes.Buffer, error) {
	f.retrieved = append(f.retrieved, id)
	return bytes.NewBuffer(f.raw[id]), nil
}

func usePOP3(t *testing.T, f *fakePOP3) {
	t.Helper()
	old := dialPOP3
	dialPOP3 = func(context.Context, string, int, bool, time.Duration) (pop3Client, error) { return f, nil }
	t.Cleanup(func() { dialPOP3 = old })
}

func rawMail(id, subject string, date time.Time) []byte {
	return crlf(
		"Message-ID: <"+id+">",
		"From: Alerts <alerts@example.org>",
		"Subject: "+subject,
		"Date: "+date.Format(time.RFC1123Z),
		"",
		"body of "+subject,
	)
}

func imapConfig() types.MailboxConfig {
	return types.MailboxConfig{Protocol: "imap", Host: "imap.example.org", UseSSL: true, Username: "me", Password: "pw"}
}

func TestNewRejectsUnsupportedProtocol(t *testing.T) {
	dialed := false
	oldIMAP, oldPOP3 := dialIMAP, dialPOP3
	dialIMAP = func(context.Context, string, string, bool, time.Duration) (imapClient, error) {
		dialed = true
		return nil, errors.New("unexpected dial")
	}
	dialPOP3 = func(context.Context, string, int, bool, time.Duration) (pop3Client, error) {
		dialed = true
		return nil, errors.New("unexpected dial")
	}
	defer func() { dialIMAP, dialPOP3 = oldIMAP, oldPOP3 }()

	cfg := imapConfig()
	cfg.Protocol = "smtp"
	_, err := New("inbox", cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfiguration)
	assert.Contains(t, err.Error(), "smtp")
	assert.False(t, dialed, "no connection attempted")
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.MailboxConfig)
	}{
		{"no host", func(c *types.MailboxConfig) { c.Host = " " }},
		{"no username", func(c *types.MailboxConfig) { c.Username = "" }},
		{"bad port", func(c *types.MailboxConfig) { c.Port = 70000 }},
		{"negative max", func(c *types.MailboxConfig) { c.MaxMessages = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := imapConfig()
			tt.mutate(&cfg)
			_, err := New("inbox", cfg)
			assert.ErrorIs(t, err, types.ErrConfiguration)
		})
	}
}

func TestNewDefaults(t *testing.T) {
	tests := []struct {
		protocol string
		ssl      bool
		port     int
	}{
		{"imap", true, 993},
		{"imap", false, 143},
		{"pop3", true, 995},
		{"POP3", false, 110},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v", tt.protocol, tt.ssl), func(t *testing.T) {
			a, err := New("inbox", types.MailboxConfig{Protocol: tt.protocol, Host: "h", UseSSL: tt.ssl, Username: "u"})
			require.NoError(t, err)
			assert.Equal(t, tt.port, a.Port())
			assert.Equal(t, "INBOX", a.Folder())
			assert.Equal(t, DefaultMaxMessages, a.max)
		})
	}

	a, err := New("inbox", types.MailboxConfig{Protocol: "imap", Host: "h", Port: 1143, Username: "u", Folder: "Alerts"})
	require.NoError(t, err)
	assert.Equal(t, 1143, a.Port())
	assert.Equal(t, "Alerts", a.Folder())
	assert.Equal(t, types.ProtocolIMAP, a.Protocol())
}

func TestIMAPPull(t *testing.T) {
	d1 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	f := &fakeIMAP{
		messages: map[uint32][]byte{
			7: rawMail("a@x", "Invoice March", d1),
			9: rawMail("b@x", "Invoice April", d2),
		},
		dates: map[uint32]time.Time{7: d1, 9: d2},
	}
	useIMAP(t, f)

	a, err := New("inbox", imapConfig())
	require.NoError(t, err)
	fetched := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fetched }

	ctx := context.Background()
	conn, err := a.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, "INBOX", f.selected)
	assert.True(t, f.readOnly)

	expr := filter.And(filter.Contains(filter.FieldTitle, "invoice"), filter.Words(filter.FieldBody, "march"))
	plan := a.Compile(expr)
	assert.Equal(t, filter.Expr(filter.Contains(filter.FieldTitle, "invoice")), plan.Native)
	assert.Equal(t, expr, plan.Residual, "header match is re-checked in memory")

	w := source.Window{Since: time.Date(2024, 2, 20, 15, 0, 0, 0, time.UTC)}
	items, err := a.Fetch(ctx, conn, plan, w)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "7", items[0].ID, "ascending uid order")
	assert.Equal(t, "9", items[1].ID)
	assert.Equal(t, d1, items[0].Origin)

	assert.Equal(t, []string{"invoice"}, f.searched.Header["Subject"])
	assert.Equal(t, time.Date(2024, 2, 19, 0, 0, 0, 0, time.UTC), f.searched.SentSince)

	rec, err := a.Normalize(items[0])
	require.NoError(t, err)
	m := rec.(*types.MailRecord)
	assert.Equal(t, "a@x", m.ID())
	assert.Equal(t, "7", m.UID)
	assert.Equal(t, "Invoice March", m.Subject)
	assert.Equal(t, "Alerts <alerts@example.org>", m.Sender)
	assert.True(t, d1.Equal(m.Received))
	assert.Equal(t, fetched, m.Pulled)
	assert.Equal(t, "mailbox://imap.example.org/INBOX/7", m.Link)
	assert.True(t, plan.Keep(m))

	require.NoError(t, conn.Close())
	assert.True(t, f.loggedOut)
}

func TestIMAPLoginFailure(t *testing.T) {
	f := &fakeIMAP{loginErr: errors.New("NO [AUTHENTICATIONFAILED]")}
	useIMAP(t, f)

	a, err := New("inbox", imapConfig())
	require.NoError(t, err)
	_, err = a.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTHENTICATIONFAILED")
	assert.True(t, f.loggedOut, "connection released")
}

func TestIMAPFetchCancelled(t *testing.T) {
	f := &fakeIMAP{
		messages:   map[uint32][]byte{1: rawMail("a@x", "s", time.Now())},
		block:      make(chan struct{}),
		terminated: make(chan struct{}),
	}
	useIMAP(t, f)

	a, err := New("inbox", imapConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	conn, err := a.Connect(ctx)
	require.NoError(t, err)
	defer conn.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err = a.Fetch(ctx, conn, a.Compile(nil), source.Window{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPOP3Fetch(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	f := &fakePOP3{raw: map[int][]byte{}}
	for i := 1; i <= 5; i++ {
		uid := fmt.Sprintf("uid-%d", i)
		if i == 5 {
			uid = ""
		}
		f.ids = append(f.ids, pop3.MessageID{ID: i, UID: uid})
		f.raw[i] = rawMail(fmt.Sprintf("m%d@x", i), fmt.Sprintf("msg %d", i), base.AddDate(0, 0, i))
	}
	// Servers may list out of order.
	f.ids[0], f.ids[4] = f.ids[4], f.ids[0]
	usePOP3(t, f)

	cfg := types.MailboxConfig{Protocol: "pop3", Host: "pop.example.org", Username: "me", MaxMessages: 3}
	a, err := New("pop", cfg)
	require.NoError(t, err)

	plan := a.Compile(filter.Contains(filter.FieldTitle, "msg"))
	assert.True(t, plan.FullyResidual(), "pop3 has no search")

	conn, err := a.Connect(context.Background())
	require.NoError(t, err)
	items, err := a.Fetch(context.Background(), conn, plan, source.Window{Since: base.AddDate(0, 0, 4)})
	require.NoError(t, err)

	assert.Equal(t, 5, f.topped, "headers read for every listed message")
	assert.Equal(t, []int{4, 5}, f.retrieved, "messages before the window are not retrieved")
	require.Len(t, items, 2)
	assert.Equal(t, "uid-4", items[0].ID)
	assert.Equal(t, "5", items[1].ID, "falls back to the message number")

	rec, err := a.Normalize(items[1])
	require.NoError(t, err)
	assert.Equal(t, "m5@x", rec.ID())
	assert.Equal(t, "mailbox://pop.example.org/INBOX/5", rec.(*types.MailRecord).Link)

	require.NoError(t, conn.Close())
	assert.True(t, f.quit)
}

func TestPOP3DefersOverflowToNextPull(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	f := &fakePOP3{raw: map[int][]byte{}}
	for i := 1; i <= 5; i++ {
		f.ids = append(f.ids, pop3.MessageID{ID: i, UID: fmt.Sprintf("uid-%d", i)})
		f.raw[i] = rawMail(fmt.Sprintf("m%d@x", i), fmt.Sprintf("msg %d", i), base.AddDate(0, 0, i))
	}
	// An undated message sorts after the dated ones.
	f.ids = append(f.ids, pop3.MessageID{ID: 6, UID: "uid-6"})
	f.raw[6] = crlf("Message-ID: <m6@x>", "Subject: undated", "", "body")
	usePOP3(t, f)

	a, err := New("pop", types.MailboxConfig{Protocol: "pop3", Host: "pop.example.org", Username: "me", MaxMessages: 3})
	require.NoError(t, err)
	plan := a.Compile(nil)

	var got []string
	since := base
	for pull := 0; pull < 3; pull++ {
		conn, err := a.Connect(context.Background())
		require.NoError(t, err)
		items, err := a.Fetch(context.Background(), conn, plan, source.Window{Since: since})
		require.NoError(t, err)
		require.NoError(t, conn.Close())
		for _, it := range items {
			if !slices.Contains(got, it.ID) {
				got = append(got, it.ID)
			}
			if it.Origin.After(since) {
				since = it.Origin
			}
		}
	}
	assert.Equal(t, []string{"uid-1", "uid-2", "uid-3", "uid-4", "uid-5", "uid-6"}, got,
		"every message is delivered once the backlog drains, oldest first")
}

func TestPOP3AuthFailure(t *testing.T) {
	f := &fakePOP3{authErr: errors.New("-ERR invalid password")}
	usePOP3(t, f)

	a, err := New("pop", types.MailboxConfig{Protocol: "pop3", Host: "h", Username: "u"})
	require.NoError(t, err)
	_, err = a.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, f.quit)
}

func TestNormalizeWithoutMessageID(t *testing.T) {
	a, err := New("inbox", imapConfig())
	require.NoError(t, err)

	rec, err := a.Normalize(source.RawItem{ID: "42", Data: crlf("Subject: hi", "", "x")})
	require.NoError(t, err)
	assert.Equal(t, "42", rec.ID())
	assert.False(t, rec.PulledAt().IsZero())

	rec, err = a.Normalize(source.RawItem{ID: "43", Data: multipartMessage})
	require.NoError(t, err)
	files := rec.Files()
	require.Len(t, files, 2)
	assert.Equal(t, "mailbox://imap.example.org/INBOX/43#part=2", files[0].Ref)

	_, err = a.Normalize(source.RawItem{ID: "44", Data: nil})
	assert.Error(t, err)
}

func TestFetchRejectsForeignConn(t *testing.T) {
	a, err := New("inbox", imapConfig())
	require.NoError(t, err)
	_, err = a.Fetch(context.Background(), source.NopConn{}, a.Compile(nil), source.Window{})
	assert.Error(t, err)
}

func TestCompileIMAP(t *testing.T) {
	a, err := New("inbox", imapConfig())
	require.NoError(t, err)
	at := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		expr     filter.Expr
		native   bool
		residual bool
	}{
		{"contains subject is relaxed", filter.Contains(filter.FieldTitle, "x"), true, true},
		{"equals sender is relaxed", filter.Equals(filter.FieldAuthor, "a@x"), true, true},
		{"blank equals stays in memory", filter.Equals(filter.FieldTitle, "  "), false, true},
		{"equals id stays in memory", filter.Equals(filter.FieldID, "m1@x"), false, true},
		{"body stays in memory", filter.Contains(filter.FieldBody, "x"), false, true},
		{"attachment stays in memory", filter.HasAttachment(true), false, true},
		{"date is relaxed", filter.After(filter.FieldPublished, at), true, true},
		{"not of relaxed stays in memory", filter.Not(filter.Contains(filter.FieldTitle, "x")), false, true},
		{"or of relaxed", filter.Or(filter.Contains(filter.FieldTitle, "x"), filter.Contains(filter.FieldAuthor, "y")), true, true},
		{"paper-only filter", filter.Contains(filter.FieldTitle, "x").For(types.KindPaper), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := a.Compile(tt.expr)
			assert.Equal(t, tt.native, plan.Native != nil)
			assert.Equal(t, tt.residual, plan.Residual != nil)
		})
	}
}

func TestTranslateEqualsTrimsValue(t *testing.T) {
	rec := &types.MailRecord{Identifier: "m@x", Subject: "weekly digest", Sender: "Digest <digest@example.org>"}
	tests := []struct {
		name  string
		pred  filter.Predicate
		value string
	}{
		{"trailing space", filter.Equals(filter.FieldTitle, "Weekly Digest "), "Weekly Digest"},
		{"surrounding space", filter.Equals(filter.FieldTitle, "  weekly digest\t"), "weekly digest"},
		{"sender", filter.Equals(filter.FieldAuthor, " Digest <digest@example.org> "), "Digest <digest@example.org>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			native, tr := Translator{}.Translate(tt.pred)
			assert.Equal(t, source.Superset, tr)
			assert.Equal(t, filter.OpContains, native.Op())
			assert.Equal(t, tt.value, native.Text())
			require.True(t, tt.pred.Matches(rec))
			assert.True(t, native.Matches(rec), "server query must not be narrower than the filter")
		})
	}
}

func TestRawFromIMAPKeepsUnreadableMessages(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	a, err := New("inbox", imapConfig())
	require.NoError(t, err)

	item, err := rawFromIMAP(&imap.Message{SeqNum: 4, Envelope: &imap.Envelope{Date: at}}, at)
	require.Error(t, err)
	assert.Equal(t, "seq-4", item.ID)
	assert.Equal(t, at, item.Origin, "origin kept so the cursor is held")
	assert.Nil(t, item.Data)

	_, err = a.Normalize(item)
	assert.Error(t, err, "normalization skips it and the pull counts it")
}

func TestSearchCriteria(t *testing.T) {
	at := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	tr := Translator{}
	after, _ := tr.Translate(filter.After(filter.FieldPublished, at))
	before, _ := tr.Translate(filter.Before(filter.FieldPublished, at))

	native := filter.AllOf(
		filter.Or(filter.Contains(filter.FieldTitle, "a"), filter.Contains(filter.FieldAuthor, "b")),
		filter.Not(filter.Contains(filter.FieldTitle, "spam")),
		after,
		before,
	)
	c := searchCriteria(native, source.Window{Since: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)})

	require.Len(t, c.Or, 1)
	assert.Equal(t, []string{"a"}, c.Or[0][0].Header["Subject"])
	assert.Equal(t, []string{"b"}, c.Or[0][1].Header["From"])
	require.Len(t, c.Not, 1)
	assert.Equal(t, []string{"spam"}, c.Not[0].Header["Subject"])
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), c.SentSince, "later of window and filter bound")
	assert.Equal(t, time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), c.SentBefore)
}
