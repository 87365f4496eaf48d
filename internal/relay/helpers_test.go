package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/relaychat/internal/config"
	"github.com/soyeahso/relaychat/internal/domain"
	"github.com/soyeahso/relaychat/internal/journal"
	"github.com/soyeahso/relaychat/internal/logging"
	"github.com/soyeahso/relaychat/internal/session"
	"github.com/soyeahso/relaychat/internal/whatsapp"
)

const ownerNumber = "15550001111"

var errWindow = &whatsapp.APIError{Status: http.StatusBadRequest, Code: 131047, Message: "Re-engagement message"}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type sendCall struct {
	To      string
	Content domain.Content
}

type sendResult struct {
	id  string
	err error
}

// fakeMessenger replays scripted results, then succeeds with generated ids.
type fakeMessenger struct {
	mu        sync.Mutex
	calls     []sendCall
	script    []sendResult
	seq       int
	mediaURLs map[string]string

	// onSend runs outside the lock while a send is in flight.
	onSend func(sendCall)
}

func (f *fakeMessenger) Send(_ context.Context, to string, content domain.Content) (string, error) {
	call := sendCall{To: to, Content: content}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	var r sendResult
	if len(f.script) > 0 {
		r = f.script[0]
		f.script = f.script[1:]
	} else {
		f.seq++
		r.id = fmt.Sprintf("wamid.auto%d", f.seq)
	}
	hook := f.onSend
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	return r.id, r.err
}

func (f *fakeMessenger) MediaURL(_ context.Context, mediaID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if url, ok := f.mediaURLs[mediaID]; ok {
		return url, nil
	}
	return "", errors.New("media not found")
}

func (f *fakeMessenger) Calls() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendCall(nil), f.calls...)
}

type recordingPublisher struct {
	mu      sync.Mutex
	updates []domain.SessionUpdate
}

func (p *recordingPublisher) Publish(_ context.Context, u domain.SessionUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
	return nil
}

func (p *recordingPublisher) For(sessionID string) []domain.SessionUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.SessionUpdate
	for _, u := range p.updates {
		if u.SessionID == sessionID {
			out = append(out, u)
		}
	}
	return out
}

type memJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
	pruned  []time.Time
}

func (j *memJournal) Append(_ context.Context, e journal.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func (j *memJournal) Prune(_ context.Context, before time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pruned = append(j.pruned, before)
	return 0, nil
}

func (j *memJournal) Kinds() []journal.Kind {
	j.mu.Lock()
	defer j.mu.Unlock()
	var kinds []journal.Kind
	for _, e := range j.entries {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

type fixture struct {
	clock     *testClock
	store     *session.Store
	messenger *fakeMessenger
	publisher *recordingPublisher
	journal   *memJournal
	deps      Deps
	provider  config.ProviderConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:     newTestClock(),
		messenger: &fakeMessenger{mediaURLs: map[string]string{}},
		publisher: &recordingPublisher{},
		journal:   &memJournal{},
	}
	f.store = session.NewStore(session.WithClock(f.clock.Now))
	f.deps = Deps{
		Store:     f.store,
		Messenger: f.messenger,
		Publisher: f.publisher,
		Journal:   f.journal,
		Log:       logging.New(nil, "silent"),
		Now:       f.clock.Now,
	}
	f.provider = config.Defaults().Provider
	f.provider.OwnerNumber = ownerNumber
	return f
}

func textReply(id, inReplyTo, body string) domain.InboundEvent {
	return domain.InboundEvent{Kind: domain.InboundReply, Reply: &domain.ReplyEvent{
		ProviderMessageID: id,
		InReplyTo:         inReplyTo,
		From:              ownerNumber,
		Content:           domain.TextContent(body),
	}}
}

func statusEvent(id string, status domain.DeliveryStatus) domain.InboundEvent {
	return domain.InboundEvent{Kind: domain.InboundStatus, Status: &domain.StatusEvent{
		ProviderMessageID: id,
		Status:            status,
	}}
}
