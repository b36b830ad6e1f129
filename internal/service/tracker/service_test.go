package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/blossomhq/campaign-engine/internal/model"
	"go.uber.org/zap"
)

type fakeTasks struct {
	byProviderID map[string]model.QueueTask
}

func (f *fakeTasks) GetByProviderMessageID(_ context.Context, id string) (*model.QueueTask, error) {
	t, ok := f.byProviderID[id]
	if !ok {
		return nil, errors.New("sql: no rows in result set")
	}
	return &t, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []model.DeliveryEvent
}

func (f *fakeEvents) Insert(_ context.Context, ev model.DeliveryEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEvents) Exists(_ context.Context, taskID string, t model.EventType) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events {
		if ev.TaskID == taskID && ev.Type == t {
			return true, nil
		}
	}
	return false, nil
}

type fakeSuppression struct {
	entries []model.ErrorLogEntry
}

func (f *fakeSuppression) Insert(_ context.Context, e model.ErrorLogEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

func newService() (*Service, *fakeEvents, *fakeSuppression) {
	tasks := &fakeTasks{byProviderID: map[string]model.QueueTask{
		"prov-1": {ID: "task-1", CampaignID: 7, Channel: model.ChannelEmail, Recipient: "parent@example.com"},
	}}
	events := &fakeEvents{}
	supp := &fakeSuppression{}
	return New(tasks, events, supp, zap.NewNop()), events, supp
}

func TestRecordAppendsEvent(t *testing.T) {
	svc, events, _ := newService()
	at := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	if err := svc.Record(context.Background(), Event{
		ProviderMessageID: "prov-1", Type: "delivered", OccurredAt: at,
	}); err != nil {
		t.Fatal(err)
	}

	if len(events.events) != 1 {
		t.Fatalf("events = %d, want 1", len(events.events))
	}
	ev := events.events[0]
	if ev.TaskID != "task-1" || ev.CampaignID != 7 || ev.Type != model.EventDelivered || !ev.OccurredAt.Equal(at) {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestRecordDuplicateStillLogged(t *testing.T) {
	svc, events, _ := newService()
	in := Event{ProviderMessageID: "prov-1", Type: "opened"}

	for i := 0; i < 3; i++ {
		if err := svc.Record(context.Background(), in); err != nil {
			t.Fatal(err)
		}
	}

	// append-only: duplicates land as extra rows, distinct counting happens
	// at aggregation time
	if len(events.events) != 3 {
		t.Fatalf("events = %d, want 3", len(events.events))
	}
}

func TestRecordNormalizesEventType(t *testing.T) {
	svc, events, _ := newService()

	if err := svc.Record(context.Background(), Event{
		ProviderMessageID: "prov-1", Type: "  Clicked ",
	}); err != nil {
		t.Fatal(err)
	}
	if events.events[0].Type != model.EventClicked {
		t.Errorf("type = %s, want clicked", events.events[0].Type)
	}
}

func TestRecordRejectsUnknownType(t *testing.T) {
	svc, events, _ := newService()

	err := svc.Record(context.Background(), Event{ProviderMessageID: "prov-1", Type: "exploded"})
	if !errors.Is(err, ErrUnknownEventType) {
		t.Fatalf("err = %v, want ErrUnknownEventType", err)
	}
	if len(events.events) != 0 {
		t.Error("event written despite invalid type")
	}
}

func TestRecordRejectsUnknownMessage(t *testing.T) {
	svc, _, _ := newService()

	err := svc.Record(context.Background(), Event{ProviderMessageID: "nope", Type: "delivered"})
	if !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("err = %v, want ErrUnknownMessage", err)
	}
}

func TestBounceSuppressesRecipientOnce(t *testing.T) {
	svc, _, supp := newService()
	in := Event{ProviderMessageID: "prov-1", Type: "bounced"}

	if err := svc.Record(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if err := svc.Record(context.Background(), in); err != nil {
		t.Fatal(err)
	}

	if len(supp.entries) != 1 {
		t.Fatalf("suppression entries = %d, want 1", len(supp.entries))
	}
	e := supp.entries[0]
	if e.Kind != model.ErrorPermanent || e.Recipient != "parent@example.com" || e.Channel != model.ChannelEmail {
		t.Errorf("unexpected suppression entry %+v", e)
	}
}

func TestUnsubscribeSuppresses(t *testing.T) {
	svc, _, supp := newService()

	if err := svc.Record(context.Background(), Event{
		ProviderMessageID: "prov-1", Type: "unsubscribed",
	}); err != nil {
		t.Fatal(err)
	}
	if len(supp.entries) != 1 {
		t.Fatalf("suppression entries = %d, want 1", len(supp.entries))
	}
}

func TestDeliveredDoesNotSuppress(t *testing.T) {
	svc, _, supp := newService()

	if err := svc.Record(context.Background(), Event{
		ProviderMessageID: "prov-1", Type: "delivered",
	}); err != nil {
		t.Fatal(err)
	}
	if len(supp.entries) != 0 {
		t.Errorf("suppression entries = %d, want 0", len(supp.entries))
	}
}
