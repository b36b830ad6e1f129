package automation

import (
	"context"
	"testing"
	"time"

	"github.com/blossomhq/campaign-engine/internal/model"
	"go.uber.org/zap"
)

type fakeAutomations struct {
	byEvent map[string][]model.CampaignAutomation
}

func (f *fakeAutomations) ListEnabledByEvent(_ context.Context, event string) ([]model.CampaignAutomation, error) {
	return f.byEvent[event], nil
}

type fakeMessages struct {
	byCampaign map[int64][]model.CampaignMessage
}

func (f *fakeMessages) ListByCampaign(_ context.Context, campaignID int64) ([]model.CampaignMessage, error) {
	return f.byCampaign[campaignID], nil
}

type appendCall struct {
	campaignID int64
	messageID  int64
	recipients []model.Recipient
	notBefore  time.Time
}

type fakeEnqueuer struct {
	calls []appendCall
}

func (f *fakeEnqueuer) Append(_ context.Context, campaignID, messageID int64, recipients []model.Recipient, notBefore time.Time) (int, error) {
	f.calls = append(f.calls, appendCall{campaignID, messageID, recipients, notBefore})
	return len(recipients), nil
}

func newService() (*Service, *fakeEnqueuer, time.Time) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	automations := &fakeAutomations{byEvent: map[string][]model.CampaignAutomation{
		"lead.created": {
			{ID: 1, CampaignID: 5, TriggerEvent: "lead.created", DelayMinutes: 30, Enabled: true},
		},
		"waitlist.added": {
			{ID: 2, CampaignID: 6, TriggerEvent: "waitlist.added",
				Conditions: `{"program":"toddler"}`, Enabled: true},
		},
	}}
	messages := &fakeMessages{byCampaign: map[int64][]model.CampaignMessage{
		5: {{ID: 50, CampaignID: 5, Channel: model.ChannelEmail}},
		6: {
			{ID: 60, CampaignID: 6, Channel: model.ChannelEmail},
			{ID: 61, CampaignID: 6, Channel: model.ChannelSMS},
		},
	}}
	enq := &fakeEnqueuer{}
	svc := New(nil, automations, messages, enq, zap.NewNop())
	svc.Now = func() time.Time { return now }
	return svc, enq, now
}

func TestHandleFiresMatchingAutomationWithDelay(t *testing.T) {
	svc, enq, now := newService()

	err := svc.Handle(context.Background(), []byte(`{
		"type": "lead.created",
		"organization_id": 1,
		"recipient": {"contact": "new.parent@example.com", "data": {"first_name": "Dana"}}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	if len(enq.calls) != 1 {
		t.Fatalf("append calls = %d, want 1", len(enq.calls))
	}
	call := enq.calls[0]
	if call.campaignID != 5 || call.messageID != 50 {
		t.Errorf("enqueued campaign=%d message=%d", call.campaignID, call.messageID)
	}
	if want := now.Add(30 * time.Minute); !call.notBefore.Equal(want) {
		t.Errorf("not before = %v, want %v", call.notBefore, want)
	}
	if len(call.recipients) != 1 || call.recipients[0].Contact != "new.parent@example.com" {
		t.Errorf("recipients = %+v", call.recipients)
	}
}

func TestHandleEnqueuesEveryCampaignMessage(t *testing.T) {
	svc, enq, _ := newService()

	err := svc.Handle(context.Background(), []byte(`{
		"type": "waitlist.added",
		"recipient": {"contact": "parent@example.com"},
		"payload": {"program": "toddler"}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	if len(enq.calls) != 2 {
		t.Fatalf("append calls = %d, want 2", len(enq.calls))
	}
	if enq.calls[0].messageID != 60 || enq.calls[1].messageID != 61 {
		t.Errorf("message ids = %d, %d", enq.calls[0].messageID, enq.calls[1].messageID)
	}
}

func TestHandleSkipsWhenConditionsDoNotMatch(t *testing.T) {
	svc, enq, _ := newService()

	err := svc.Handle(context.Background(), []byte(`{
		"type": "waitlist.added",
		"recipient": {"contact": "parent@example.com"},
		"payload": {"program": "preschool"}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(enq.calls) != 0 {
		t.Errorf("append calls = %d, want 0", len(enq.calls))
	}
}

func TestHandleIgnoresUnknownEvent(t *testing.T) {
	svc, enq, _ := newService()

	err := svc.Handle(context.Background(), []byte(`{
		"type": "tour.booked",
		"recipient": {"contact": "parent@example.com"}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(enq.calls) != 0 {
		t.Errorf("append calls = %d, want 0", len(enq.calls))
	}
}

func TestHandleSwallowsMalformedEvent(t *testing.T) {
	svc, enq, _ := newService()

	// poison messages must not return an error, or the consumer loop would
	// never commit past them
	if err := svc.Handle(context.Background(), []byte(`{not json`)); err != nil {
		t.Fatalf("malformed event returned error: %v", err)
	}
	if err := svc.Handle(context.Background(), []byte(`{"type":"lead.created"}`)); err != nil {
		t.Fatalf("event without recipient returned error: %v", err)
	}
	if len(enq.calls) != 0 {
		t.Errorf("append calls = %d, want 0", len(enq.calls))
	}
}

func TestConditionsMatch(t *testing.T) {
	cases := []struct {
		name       string
		conditions string
		payload    map[string]string
		want       bool
		wantErr    bool
	}{
		{"empty matches all", "", nil, true, false},
		{"empty object matches all", "{}", map[string]string{"a": "b"}, true, false},
		{"single match", `{"program":"toddler"}`, map[string]string{"program": "toddler"}, true, false},
		{"value mismatch", `{"program":"toddler"}`, map[string]string{"program": "infant"}, false, false},
		{"missing key", `{"program":"toddler"}`, map[string]string{}, false, false},
		{"all keys required", `{"a":"1","b":"2"}`, map[string]string{"a": "1"}, false, false},
		{"bad json", `{"program":`, nil, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := conditionsMatch(tc.conditions, tc.payload)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("match = %v, want %v", got, tc.want)
			}
		})
	}
}
