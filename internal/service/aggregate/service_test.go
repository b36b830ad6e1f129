package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/blossomhq/campaign-engine/internal/model"
	"github.com/blossomhq/campaign-engine/internal/repository"
	"go.uber.org/zap"
)

type fakeCampaigns struct {
	campaigns   map[int64]*model.Campaign
	counters    map[int64]repository.CounterTotals
	completedAt map[int64]time.Time
}

func (f *fakeCampaigns) ListByStatus(_ context.Context, statuses ...model.CampaignStatus) ([]model.Campaign, error) {
	var out []model.Campaign
	for _, c := range f.campaigns {
		for _, s := range statuses {
			if c.Status == s {
				out = append(out, *c)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeCampaigns) ListSettledSince(_ context.Context, since time.Time) ([]model.Campaign, error) {
	var out []model.Campaign
	for id, c := range f.campaigns {
		switch c.Status {
		case model.CampaignCompleted:
			if at, ok := f.completedAt[id]; ok && !at.Before(since) {
				out = append(out, *c)
			}
		case model.CampaignCancelled:
			if !c.UpdatedAt.Before(since) {
				out = append(out, *c)
			}
		}
	}
	return out, nil
}

func (f *fakeCampaigns) MarkCompleted(_ context.Context, id int64, at time.Time) (bool, error) {
	c, ok := f.campaigns[id]
	if !ok || (c.Status != model.CampaignActive && c.Status != model.CampaignScheduled) {
		return false, nil
	}
	c.Status = model.CampaignCompleted
	f.completedAt[id] = at
	return true, nil
}

func (f *fakeCampaigns) OverwriteCounters(_ context.Context, id int64, t repository.CounterTotals) error {
	f.counters[id] = t
	return nil
}

type fakeQueueStats struct {
	statusCounts map[int64][]repository.StatusCount
	nonTerminal  map[int64]int64
}

func (f *fakeQueueStats) StatusCounts(_ context.Context, id int64) ([]repository.StatusCount, error) {
	return f.statusCounts[id], nil
}

func (f *fakeQueueStats) CountNonTerminal(_ context.Context, id int64) (int64, error) {
	return f.nonTerminal[id], nil
}

type fakeEventStats struct {
	counts map[int64][]repository.EventCount
}

func (f *fakeEventStats) EventCounts(_ context.Context, id int64) ([]repository.EventCount, error) {
	return f.counts[id], nil
}

type fakeResults struct {
	rows map[string]model.CampaignResult
}

func (f *fakeResults) Upsert(_ context.Context, res model.CampaignResult) error {
	f.rows[res.Channel.String()] = res
	return nil
}

type fakeAudit struct {
	entries []model.AuditLogEntry
}

func (f *fakeAudit) Insert(_ context.Context, e model.AuditLogEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

type env struct {
	campaigns *fakeCampaigns
	queue     *fakeQueueStats
	events    *fakeEventStats
	results   *fakeResults
	audit     *fakeAudit
	svc       *Service
	now       time.Time
}

func newEnv(status model.CampaignStatus) *env {
	e := &env{
		campaigns: &fakeCampaigns{
			campaigns:   map[int64]*model.Campaign{1: {ID: 1, Status: status}},
			counters:    map[int64]repository.CounterTotals{},
			completedAt: map[int64]time.Time{},
		},
		queue:   &fakeQueueStats{statusCounts: map[int64][]repository.StatusCount{}, nonTerminal: map[int64]int64{}},
		events:  &fakeEventStats{counts: map[int64][]repository.EventCount{}},
		results: &fakeResults{rows: map[string]model.CampaignResult{}},
		audit:   &fakeAudit{},
		now:     time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
	}
	e.svc = New(e.campaigns, e.queue, e.events, e.results, e.audit, zap.NewNop())
	e.svc.Now = func() time.Time { return e.now }
	return e
}

func TestAggregateBuildsPerChannelResults(t *testing.T) {
	e := newEnv(model.CampaignActive)
	e.queue.statusCounts[1] = []repository.StatusCount{
		{Channel: model.ChannelEmail, Status: model.TaskSent, Count: 90},
		{Channel: model.ChannelEmail, Status: model.TaskFailed, Count: 10},
		{Channel: model.ChannelSMS, Status: model.TaskSent, Count: 40},
	}
	e.events.counts[1] = []repository.EventCount{
		{Channel: model.ChannelEmail, Type: model.EventDelivered, Count: 85},
		{Channel: model.ChannelEmail, Type: model.EventOpened, Count: 30},
		{Channel: model.ChannelEmail, Type: model.EventClicked, Count: 12},
		{Channel: model.ChannelEmail, Type: model.EventBounced, Count: 5},
		{Channel: model.ChannelSMS, Type: model.EventDelivered, Count: 38},
	}
	e.queue.nonTerminal[1] = 3

	if err := e.svc.Aggregate(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	email := e.results.rows["email"]
	if email.TotalSent != 90 || email.TotalFailed != 10 || email.TotalDelivered != 85 ||
		email.TotalOpened != 30 || email.TotalClicked != 12 || email.BounceCount != 5 {
		t.Errorf("email result %+v", email)
	}
	sms := e.results.rows["sms"]
	if sms.TotalSent != 40 || sms.TotalDelivered != 38 {
		t.Errorf("sms result %+v", sms)
	}

	totals := e.campaigns.counters[1]
	if totals.Sent != 130 || totals.Failed != 10 || totals.Delivered != 123 {
		t.Errorf("campaign counters %+v", totals)
	}
}

func TestAggregateCompletesDrainedCampaign(t *testing.T) {
	e := newEnv(model.CampaignActive)
	e.queue.statusCounts[1] = []repository.StatusCount{
		{Channel: model.ChannelEmail, Status: model.TaskSent, Count: 10},
	}
	e.queue.nonTerminal[1] = 0

	if err := e.svc.Aggregate(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	if got := e.campaigns.campaigns[1].Status; got != model.CampaignCompleted {
		t.Fatalf("status = %s, want completed", got)
	}
	if at := e.campaigns.completedAt[1]; !at.Equal(e.now) {
		t.Errorf("completed at %v, want %v", at, e.now)
	}
	if len(e.audit.entries) != 1 || e.audit.entries[0].Action != "completed" {
		t.Errorf("audit entries %+v", e.audit.entries)
	}
}

func TestAggregateLeavesLiveCampaignActive(t *testing.T) {
	e := newEnv(model.CampaignActive)
	e.queue.nonTerminal[1] = 7

	if err := e.svc.Aggregate(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	if got := e.campaigns.campaigns[1].Status; got != model.CampaignActive {
		t.Fatalf("status = %s, want active", got)
	}
	if len(e.audit.entries) != 0 {
		t.Error("unexpected audit entry")
	}
}

func TestAggregateDoesNotCompletePaused(t *testing.T) {
	e := newEnv(model.CampaignPaused)
	e.queue.nonTerminal[1] = 0

	if err := e.svc.Aggregate(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	// MarkCompleted's status guard refuses paused; no completion, no audit
	if got := e.campaigns.campaigns[1].Status; got != model.CampaignPaused {
		t.Fatalf("status = %s, want paused", got)
	}
	if len(e.audit.entries) != 0 {
		t.Error("unexpected audit entry")
	}
}

func TestPassCoversLiveCampaigns(t *testing.T) {
	e := newEnv(model.CampaignActive)
	e.campaigns.campaigns[2] = &model.Campaign{ID: 2, Status: model.CampaignCompleted}
	e.queue.statusCounts[1] = []repository.StatusCount{
		{Channel: model.ChannelEmail, Status: model.TaskSent, Count: 1},
	}
	e.queue.nonTerminal[1] = 1

	if err := e.svc.Pass(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, ok := e.campaigns.counters[1]; !ok {
		t.Error("active campaign not aggregated")
	}
	if _, ok := e.campaigns.counters[2]; ok {
		t.Error("completed campaign re-aggregated")
	}
}

func TestPassFoldsLateEventsAfterCompletion(t *testing.T) {
	// delivered/opened callbacks usually land after the queue drains; the
	// pass that completed the campaign must not be the last one to see it
	e := newEnv(model.CampaignActive)
	e.queue.statusCounts[1] = []repository.StatusCount{
		{Channel: model.ChannelEmail, Status: model.TaskSent, Count: 10},
	}
	e.queue.nonTerminal[1] = 0

	if err := e.svc.Pass(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := e.campaigns.campaigns[1].Status; got != model.CampaignCompleted {
		t.Fatalf("status = %s, want completed", got)
	}
	if got := e.results.rows["email"].TotalDelivered; got != 0 {
		t.Fatalf("delivered = %d before any callback", got)
	}

	e.events.counts[1] = []repository.EventCount{
		{Channel: model.ChannelEmail, Type: model.EventDelivered, Count: 9},
		{Channel: model.ChannelEmail, Type: model.EventOpened, Count: 4},
	}
	e.now = e.now.Add(10 * time.Minute)

	if err := e.svc.Pass(context.Background()); err != nil {
		t.Fatal(err)
	}

	email := e.results.rows["email"]
	if email.TotalDelivered != 9 || email.TotalOpened != 4 {
		t.Errorf("late events not aggregated: delivered=%d opened=%d, want 9/4",
			email.TotalDelivered, email.TotalOpened)
	}
	totals := e.campaigns.counters[1]
	if totals.Delivered != 9 || totals.Opened != 4 {
		t.Errorf("campaign counters %+v", totals)
	}
	// completion happened once; the settled re-aggregation must not audit again
	if len(e.audit.entries) != 1 {
		t.Errorf("audit entries %+v", e.audit.entries)
	}
}

func TestPassDropsSettledCampaignsOutsideWindow(t *testing.T) {
	e := newEnv(model.CampaignCompleted)
	e.campaigns.completedAt[1] = e.now.Add(-72 * time.Hour)
	e.events.counts[1] = []repository.EventCount{
		{Channel: model.ChannelEmail, Type: model.EventDelivered, Count: 5},
	}

	if err := e.svc.Pass(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := e.campaigns.counters[1]; ok {
		t.Error("campaign outside the settled window was re-aggregated")
	}
}

func TestDuplicateEventsCountedOnce(t *testing.T) {
	// EventCounts already dedupes by task; the aggregator must take the
	// counts as-is rather than summing rows again
	e := newEnv(model.CampaignActive)
	e.queue.statusCounts[1] = []repository.StatusCount{
		{Channel: model.ChannelEmail, Status: model.TaskSent, Count: 2},
	}
	e.events.counts[1] = []repository.EventCount{
		{Channel: model.ChannelEmail, Type: model.EventOpened, Count: 2},
	}
	e.queue.nonTerminal[1] = 1

	if err := e.svc.Aggregate(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if got := e.results.rows["email"].TotalOpened; got != 2 {
		t.Errorf("opened = %d, want 2", got)
	}
}
