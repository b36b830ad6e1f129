package worker

import (
	"testing"

	"github.com/blossomhq/campaign-engine/internal/model"
)

func TestRenderSubstitutesVariables(t *testing.T) {
	msg := &model.CampaignMessage{
		Subject: "Hello {{first_name}}",
		Body:    "Hi {{first_name}}, {{child_name}} had a great day at {{center}}.",
	}
	data := `{"first_name":"Dana","child_name":"Ari","center":"Sunny Sprouts"}`

	got, err := Render(msg, data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Subject != "Hello Dana" {
		t.Errorf("subject = %q", got.Subject)
	}
	if want := "Hi Dana, Ari had a great day at Sunny Sprouts."; got.Body != want {
		t.Errorf("body = %q, want %q", got.Body, want)
	}
}

func TestRenderLeavesUnknownPlaceholders(t *testing.T) {
	msg := &model.CampaignMessage{Body: "Hi {{first_name}}, see {{typo_var}}"}

	got, err := Render(msg, `{"first_name":"Dana"}`)
	if err != nil {
		t.Fatal(err)
	}
	if want := "Hi Dana, see {{typo_var}}"; got.Body != want {
		t.Errorf("body = %q, want %q", got.Body, want)
	}
}

func TestRenderEmptyData(t *testing.T) {
	msg := &model.CampaignMessage{Subject: "Plain", Body: "No variables here"}

	got, err := Render(msg, "")
	if err != nil {
		t.Fatal(err)
	}
	if got.Subject != "Plain" || got.Body != "No variables here" {
		t.Errorf("content changed: %+v", got)
	}
}

func TestRenderRejectsMalformedData(t *testing.T) {
	msg := &model.CampaignMessage{Body: "Hi {{first_name}}"}

	if _, err := Render(msg, `{"first_name":`); err == nil {
		t.Fatal("expected error for malformed recipient data")
	}
}
