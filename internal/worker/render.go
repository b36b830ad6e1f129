package worker

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/blossomhq/campaign-engine/internal/adapter"
	"github.com/blossomhq/campaign-engine/internal/model"
)

// Render personalizes message content with the task's recipient variables.
// Placeholders use {{name}} syntax; unknown placeholders are left as-is so a
// typo in a template surfaces in the delivered content instead of failing the
// whole campaign.
func Render(msg *model.CampaignMessage, recipientData string) (adapter.Content, error) {
	vars := map[string]string{}
	if strings.TrimSpace(recipientData) != "" {
		if err := json.Unmarshal([]byte(recipientData), &vars); err != nil {
			return adapter.Content{}, fmt.Errorf("recipient data: %w", err)
		}
	}

	return adapter.Content{
		Subject: substitute(msg.Subject, vars),
		Body:    substitute(msg.Body, vars),
	}, nil
}

func substitute(tmpl string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
