package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("warden: %s", event.Verdict),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Principal:* %s", event.Principal)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Action:* %s %s", event.ActionType, event.Target)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Taint:* %s", event.TaintLevel)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	severity := "info"
	switch event.Verdict {
	case "deny":
		severity = "critical"
	case "escalate":
		severity = "error"
	case "sanitize":
		severity = "warning"
	}

	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("warden %s: %s %s", event.Verdict, event.ActionType, event.Target),
			"severity": severity,
			"source":   "warden",
			"custom_details": map[string]any{
				"principal":   event.Principal,
				"action_type": event.ActionType,
				"target":      event.Target,
				"taint_level": event.TaintLevel,
				"reason":      event.Reason,
				"request_id":  event.RequestID,
			},
		},
	}
	return json.Marshal(payload)
}
