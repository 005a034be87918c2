package httphandler

import (
	"net/http"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/mergebridge/internal/domain/model"
)

const webhookAck = "Webhook triggered."

// GitHubWebhook receives pull_request events. It always answers 200 so the
// sender never retries; rejected and ignored deliveries are recorded instead.
func (h *Handler) GitHubWebhook(w http.ResponseWriter, r *http.Request) {
	defer writeWebhookAck(w)

	payload, err := gh.ValidatePayload(r, h.webhookSecret)
	if err != nil {
		h.logger.Warn("webhook signature rejected", "delivery", gh.DeliveryID(r), "error", err)
		h.webhooks.Reject(r.Context(), "invalid signature")
		return
	}

	eventType := gh.WebHookType(r)
	if eventType != "pull_request" {
		h.logger.Debug("webhook event ignored", "type", eventType, "delivery", gh.DeliveryID(r))
		return
	}

	parsed, err := gh.ParseWebHook(eventType, payload)
	if err != nil {
		h.logger.Warn("webhook payload invalid", "delivery", gh.DeliveryID(r), "error", err)
		h.webhooks.Reject(r.Context(), "malformed payload")
		return
	}

	event, ok := parsed.(*gh.PullRequestEvent)
	if !ok {
		return
	}

	h.webhooks.Handle(r.Context(), toPullRequestEvent(event))
}

func toPullRequestEvent(e *gh.PullRequestEvent) model.PullRequestEvent {
	pr := e.GetPullRequest()
	ev := model.PullRequestEvent{
		Action:  e.GetAction(),
		Number:  pr.GetNumber(),
		Title:   pr.GetTitle(),
		HeadRef: pr.GetHead().GetRef(),
	}
	if pr.MergedAt != nil {
		mergedAt := pr.MergedAt.Time
		ev.MergedAt = &mergedAt
	}
	return ev
}

func writeWebhookAck(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(webhookAck))
}
