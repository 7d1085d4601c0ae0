package matching

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/domain/notification"
	"github.com/bloodlink/bloodlink/internal/domain/request"
	"github.com/bloodlink/bloodlink/internal/platform/events"
	"github.com/bloodlink/bloodlink/internal/platform/metrics"
	tmpl "github.com/bloodlink/bloodlink/internal/platform/notification"
)

// NotificationStore persists notification records.
type NotificationStore interface {
	Create(ctx context.Context, n *notification.Notification) error
}

// MatchFoundPayload is the body of a match.found event.
type MatchFoundPayload struct {
	RequestID      uuid.UUID `json:"request_id"`
	DonorID        uuid.UUID `json:"donor_id"`
	NotificationID uuid.UUID `json:"notification_id"`
	BloodGroup     string    `json:"blood_group"`
	City           string    `json:"city"`
	Score          int       `json:"score"`
}

type Notifier struct {
	store     NotificationStore
	templates *tmpl.TemplateEngine
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func NewNotifier(store NotificationStore, templates *tmpl.TemplateEngine, publisher events.Publisher, m *metrics.Metrics, logger zerolog.Logger) *Notifier {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Notifier{store: store, templates: templates, publisher: publisher, metrics: m, logger: logger}
}

// Notify stores a MATCH_FOUND notification for each of the first
// MaxNotified candidates and returns how many were stored. A failure for
// one recipient is logged and the rest are still notified.
func (n *Notifier) Notify(ctx context.Context, req *request.BloodRequest, candidates []Candidate) int {
	if len(candidates) > MaxNotified {
		candidates = candidates[:MaxNotified]
	}
	rendered, err := n.templates.Render(tmpl.TemplateMatchFound, map[string]string{
		"city":        req.City,
		"blood_group": string(req.BloodGroup),
		"request_id":  req.ID.String(),
	})
	if err != nil {
		n.logger.Error().Err(err).Str("request_id", req.ID.String()).Msg("render match notification")
		return 0
	}

	sent := 0
	for _, c := range candidates {
		link := rendered.Link
		rec := &notification.Notification{
			UserID:  c.DonorID,
			Type:    rendered.Type,
			Title:   rendered.Title,
			Message: rendered.Body,
			Link:    &link,
		}
		if err := n.store.Create(ctx, rec); err != nil {
			n.metrics.IncNotification("failed")
			n.logger.Error().Err(err).
				Str("request_id", req.ID.String()).
				Str("donor_id", c.DonorID.String()).
				Msg("store match notification")
			continue
		}
		n.metrics.IncNotification("stored")
		sent++

		err := n.publisher.Publish(ctx, events.Event{
			Type: events.TypeMatchFound,
			Key:  req.ID.String(),
			Payload: MatchFoundPayload{
				RequestID:      req.ID,
				DonorID:        c.DonorID,
				NotificationID: rec.ID,
				BloodGroup:     string(req.BloodGroup),
				City:           req.City,
				Score:          c.Score,
			},
		})
		if err != nil {
			n.metrics.IncEventPublished("failed")
			n.logger.Warn().Err(err).
				Str("request_id", req.ID.String()).
				Str("donor_id", c.DonorID.String()).
				Msg("publish match event")
			continue
		}
		n.metrics.IncEventPublished("published")
	}
	return sent
}
