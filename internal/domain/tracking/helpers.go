package tracking

import (
	"context"
	"time"

	"github.com/okian/leadpulse/internal/domain/model"
)

// Visit carries the ambient context of the page an event happened on.
type Visit struct {
	VisitorID     string
	SessionID     string
	CompanyDomain string
	PageURL       string
	Referrer      string
	UserAgent     string
}

func (v Visit) request(t model.EventType, path string, payload map[string]any) model.TrackRequest {
	return model.TrackRequest{
		VisitorID:     v.VisitorID,
		SessionID:     v.SessionID,
		CompanyDomain: v.CompanyDomain,
		EventType:     t,
		PagePath:      path,
		PageURL:       v.PageURL,
		Referrer:      v.Referrer,
		UserAgent:     v.UserAgent,
		Payload:       payload,
	}
}

// TrackPageView records a page view.
func (t *Tracker) TrackPageView(ctx context.Context, v Visit, path string) (model.BehaviorEvent, error) {
	return t.Track(ctx, v.request(model.EventPageView, path, nil))
}

// TrackCalculatorUse records a calculator submission with its inputs.
func (t *Tracker) TrackCalculatorUse(ctx context.Context, v Visit, path string, inputs map[string]any) (model.BehaviorEvent, error) {
	return t.Track(ctx, v.request(model.EventCalculatorUse, path, inputs))
}

// TrackFormFill records a submitted form.
func (t *Tracker) TrackFormFill(ctx context.Context, v Visit, path, form string, fields map[string]any) (model.BehaviorEvent, error) {
	payload := map[string]any{"form": form}
	for k, val := range fields {
		payload[k] = val
	}
	return t.Track(ctx, v.request(model.EventFormFill, path, payload))
}

// TrackDownload records a resource download.
func (t *Tracker) TrackDownload(ctx context.Context, v Visit, path, resource string) (model.BehaviorEvent, error) {
	return t.Track(ctx, v.request(model.EventDownload, path, map[string]any{"resource": resource}))
}

// TrackTimeOnSite records how long the visitor stayed on a page.
func (t *Tracker) TrackTimeOnSite(ctx context.Context, v Visit, path string, d time.Duration) (model.BehaviorEvent, error) {
	return t.Track(ctx, v.request(model.EventTimeOnSite, path, map[string]any{"seconds": int(d.Seconds())}))
}
