package calendar

import (
	"context"
	"fmt"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GoogleSink writes events through the Calendar v3 API using the token
// persisted by Auth.
type GoogleSink struct {
	Auth       *Auth
	CalendarID string
	Timezone   string
}

func NewGoogleSink(auth *Auth, calendarID, timezone string) *GoogleSink {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &GoogleSink{Auth: auth, CalendarID: calendarID, Timezone: timezone}
}

func (s *GoogleSink) CreateOrUpdateEvent(ctx context.Context, in EventInput) (string, error) {
	ts, err := s.Auth.TokenSource(ctx)
	if err != nil {
		return "", classify(err)
	}
	svc, err := gcal.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return "", classify(err)
	}

	body := &gcal.Event{
		Summary:     fmt.Sprintf("📚 %s: %s", in.Subject, in.Task),
		Description: fmt.Sprintf("Предмет: %s\nЗадание: %s", in.Subject, in.Task),
		Start:       &gcal.EventDateTime{DateTime: in.Start.Format("2006-01-02T15:04:05"), TimeZone: s.Timezone},
		End:         &gcal.EventDateTime{DateTime: in.End.Format("2006-01-02T15:04:05"), TimeZone: s.Timezone},
		ColorId:     "9",
		Reminders: &gcal.EventReminders{
			UseDefault:      false,
			ForceSendFields: []string{"UseDefault"},
			Overrides: []*gcal.EventReminder{
				{Method: "popup", Minutes: 60},
				{Method: "popup", Minutes: 1440},
			},
		},
	}

	var out *gcal.Event
	if in.ExistingID != "" {
		out, err = svc.Events.Update(s.CalendarID, in.ExistingID, body).Context(ctx).Do()
	} else {
		out, err = svc.Events.Insert(s.CalendarID, body).Context(ctx).Do()
	}
	if err != nil {
		return "", classify(err)
	}
	return out.Id, nil
}

func (s *GoogleSink) DeleteEvent(ctx context.Context, externalID string) error {
	ts, err := s.Auth.TokenSource(ctx)
	if err != nil {
		return classify(err)
	}
	svc, err := gcal.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return classify(err)
	}
	if err := svc.Events.Delete(s.CalendarID, externalID).Context(ctx).Do(); err != nil {
		return classify(err)
	}
	return nil
}
