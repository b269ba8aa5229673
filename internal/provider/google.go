package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/pulseplan/calsync/internal/errs"
	"github.com/pulseplan/calsync/internal/model"
)

// Google fetches events through the Google Calendar API. Incremental fetches
// use per-calendar sync tokens; a token the API reports as stale (410 Gone)
// falls back to a full-window fetch for that calendar.
type Google struct {
	// Endpoint overrides the API base URL (tests). Empty means production.
	Endpoint string
	// HTTPClient overrides the transport (tests). Nil means default.
	HTTPClient *http.Client
}

// NewGoogle constructs the Google adapter.
func NewGoogle() *Google { return &Google{} }

func (g *Google) service(ctx context.Context, accessToken string) (*calendar.Service, error) {
	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})),
	}
	if g.HTTPClient != nil {
		opts = []option.ClientOption{option.WithHTTPClient(g.HTTPClient)}
	}
	if g.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.Endpoint))
	}
	return calendar.NewService(ctx, opts...)
}

// FetchEvents fetches all calendars of the account. A failure in any calendar
// aborts the whole fetch; partial per-calendar success is deliberately not
// reported.
func (g *Google) FetchEvents(ctx context.Context, creds Credentials, calendars []CalendarRef, window model.SyncWindow) (*FetchResult, error) {
	svc, err := g.service(ctx, creds.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("google: new service: %w", err)
	}

	res := &FetchResult{SyncTokens: make(map[uuid.UUID]string, len(calendars))}
	for _, cal := range calendars {
		if err := g.fetchCalendar(ctx, svc, cal, window, res); err != nil {
			return nil, fmt.Errorf("google: calendar %s: %w", cal.ExternalID, err)
		}
	}
	return res, nil
}

func (g *Google) fetchCalendar(ctx context.Context, svc *calendar.Service, cal CalendarRef, window model.SyncWindow, res *FetchResult) error {
	incremental := cal.SyncToken != ""
	err := g.fetchPages(ctx, svc, cal, window, incremental, res)
	if errors.Is(err, errs.ErrSyncTokenInvalid) {
		// Stale cursor: redo this calendar as a full-window fetch.
		return g.fetchPages(ctx, svc, cal, window, false, res)
	}
	return err
}

func (g *Google) fetchPages(ctx context.Context, svc *calendar.Service, cal CalendarRef, window model.SyncWindow, incremental bool, res *FetchResult) error {
	fetched := make(map[string]struct{})
	pageToken := ""
	for {
		call := svc.Events.List(cal.ExternalID).Context(ctx).ShowDeleted(true).SingleEvents(false)
		if incremental {
			call = call.SyncToken(cal.SyncToken)
		} else {
			call = call.
				TimeMin(window.From.Format(time.RFC3339)).
				TimeMax(window.To.Format(time.RFC3339))
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			var gerr *googleapi.Error
			if incremental && errors.As(err, &gerr) && gerr.Code == http.StatusGone {
				return errs.ErrSyncTokenInvalid
			}
			return err
		}

		for _, ev := range resp.Items {
			if ev.Status == "cancelled" {
				res.DeletedExternalIDs = append(res.DeletedExternalIDs, ev.Id)
				continue
			}
			up, err := googleEvent(cal.ID, ev)
			if err != nil {
				return err
			}
			fetched[ev.Id] = struct{}{}
			res.Events = append(res.Events, up)
		}

		if resp.NextPageToken != "" {
			pageToken = resp.NextPageToken
			continue
		}
		if resp.NextSyncToken != "" {
			res.SyncTokens[cal.ID] = resp.NextSyncToken
		}
		break
	}

	if !incremental {
		res.DeletedExternalIDs = append(res.DeletedExternalIDs, diffDeleted(cal.KnownExternalIDs, fetched)...)
	}
	return nil
}

func googleEvent(calendarID uuid.UUID, ev *calendar.Event) (model.EventUpsert, error) {
	start, allDay, err := googleTime(ev.Start)
	if err != nil {
		return model.EventUpsert{}, fmt.Errorf("event %s start: %w", ev.Id, err)
	}
	end, _, err := googleTime(ev.End)
	if err != nil {
		return model.EventUpsert{}, fmt.Errorf("event %s end: %w", ev.Id, err)
	}
	return model.EventUpsert{
		CalendarID: calendarID,
		ExternalID: ev.Id,
		Title:      ev.Summary,
		StartsAt:   start,
		EndsAt:     end,
		AllDay:     allDay,
		Recurrence: strings.Join(ev.Recurrence, "\n"),
		Status:     ev.Status,
		ETag:       ev.Etag,
	}, nil
}

// googleTime handles both all-day (Date) and timed (DateTime) boundaries.
func googleTime(edt *calendar.EventDateTime) (time.Time, bool, error) {
	if edt == nil {
		return time.Time{}, false, errors.New("missing time")
	}
	if edt.Date != "" {
		t, err := time.ParseInLocation("2006-01-02", edt.Date, time.UTC)
		return t, true, err
	}
	t, err := time.Parse(time.RFC3339, edt.DateTime)
	return t, false, err
}
