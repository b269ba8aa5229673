package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/gofrs/uuid/v5"

	"github.com/pulseplan/calsync/internal/model"
)

// CalDAV fetches events from a CalDAV server with basic auth (the iCloud
// variant). There are no sync tokens: every cycle is a full-window
// calendar-query and deletions are computed by diffing against the local
// mirror.
type CalDAV struct {
	// HTTPClient overrides the transport (tests). Nil means http.DefaultClient.
	HTTPClient *http.Client
}

// NewCalDAV constructs the CalDAV adapter.
func NewCalDAV() *CalDAV { return &CalDAV{} }

// FetchEvents runs a time-range calendar-query per calendar; any calendar
// failure aborts the whole fetch.
func (c *CalDAV) FetchEvents(ctx context.Context, creds Credentials, calendars []CalendarRef, window model.SyncWindow) (*FetchResult, error) {
	client, err := caldav.NewClient(
		webdav.HTTPClientWithBasicAuth(c.HTTPClient, creds.Username, creds.Password),
		creds.ServerURL,
	)
	if err != nil {
		return nil, fmt.Errorf("caldav: new client: %w", err)
	}

	res := &FetchResult{SyncTokens: map[uuid.UUID]string{}}
	for _, cal := range calendars {
		if err := c.fetchCalendar(ctx, client, cal, window, res); err != nil {
			return nil, fmt.Errorf("caldav: calendar %s: %w", cal.ExternalID, err)
		}
	}
	return res, nil
}

func (c *CalDAV) fetchCalendar(ctx context.Context, client *caldav.Client, cal CalendarRef, window model.SyncWindow, res *FetchResult) error {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{Name: ical.CompEvent, AllProps: true}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: window.From,
				End:   window.To,
			}},
		},
	}

	objs, err := client.QueryCalendar(ctx, cal.ExternalID, query)
	if err != nil {
		return err
	}

	fetched := make(map[string]struct{})
	for _, obj := range objs {
		if obj.Data == nil {
			continue
		}
		for _, comp := range obj.Data.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			up, ok, err := icalUpsert(cal.ID, comp, obj.ETag)
			if err != nil {
				return fmt.Errorf("object %s: %w", obj.Path, err)
			}
			if !ok {
				continue
			}
			fetched[up.ExternalID] = struct{}{}
			res.Events = append(res.Events, up)
		}
	}

	res.DeletedExternalIDs = append(res.DeletedExternalIDs, diffDeleted(cal.KnownExternalIDs, fetched)...)
	return nil
}

// icalUpsert maps one VEVENT component. Events without a UID or start time
// cannot be reconciled and are skipped.
func icalUpsert(calendarID uuid.UUID, comp *ical.Component, etag string) (model.EventUpsert, bool, error) {
	uid := propText(comp, ical.PropUID)
	if uid == "" {
		return model.EventUpsert{}, false, nil
	}

	startProp := comp.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return model.EventUpsert{}, false, nil
	}
	start, err := startProp.DateTime(time.UTC)
	if err != nil {
		return model.EventUpsert{}, false, fmt.Errorf("dtstart: %w", err)
	}
	allDay := startProp.ValueType() == ical.ValueDate

	end := start
	if endProp := comp.Props.Get(ical.PropDateTimeEnd); endProp != nil {
		if end, err = endProp.DateTime(time.UTC); err != nil {
			return model.EventUpsert{}, false, fmt.Errorf("dtend: %w", err)
		}
	} else if allDay {
		end = start.AddDate(0, 0, 1)
	}

	status := "confirmed"
	switch propText(comp, ical.PropStatus) {
	case "TENTATIVE":
		status = "tentative"
	case "CANCELLED":
		status = "cancelled"
	}

	return model.EventUpsert{
		CalendarID: calendarID,
		ExternalID: uid,
		Title:      propText(comp, ical.PropSummary),
		StartsAt:   start,
		EndsAt:     end,
		AllDay:     allDay,
		Recurrence: propText(comp, ical.PropRecurrenceRule),
		Status:     status,
		ETag:       etag,
	}, true, nil
}

func propText(comp *ical.Component, name string) string {
	if p := comp.Props.Get(name); p != nil {
		return p.Value
	}
	return ""
}
