package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/uuid/v5"
	"golang.org/x/oauth2"

	"github.com/pulseplan/calsync/internal/errs"
	"github.com/pulseplan/calsync/internal/model"
)

const msGraphBaseURL = "https://graph.microsoft.com/v1.0"

// Outlook fetches events through the Microsoft Graph calendarView delta API.
// Graph delta links act as sync tokens; removed events arrive as @removed
// entries in the delta stream.
type Outlook struct {
	// BaseURL overrides the Graph endpoint (tests). Empty means production.
	BaseURL string
	// HTTPClient overrides the transport (tests). Nil builds an oauth2 client
	// from the access token.
	HTTPClient *http.Client
}

// NewOutlook constructs the Outlook adapter.
func NewOutlook() *Outlook { return &Outlook{} }

func (o *Outlook) client(ctx context.Context, accessToken string) *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
}

func (o *Outlook) base() string {
	if o.BaseURL != "" {
		return o.BaseURL
	}
	return msGraphBaseURL
}

// graphEvent is the subset of a Graph event resource the mirror needs.
type graphEvent struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Start   struct {
		DateTime string `json:"dateTime"`
		TimeZone string `json:"timeZone"`
	} `json:"start"`
	End struct {
		DateTime string `json:"dateTime"`
		TimeZone string `json:"timeZone"`
	} `json:"end"`
	IsAllDay    bool            `json:"isAllDay"`
	IsCancelled bool            `json:"isCancelled"`
	ShowAs      string          `json:"showAs"`
	ChangeKey   string          `json:"changeKey"`
	Recurrence  json.RawMessage `json:"recurrence"`
	Removed     *struct {
		Reason string `json:"reason"`
	} `json:"@removed"`
}

type graphDeltaPage struct {
	Value     []graphEvent `json:"value"`
	NextLink  string       `json:"@odata.nextLink"`
	DeltaLink string       `json:"@odata.deltaLink"`
}

// FetchEvents fetches all calendars of the account; any calendar failure
// aborts the whole fetch.
func (o *Outlook) FetchEvents(ctx context.Context, creds Credentials, calendars []CalendarRef, window model.SyncWindow) (*FetchResult, error) {
	client := o.client(ctx, creds.AccessToken)

	res := &FetchResult{SyncTokens: make(map[uuid.UUID]string, len(calendars))}
	for _, cal := range calendars {
		if err := o.fetchCalendar(ctx, client, cal, window, res); err != nil {
			return nil, fmt.Errorf("outlook: calendar %s: %w", cal.ExternalID, err)
		}
	}
	return res, nil
}

func (o *Outlook) fetchCalendar(ctx context.Context, client *http.Client, cal CalendarRef, window model.SyncWindow, res *FetchResult) error {
	incremental := cal.SyncToken != ""
	err := o.fetchDelta(ctx, client, cal, window, incremental, res)
	if errors.Is(err, errs.ErrSyncTokenInvalid) {
		return o.fetchDelta(ctx, client, cal, window, false, res)
	}
	return err
}

func (o *Outlook) fetchDelta(ctx context.Context, client *http.Client, cal CalendarRef, window model.SyncWindow, incremental bool, res *FetchResult) error {
	next := cal.SyncToken
	if !incremental {
		q := url.Values{}
		q.Set("startDateTime", window.From.Format(time.RFC3339))
		q.Set("endDateTime", window.To.Format(time.RFC3339))
		next = fmt.Sprintf("%s/me/calendars/%s/calendarView/delta?%s",
			o.base(), url.PathEscape(cal.ExternalID), q.Encode())
	}

	fetched := make(map[string]struct{})
	for next != "" {
		page, err := o.getPage(ctx, client, next, incremental)
		if err != nil {
			return err
		}
		for _, ev := range page.Value {
			if ev.Removed != nil || ev.IsCancelled {
				res.DeletedExternalIDs = append(res.DeletedExternalIDs, ev.ID)
				continue
			}
			up, err := graphUpsert(cal.ID, ev)
			if err != nil {
				return err
			}
			fetched[ev.ID] = struct{}{}
			res.Events = append(res.Events, up)
		}
		if page.NextLink != "" {
			next = page.NextLink
			continue
		}
		if page.DeltaLink != "" {
			res.SyncTokens[cal.ID] = page.DeltaLink
		}
		next = ""
	}

	if !incremental {
		res.DeletedExternalIDs = append(res.DeletedExternalIDs, diffDeleted(cal.KnownExternalIDs, fetched)...)
	}
	return nil
}

func (o *Outlook) getPage(ctx context.Context, client *http.Client, pageURL string, incremental bool) (*graphDeltaPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case incremental && resp.StatusCode == http.StatusGone:
		return nil, errs.ErrSyncTokenInvalid
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("graph status %d: %s", resp.StatusCode, body)
	}

	var page graphDeltaPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode delta page: %w", err)
	}
	return &page, nil
}

func graphUpsert(calendarID uuid.UUID, ev graphEvent) (model.EventUpsert, error) {
	start, err := graphTime(ev.Start.DateTime)
	if err != nil {
		return model.EventUpsert{}, fmt.Errorf("event %s start: %w", ev.ID, err)
	}
	end, err := graphTime(ev.End.DateTime)
	if err != nil {
		return model.EventUpsert{}, fmt.Errorf("event %s end: %w", ev.ID, err)
	}
	status := "confirmed"
	if ev.ShowAs == "tentative" {
		status = "tentative"
	}
	recurrence := ""
	if len(ev.Recurrence) > 0 && string(ev.Recurrence) != "null" {
		recurrence = string(ev.Recurrence)
	}
	return model.EventUpsert{
		CalendarID: calendarID,
		ExternalID: ev.ID,
		Title:      ev.Subject,
		StartsAt:   start,
		EndsAt:     end,
		AllDay:     ev.IsAllDay,
		Recurrence: recurrence,
		Status:     status,
		ETag:       ev.ChangeKey,
	}, nil
}

// graphTime parses Graph's fractional-second local format; the Prefer header
// pins the response timezone to UTC.
func graphTime(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02T15:04:05.9999999", s, time.UTC)
}
