package sentry

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/crimson-sun/grouping/internal/connector"
	"github.com/crimson-sun/grouping/internal/connector/httpclient"
	"github.com/crimson-sun/grouping/internal/model"
)

const defaultEndpoint = "https://sentry.io"
const defaultPollInterval = 10 * time.Second

// seenSize bounds the event IDs remembered between polls.
const seenSize = 4096

func init() {
	connector.Register("sentry", func() connector.Connector {
		return &Connector{}
	})
}

// Connector implements the connector.Connector interface for the Sentry
// project events API.
type Connector struct{}

// Response types (unexported).

type apiEvent struct {
	ID          string     `json:"id"`
	EventID     string     `json:"eventID"`
	DateCreated string     `json:"dateCreated"` // RFC 3339
	Platform    string     `json:"platform"`
	Message     string     `json:"message"`
	Title       string     `json:"title"`
	Tags        []apiTag   `json:"tags"`
	Entries     []apiEntry `json:"entries"`
}

type apiTag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type apiEntry struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// entryFields maps API entry types to event payload fields.
var entryFields = map[string]string{
	"exception":  "exception",
	"stacktrace": "stacktrace",
	"threads":    "threads",
	"message":    "logentry",
}

// snakeKeys maps the API's camelCase frame keys to event payload keys.
var snakeKeys = map[string]string{
	"absPath":     "abs_path",
	"inApp":       "in_app",
	"rawFunction": "raw_function",
	"lineNo":      "lineno",
	"colNo":       "colno",
}

type settings struct {
	client *httpclient.Client
	path   string
	org    string
}

func configure(cfg connector.ConnectorConfig) (settings, error) {
	org, project := cfg.Extra["org"], cfg.Extra["project"]
	if org == "" {
		return settings{}, fmt.Errorf("sentry connector: missing required config key \"org\" in Extra")
	}
	if project == "" {
		return settings{}, fmt.Errorf("sentry connector: missing required config key \"project\" in Extra")
	}

	baseURL := cfg.Endpoint
	if baseURL == "" {
		baseURL = defaultEndpoint
	}
	return settings{
		client: httpclient.New(baseURL, cfg.APIKey),
		path:   "/api/0/projects/" + url.PathEscape(org) + "/" + url.PathEscape(project) + "/events/",
		org:    org,
	}, nil
}

// toRawEvent rewrites an API event into an event payload the engine decodes.
func toRawEvent(e apiEvent, org string) (model.RawEvent, error) {
	ts, _ := time.Parse(time.RFC3339Nano, e.DateCreated)

	payload := map[string]any{
		"event_id": e.EventID,
		"platform": e.Platform,
	}
	if e.DateCreated != "" {
		payload["timestamp"] = e.DateCreated
	}

	tags := make([][]string, 0, len(e.Tags))
	for _, t := range e.Tags {
		tags = append(tags, []string{t.Key, t.Value})
		switch t.Key {
		case "level", "logger", "transaction":
			payload[t.Key] = t.Value
		}
	}
	payload["tags"] = tags

	for _, entry := range e.Entries {
		field, ok := entryFields[entry.Type]
		if !ok {
			continue
		}
		var data any
		if err := json.Unmarshal(entry.Data, &data); err != nil {
			return model.RawEvent{}, fmt.Errorf("sentry connector: entry %q of event %s: %w", entry.Type, e.EventID, err)
		}
		payload[field] = snakeCase(data)
	}
	if _, ok := payload["logentry"]; !ok && e.Message != "" {
		payload["message"] = e.Message
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return model.RawEvent{}, fmt.Errorf("sentry connector: %w", err)
	}

	return model.RawEvent{
		Timestamp: ts,
		Source:    "sentry",
		Payload:   body,
		Metadata: map[string]any{
			"id":    e.ID,
			"title": e.Title,
			"org":   org,
		},
	}, nil
}

func snakeCase(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if s, ok := snakeKeys[k]; ok {
				k = s
			}
			out[k] = snakeCase(val)
		}
		return out
	case []any:
		for i := range t {
			t[i] = snakeCase(t[i])
		}
		return t
	}
	return v
}

func (c *Connector) Query(ctx context.Context, cfg connector.ConnectorConfig, params connector.QueryParams) ([]model.RawEvent, error) {
	s, err := configure(cfg)
	if err != nil {
		return nil, err
	}

	var results []model.RawEvent
	cursor := ""

	for {
		q := url.Values{"full": {"true"}}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		if params.Filter != "" {
			q.Set("query", params.Filter)
		}

		var page []apiEvent
		next, err := s.client.GetPage(ctx, s.path, q, &page)
		if err != nil {
			return nil, fmt.Errorf("sentry connector: %w", err)
		}

		// Pages are newest first.
		reachedStart := false
		for _, e := range page {
			raw, err := toRawEvent(e, s.org)
			if err != nil {
				return nil, err
			}

			if !params.Start.IsZero() && raw.Timestamp.Before(params.Start) {
				reachedStart = true
				continue
			}
			if !params.End.IsZero() && !raw.Timestamp.Before(params.End) {
				continue
			}

			results = append(results, raw)
			if params.Limit > 0 && len(results) >= params.Limit {
				return results[:params.Limit], nil
			}
		}

		cursor = next
		if cursor == "" || reachedStart || len(page) == 0 {
			break
		}
	}

	return results, nil
}

func (c *Connector) Stream(ctx context.Context, cfg connector.ConnectorConfig) (<-chan model.RawEvent, error) {
	s, err := configure(cfg)
	if err != nil {
		return nil, err
	}

	pollInterval := defaultPollInterval
	if raw := cfg.Extra["poll_interval"]; raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			pollInterval = d
		}
	}

	seen, err := lru.New[string, struct{}](seenSize)
	if err != nil {
		return nil, fmt.Errorf("sentry connector: %w", err)
	}

	ch := make(chan model.RawEvent, 64)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		poll(ctx, s, seen, ch)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				poll(ctx, s, seen, ch)
			}
		}
	}()

	return ch, nil
}

// poll sends the unseen events of the newest page, oldest first.
func poll(ctx context.Context, s settings, seen *lru.Cache[string, struct{}], ch chan<- model.RawEvent) {
	var page []apiEvent
	if err := s.client.GetJSON(ctx, s.path, url.Values{"full": {"true"}}, &page); err != nil {
		slog.Warn("poll error", "connector", "sentry", "error", err)
		return
	}

	for i := len(page) - 1; i >= 0; i-- {
		e := page[i]
		if seen.Contains(e.EventID) {
			continue
		}
		raw, err := toRawEvent(e, s.org)
		if err != nil {
			slog.Warn("skipping event", "connector", "sentry", "error", err)
			continue
		}
		select {
		case ch <- raw:
			seen.Add(e.EventID, struct{}{})
		case <-ctx.Done():
			return
		}
	}
}
