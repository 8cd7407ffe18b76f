package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventPayload mirrors the EONET v2.1 events response. Only the fields
// normalization reads are declared; everything else is ignored during
// decoding.
type EventPayload struct {
	Events []APIEvent `json:"events"`
}

// APIEvent is one event entry in the upstream payload.
type APIEvent struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Categories []APICategory `json:"categories"`
	Sources    []APISource   `json:"sources"`
	Geometries []APIGeometry `json:"geometries"`
}

// APICategory carries the numeric category id and display title.
type APICategory struct {
	ID    json.Number `json:"id"`
	Title string      `json:"title"`
}

// APISource is an external reference link for an event.
type APISource struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// APIGeometry is one dated observation point. Coordinates are
// [longitude, latitude].
type APIGeometry struct {
	Date        string    `json:"date"`
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// ParseEventPayload decodes the raw events response body.
func ParseEventPayload(body []byte) (EventPayload, error) {
	var p EventPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return EventPayload{}, fmt.Errorf("parse event payload: %w", err)
	}
	return p, nil
}

// NormalizeEvents flattens a payload into EventRecords, applying the
// category whitelist and expanding one record per geometry. The status
// is the query status the payload was fetched with, copied onto every
// record. Malformed events and geometries are skipped; the remaining
// events still normalize. Zero passing events yield an empty slice,
// not an error.
func NormalizeEvents(p EventPayload, status string) []EventRecord {
	records := make([]EventRecord, 0, len(p.Events))
	for _, ev := range p.Events {
		records = append(records, normalizeEvent(ev, status)...)
	}
	return records
}

// normalizeEvent expands a single API event. Events outside the
// whitelist, or missing a category or id, contribute no records.
func normalizeEvent(ev APIEvent, status string) []EventRecord {
	if len(ev.Categories) == 0 || ev.ID == "" {
		return nil
	}

	title := NormalizeCategoryTitle(ev.Categories[0].Title)
	if !TrackedCategory(title) {
		return nil
	}

	var sourceURL *string
	if len(ev.Sources) > 0 && ev.Sources[0].URL != "" {
		u := ev.Sources[0].URL
		sourceURL = &u
	}

	records := make([]EventRecord, 0, len(ev.Geometries))
	for _, g := range ev.Geometries {
		ts, err := parseGeometryDate(g.Date)
		if err != nil || len(g.Coordinates) < 2 {
			continue
		}
		records = append(records, EventRecord{
			CategoryID:    ev.Categories[0].ID.String(),
			CategoryTitle: title,
			EventID:       ev.ID,
			EventTitle:    ev.Title,
			Timestamp:     ts,
			Longitude:     g.Coordinates[0],
			Latitude:      g.Coordinates[1],
			Status:        status,
			SourceURL:     sourceURL,
		})
	}
	return records
}

// parseGeometryDate accepts RFC 3339 with or without a zone designator;
// both forms appear in upstream data.
func parseGeometryDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse geometry date %q: %w", s, err)
	}
	return t.UTC(), nil
}

// ForecastPayload mirrors the daily forecast response.
type ForecastPayload struct {
	Daily struct {
		Data []map[string]any `json:"data"`
	} `json:"daily"`
}

// ParseForecastPayload decodes the raw forecast response body.
func ParseForecastPayload(body []byte) (ForecastPayload, error) {
	var p ForecastPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return ForecastPayload{}, fmt.Errorf("parse forecast payload: %w", err)
	}
	return p, nil
}

// NormalizeForecast converts daily forecast entries for one location
// into WeatherRecords. Entries dated before the current time are
// dropped (the store only tracks the forward-looking forecast), as are
// entries without a usable epoch timestamp. Of each entry's fields,
// only plain numeric values survive; keys naming times of day, icons,
// summaries, or precipitation measures are excluded.
func NormalizeForecast(p ForecastPayload, lat, lon float64) []WeatherRecord {
	now := clock.Now()
	records := make([]WeatherRecord, 0, len(p.Daily.Data))
	for _, entry := range p.Daily.Data {
		epoch, ok := entry["time"].(float64)
		if !ok {
			continue
		}
		day := time.Unix(int64(epoch), 0).UTC()
		if day.Before(now) {
			continue
		}

		fields := make(map[string]float64)
		for k, v := range entry {
			if excludedForecastField(k) {
				continue
			}
			if n, ok := v.(float64); ok {
				fields[k] = n
			}
		}

		records = append(records, WeatherRecord{
			Longitude: lon,
			Latitude:  lat,
			Date:      day.Truncate(24 * time.Hour),
			Fields:    fields,
		})
	}
	return records
}

// excludedForecastField filters out non-forecast columns: anything
// time-of-day related, icon and summary text, and precipitation fields.
func excludedForecastField(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "time") ||
		strings.Contains(k, "icon") ||
		strings.Contains(k, "summary") ||
		strings.HasPrefix(k, "precip")
}
