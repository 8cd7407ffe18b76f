package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrNoPayload indicates a fetch exhausted all attempts without
// obtaining a payload. Callers treat it as "no data this cycle".
var ErrNoPayload = errors.New("no payload after exhausting fetch attempts")

// Event status values accepted by the upstream API.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Tracked hazard categories, in normalized (underscore) form.
const (
	CategoryWildfires    = "Wildfires"
	CategorySevereStorms = "Severe_Storms"
	CategorySeaLakeIce   = "Sea_and_Lake_Ice"
)

// trackedCategories is the fixed whitelist applied during normalization.
var trackedCategories = map[string]struct{}{
	CategoryWildfires:    {},
	CategorySevereStorms: {},
	CategorySeaLakeIce:   {},
}

// NormalizeCategoryTitle converts an upstream category title to its
// underscore form, e.g. "Severe Storms" -> "Severe_Storms".
func NormalizeCategoryTitle(title string) string {
	return strings.ReplaceAll(title, " ", "_")
}

// TrackedCategory reports whether the normalized category title is on
// the whitelist.
func TrackedCategory(title string) bool {
	_, ok := trackedCategories[title]
	return ok
}

// EventRecord is one observed geometry-point of a hazard event. The
// full field set is the natural identity key.
type EventRecord struct {
	CategoryID    string    `db:"category_id" json:"category_id"`
	CategoryTitle string    `db:"category_title" json:"category_title"`
	EventID       string    `db:"event_id" json:"event_id"`
	EventTitle    string    `db:"event_title" json:"event_title"`
	Timestamp     time.Time `db:"observed_at" json:"observed_at"`
	Longitude     float64   `db:"longitude" json:"longitude"`
	Latitude      float64   `db:"latitude" json:"latitude"`
	Status        string    `db:"status" json:"status"`
	SourceURL     *string   `db:"source_url" json:"source_url,omitempty"`
}

// WeatherRecord is one daily forecast for a monitored location.
// Identity key is (Longitude, Latitude, Date).
type WeatherRecord struct {
	Longitude float64            `db:"longitude" json:"longitude"`
	Latitude  float64            `db:"latitude" json:"latitude"`
	Date      time.Time          `db:"forecast_date" json:"forecast_date"`
	Fields    map[string]float64 `db:"fields" json:"fields"`
}

// Location is a monitored coordinate pair with a short lookup name,
// e.g. {"la", 34, -118}.
type Location struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// EventQuery selects the event window for one fetch. A zero Timeout
// uses the fetcher's configured per-attempt timeout; the history
// backfill passes a longer one.
type EventQuery struct {
	Limit   int
	Days    int
	Status  string
	Timeout time.Duration
}

// UpsertResult is the accounting a store upsert reports back: how many
// incoming rows replaced an identical stored row versus how many were
// inserted as new facts. Inserted carries the new rows themselves so
// downstream publishers can forward only previously unseen records.
type UpsertResult struct {
	Matched  int
	Inserted []EventRecord
}
