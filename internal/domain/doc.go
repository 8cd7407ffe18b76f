// Package domain models natural-hazard event and weather forecast data.
//
// # Data Sources
//
// Hazard events originate from the NASA EONET v2.1 events API
// (https://eonet.sci.gsfc.nasa.gov/api/v2.1/events). Each API event
// carries one or more categories, an optional list of source links,
// and a list of geometries; every geometry is an observation of the
// event at a point in time and space. Normalization flattens an API
// event into one EventRecord per geometry, all sharing the event id
// and title.
//
// Weather forecasts come from a Dark Sky-style daily forecast API
// keyed by coordinate pair. Each daily entry becomes one WeatherRecord
// holding only the numeric forecast fields; time-of-day, icon,
// summary, and precipitation fields are dropped during normalization.
//
// # Identity
//
// EventRecord identity is the full field set: two records agreeing on
// every field are the same observed fact and must collapse to one
// stored row. A record differing in any field, including status, is a
// new fact. WeatherRecord identity is (longitude, latitude, date);
// forecasts mutate as the horizon shortens, so a later write with the
// same key replaces the stored row.
//
// # Category Whitelist
//
// Only three hazard categories are tracked: Wildfires, Severe_Storms,
// and Sea_and_Lake_Ice. Category titles are compared after replacing
// spaces with underscores, matching the upstream title forms
// "Severe Storms" and "Sea and Lake Ice".
package domain
