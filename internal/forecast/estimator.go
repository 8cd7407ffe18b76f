// Package forecast estimates a smoothed spatio-temporal event rate
// from historical event records.
//
// The estimator fits a Gaussian kernel density over (longitude,
// latitude, time-as-epoch-seconds) after z-score normalizing each
// dimension, so the very different scales of degrees and seconds
// contribute comparably. Predictions return the model's native
// log-density; callers exponentiate to obtain a rate comparable across
// a series.
package forecast

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/hazardwatch/hazard-tracker/internal/domain"
)

// ErrInsufficientData indicates a fit was requested with too few rows
// to compute a standard deviation.
var ErrInsufficientData = errors.New("not enough rows to fit a density model")

// WindowDays is the trailing window a rate series covers.
const WindowDays = 32

const dims = 3

// clock is swappable so tests can pin "today" for rate series.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Model is a fitted kernel density estimate. The normalization
// constants are computed at fit time and bound to the instance;
// Predict reuses them and never recomputes, so a model handle stays
// consistent however long after fitting it is queried.
type Model struct {
	points    [][dims]float64 // normalized training points
	bandwidth float64
	mean      [dims]float64
	std       [dims]float64
}

// RatePoint is one entry of a rate-vs-date series.
type RatePoint struct {
	Date time.Time `json:"date"`
	Rate float64   `json:"rate"` // log-density; exponentiate to compare as a rate
}

// FilterCategory returns the rows belonging to one hazard category.
func FilterCategory(rows []domain.EventRecord, category string) []domain.EventRecord {
	var out []domain.EventRecord
	for _, r := range rows {
		if r.CategoryTitle == category {
			out = append(out, r)
		}
	}
	return out
}

// Fit builds a density model over the given rows with the supplied
// kernel bandwidth. Fewer than two rows cannot yield a standard
// deviation and fail with ErrInsufficientData.
func Fit(rows []domain.EventRecord, bandwidth float64) (*Model, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: got %d rows", ErrInsufficientData, len(rows))
	}
	if bandwidth <= 0 {
		return nil, fmt.Errorf("bandwidth must be positive, got %g", bandwidth)
	}

	cols := [dims][]float64{}
	for d := range cols {
		cols[d] = make([]float64, len(rows))
	}
	for i, r := range rows {
		cols[0][i] = r.Longitude
		cols[1][i] = r.Latitude
		cols[2][i] = float64(r.Timestamp.Unix())
	}

	m := &Model{bandwidth: bandwidth}
	for d := range cols {
		m.mean[d] = stat.Mean(cols[d], nil)
		m.std[d] = stat.StdDev(cols[d], nil)
		// A dimension with zero spread (all rows identical on that
		// axis) keeps its raw offset instead of dividing by zero.
		if m.std[d] == 0 {
			m.std[d] = 1
		}
	}

	m.points = make([][dims]float64, len(rows))
	for i := range rows {
		for d := range cols {
			m.points[i][d] = (cols[d][i] - m.mean[d]) / m.std[d]
		}
	}

	return m, nil
}

// Predict scores a query point under the fitted density and returns
// the log-density. The query is normalized with the fit-time
// mean/standard deviation.
func (m *Model) Predict(lon, lat float64, at time.Time) float64 {
	q := [dims]float64{
		(lon - m.mean[0]) / m.std[0],
		(lat - m.mean[1]) / m.std[1],
		(float64(at.Unix()) - m.mean[2]) / m.std[2],
	}

	h2 := m.bandwidth * m.bandwidth
	exponents := make([]float64, len(m.points))
	for i, p := range m.points {
		var sq float64
		for d := 0; d < dims; d++ {
			diff := q[d] - p[d]
			sq += diff * diff
		}
		exponents[i] = -sq / (2 * h2)
	}

	// Gaussian kernel normalization: N(0, h^2 I) in `dims` dimensions,
	// averaged over the training points.
	logNorm := math.Log(float64(len(m.points))) + float64(dims)/2*math.Log(2*math.Pi*h2)
	return floats.LogSumExp(exponents) - logNorm
}

// RateSeries fits a model on one category's rows and evaluates it at a
// fixed location for each of the trailing WindowDays days ending
// today, most recent day first.
func RateSeries(rows []domain.EventRecord, category string, bandwidth float64, loc domain.Location) ([]RatePoint, error) {
	filtered := FilterCategory(rows, category)
	model, err := Fit(filtered, bandwidth)
	if err != nil {
		return nil, err
	}

	now := clock.Now().UTC()
	series := make([]RatePoint, 0, WindowDays)
	for i := 0; i < WindowDays; i++ {
		day := now.AddDate(0, 0, -i)
		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
		series = append(series, RatePoint{
			Date: day,
			Rate: model.Predict(loc.Longitude, loc.Latitude, day),
		})
	}
	return series, nil
}
