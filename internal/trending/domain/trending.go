// Package domain implements the time-decayed trending scores: one lazily
// decayed score cell per entity per metric, with ranked top-N reads.
package domain

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Metric selects which decayed aggregate to update or rank.
type Metric string

const (
	MetricMentions  Metric = "MENTIONS"
	MetricRisk      Metric = "RISK"
	MetricSanctions Metric = "SANCTIONS"
)

// ParseMetric validates a raw metric name.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricMentions, MetricRisk, MetricSanctions:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("unknown trending metric: %q", s)
	}
}

// Metrics lists every supported metric.
func Metrics() []Metric {
	return []Metric{MetricMentions, MetricRisk, MetricSanctions}
}

// RankedEntity is one leaderboard row.
type RankedEntity struct {
	EntityID uint64  `json:"entity_id"`
	Score    float64 `json:"score"`
	Rank     int     `json:"rank"`
}

// cell is the per-entity per-metric decayed aggregate. Updates multiply the
// running score by exp(-dt/H) and add the new weighted term, so a single
// mention costs O(1) regardless of history. Updates are commutative up to
// floating-point tolerance, so cross-worker arrival order does not matter.
type cell struct {
	mu          sync.Mutex
	lastUpdate  time.Time
	score       float64
	lastMention time.Time
}

// Engine holds the live trending state. It is safe for concurrent use: the
// only shared mutation is the per-cell locked update.
type Engine struct {
	halfLife  time.Duration
	retention time.Duration

	mu    sync.RWMutex
	cells map[Metric]map[uint64]*cell
}

// NewEngine creates an Engine with the given half-life and retention
// window.
func NewEngine(halfLife, retention time.Duration) *Engine {
	cells := make(map[Metric]map[uint64]*cell, len(Metrics()))
	for _, m := range Metrics() {
		cells[m] = make(map[uint64]*cell)
	}
	return &Engine{
		halfLife:  halfLife,
		retention: retention,
		cells:     cells,
	}
}

// Record folds one weighted contribution at time at into the entity's cell.
func (e *Engine) Record(metric Metric, entityID uint64, weight float64, at time.Time) {
	if weight == 0 {
		return
	}
	c := e.cell(metric, entityID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastUpdate.IsZero() {
		c.score = weight
		c.lastUpdate = at
		c.lastMention = at
		return
	}

	if at.After(c.lastUpdate) {
		c.score = c.score*e.decayFactor(at.Sub(c.lastUpdate)) + weight
		c.lastUpdate = at
	} else {
		// Late arrival: decay the new term instead of the aggregate.
		c.score += weight * e.decayFactor(c.lastUpdate.Sub(at))
	}
	if at.After(c.lastMention) {
		c.lastMention = at
	}
}

// ScoreAt returns the entity's decayed score as of asOf. Entities whose
// latest contribution is older than the retention window score exactly 0.
func (e *Engine) ScoreAt(metric Metric, entityID uint64, asOf time.Time) float64 {
	e.mu.RLock()
	c := e.cells[metric][entityID]
	e.mu.RUnlock()
	if c == nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return e.read(c, asOf)
}

// RankTop returns up to limit entities ordered by decayed score as of asOf.
// Equal scores order by most recent mention first, then entity id
// ascending.
func (e *Engine) RankTop(metric Metric, limit int, asOf time.Time) []RankedEntity {
	if limit <= 0 {
		return nil
	}

	type row struct {
		entityID    uint64
		score       float64
		lastMention time.Time
	}

	e.mu.RLock()
	metricCells := e.cells[metric]
	rows := make([]row, 0, len(metricCells))
	for entityID, c := range metricCells {
		c.mu.Lock()
		score := e.read(c, asOf)
		lastMention := c.lastMention
		c.mu.Unlock()
		if score > 0 {
			rows = append(rows, row{entityID: entityID, score: score, lastMention: lastMention})
		}
	}
	e.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].score != rows[j].score {
			return rows[i].score > rows[j].score
		}
		if !rows[i].lastMention.Equal(rows[j].lastMention) {
			return rows[i].lastMention.After(rows[j].lastMention)
		}
		return rows[i].entityID < rows[j].entityID
	})

	if len(rows) > limit {
		rows = rows[:limit]
	}

	ranked := make([]RankedEntity, len(rows))
	for i, r := range rows {
		ranked[i] = RankedEntity{EntityID: r.entityID, Score: r.score, Rank: i + 1}
	}
	return ranked
}

// Prune drops cells whose latest contribution left the retention window as
// of asOf, and returns the number of live entities remaining across all
// metrics.
func (e *Engine) Prune(asOf time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	live := 0
	for _, metricCells := range e.cells {
		for entityID, c := range metricCells {
			c.mu.Lock()
			stale := asOf.Sub(c.lastMention) > e.retention
			c.mu.Unlock()
			if stale {
				delete(metricCells, entityID)
				continue
			}
			live++
		}
	}
	return live
}

// Reset drops all cells. Used before a rebuild from the mention log.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range Metrics() {
		e.cells[m] = make(map[uint64]*cell)
	}
}

// Retention returns the configured lookback window.
func (e *Engine) Retention() time.Duration {
	return e.retention
}

// read assumes c.mu is held.
func (e *Engine) read(c *cell, asOf time.Time) float64 {
	if c.lastUpdate.IsZero() || asOf.Sub(c.lastMention) > e.retention {
		return 0
	}
	if asOf.After(c.lastUpdate) {
		return c.score * e.decayFactor(asOf.Sub(c.lastUpdate))
	}
	return c.score
}

// decayFactor halves a contribution every half-life:
// exp(-ln2 * age / H), so age == H yields exactly 0.5.
func (e *Engine) decayFactor(age time.Duration) float64 {
	return math.Exp2(-age.Hours() / e.halfLife.Hours())
}

func (e *Engine) cell(metric Metric, entityID uint64) *cell {
	e.mu.RLock()
	c := e.cells[metric][entityID]
	e.mu.RUnlock()
	if c != nil {
		return c
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if c = e.cells[metric][entityID]; c == nil {
		c = &cell{}
		e.cells[metric][entityID] = c
	}
	return c
}
