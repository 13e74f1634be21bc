// Package utils provides snowflake id generation, retry helpers and
// pagination shared across the engine.
package utils

import (
	"encoding/json"
	"math/rand"
	"sync"
	"time"
)

// SnowflakeID generates roughly time-ordered unique ids:
// timestamp(41 bits) + nodeID(10 bits) + sequence(12 bits).
type SnowflakeID struct {
	mu        sync.Mutex
	timestamp int64
	sequence  int64
	nodeID    int64
}

// NewSnowflakeID creates a generator for the given node.
func NewSnowflakeID(nodeID int64) *SnowflakeID {
	return &SnowflakeID{
		timestamp: 0,
		sequence:  0,
		nodeID:    nodeID & 0x3FF, // 10 bits
	}
}

// Generate returns the next id.
func (s *SnowflakeID) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & 0xFFF // 12 bits
		if s.sequence == 0 {
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return (now << 22) | (s.nodeID << 12) | s.sequence
}

// ToJSON marshals v, returning "" on error.
func ToJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// FromJSON unmarshals data into v.
func FromJSON(data string, v interface{}) error {
	return json.Unmarshal([]byte(data), v)
}

// Retry calls fn up to maxAttempts times with a fixed delay between
// attempts.
func Retry(maxAttempts int, delay time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < maxAttempts-1 {
			time.Sleep(delay)
		}
	}
	return lastErr
}

// RetryWithBackoff calls fn up to maxAttempts times with exponential
// backoff capped at maxDelay.
func RetryWithBackoff(maxAttempts int, initialDelay time.Duration, maxDelay time.Duration, fn func() error) error {
	var lastErr error
	delay := initialDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < maxAttempts-1 {
			time.Sleep(delay)
			delay = time.Duration(float64(delay) * 1.5)
			if delay > maxDelay {
				delay = maxDelay
			}
		}
	}
	return lastErr
}

// JitteredDelay returns a random duration in [base/2, base), used to spread
// out retries under bursty contention.
func JitteredDelay(base time.Duration) time.Duration {
	half := int64(base) / 2
	if half <= 0 {
		return base
	}
	return time.Duration(half + rand.Int63n(half))
}

// Pagination carries page/offset math for list queries.
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
	Pages    int64 `json:"pages"`
}

// NewPagination clamps page and pageSize to sane bounds and derives the
// total page count.
func NewPagination(page, pageSize int, total int64) *Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 1000 {
		pageSize = 1000
	}

	pages := (total + int64(pageSize) - 1) / int64(pageSize)

	return &Pagination{
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		Pages:    pages,
	}
}

// Offset returns the query offset.
func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Limit returns the query limit.
func (p *Pagination) Limit() int {
	return p.PageSize
}
