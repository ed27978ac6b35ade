// Package priority ranks pending requests.
//
// A request's score is urgency*10 + whole days spent in the queue, so older
// low-urgency requests eventually overtake newer urgent ones. All functions
// take the current time from the caller and have no side effects.
package priority

import (
	"sort"
	"time"

	"github.com/erazemk/corrente/internal/model"
)

// UrgencyWeight is the score contributed by each urgency level.
const UrgencyWeight = 10

const day = 24 * time.Hour

// ClampUrgency forces level into [UrgencyLow, UrgencyHigh]. The second return
// value reports whether the input was out of range.
func ClampUrgency(level int) (int, bool) {
	switch {
	case level < model.UrgencyLow:
		return model.UrgencyLow, true
	case level > model.UrgencyHigh:
		return model.UrgencyHigh, true
	}
	return level, false
}

// DaysInQueue returns the whole days between createdAt and now, never negative.
func DaysInQueue(createdAt, now time.Time) int {
	waited := now.Sub(createdAt)
	if waited < 0 {
		return 0
	}
	return int(waited / day)
}

// Score computes the ranking score of a request.
func Score(urgencyLevel int, createdAt, now time.Time) int {
	level, _ := ClampUrgency(urgencyLevel)
	return level*UrgencyWeight + DaysInQueue(createdAt, now)
}

// Ranked is a request with its score at ranking time.
type Ranked struct {
	Request model.Request `json:"request"`
	Score   int           `json:"score"`
}

// Rank orders requests by score descending, then createdAt ascending, then id
// ascending. The input slice is not modified.
func Rank(requests []model.Request, now time.Time) []Ranked {
	ranked := make([]Ranked, len(requests))
	for i, r := range requests {
		ranked[i] = Ranked{Request: r, Score: Score(r.UrgencyLevel, r.CreatedAt, now)}
	}
	sort.Slice(ranked, func(i, j int) bool {
		return less(ranked[i], ranked[j])
	})
	return ranked
}

func less(a, b Ranked) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.Request.CreatedAt.Equal(b.Request.CreatedAt) {
		return a.Request.CreatedAt.Before(b.Request.CreatedAt)
	}
	return a.Request.ID < b.Request.ID
}

// Position describes where a request sits in its category queue.
type Position struct {
	Position int `json:"position"`
	Total    int `json:"total"`
	Score    int `json:"score"`
}

// QueuePosition ranks the pending requests and locates requestID among them.
// The position is 1-based; ok is false if the request is not in the queue.
func QueuePosition(pending []model.Request, requestID int64, now time.Time) (Position, bool) {
	ranked := Rank(pending, now)
	for i, r := range ranked {
		if r.Request.ID == requestID {
			return Position{Position: i + 1, Total: len(ranked), Score: r.Score}, true
		}
	}
	return Position{Total: len(ranked)}, false
}
