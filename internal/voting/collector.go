// Package voting implements the Vote Collector (spec §4.G): external-input
// voting over a fixed genre list with a single-vote-per-user guarantee and
// a clock-driven close.
//
// Grounded on control_plane/scheduler's admission-plus-tally shape,
// narrowed to a single in-memory tally guarded by one mutex — the Vote
// Collector has no sharding or distributed-admission concerns, unlike the
// reconciliation scheduler it's modeled after.
package voting

import (
	"sort"
	"sync"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/bus"
	"github.com/sherndon-labs/adventurecore/internal/observability"
)

const (
	EventVoteCast       = "vote:cast"
	EventVoteRejected   = "vote:rejected"
	DefaultCompleteEvent = "voting:complete"
)

// Genre is a candidate in a Voting Window.
type Genre struct {
	ID   string
	Name string
}

// Voter records who cast a vote and when, for tie-break purposes.
type Voter struct {
	UserID string
	Author string
}

// TallyEntry is one genre's running count (spec §3 Voting Window.tally).
type TallyEntry struct {
	Name   string
	Votes  int
	Voters []Voter
}

// CastPayload is the vote:cast event payload.
type CastPayload struct {
	UserID  string
	GenreID string
	Author  string
}

// RejectedPayload documents a rejected vote.
type RejectedPayload struct {
	UserID  string
	GenreID string
	Reason  string
}

// CompletePayload is the voting:complete event payload.
type CompletePayload struct {
	Tally  map[string]TallyEntry
	Winner string
}

// Collector runs one Voting Window at a time. The zero value is not usable;
// construct with New.
type Collector struct {
	mu           sync.Mutex
	bus          *bus.Bus
	genres       map[string]Genre
	genreOrder   []string
	tally        map[string]*TallyEntry
	voterChoice  map[string]string // userId -> current genreId
	firstVoteAt  map[string]time.Time // genreId -> timestamp of its first vote ever
	open         bool
	closeAt      time.Time
	timer        *time.Timer
	unsubscribe  bus.CancelFunc
	completeEvent string
}

// New constructs a Collector. completeEventName names the event emitted at
// close — pass "" to use DefaultCompleteEvent ("voting:complete").
func New(b *bus.Bus, completeEventName string) *Collector {
	if completeEventName == "" {
		completeEventName = DefaultCompleteEvent
	}
	c := &Collector{bus: b, completeEvent: completeEventName}
	c.unsubscribe = b.Subscribe(EventVoteCast, c.handleCast, bus.Options{})
	return c
}

// StartVoting opens a new Voting Window over genres, closing automatically
// at closeAt.
func (c *Collector) StartVoting(genres []Genre, closeAt time.Time) {
	c.mu.Lock()
	c.genres = make(map[string]Genre, len(genres))
	c.genreOrder = make([]string, 0, len(genres))
	c.tally = make(map[string]*TallyEntry, len(genres))
	c.voterChoice = make(map[string]string)
	c.firstVoteAt = make(map[string]time.Time)
	for _, g := range genres {
		c.genres[g.ID] = g
		c.genreOrder = append(c.genreOrder, g.ID)
		c.tally[g.ID] = &TallyEntry{Name: g.Name}
	}
	c.open = true
	c.closeAt = closeAt
	if c.timer != nil {
		c.timer.Stop()
	}
	delay := time.Until(closeAt)
	if delay < 0 {
		delay = 0
	}
	c.timer = time.AfterFunc(delay, c.Stop)
	c.mu.Unlock()
}

func (c *Collector) handleCast(e bus.Event) error {
	cast, ok := e.Payload.(CastPayload)
	if !ok {
		return nil
	}
	c.Cast(cast.UserID, cast.GenreID, cast.Author)
	return nil
}

// Cast records a vote, replacing the caller's previous vote if any (spec
// §3 Vote invariant: "a later vote replaces the earlier one ... tally is
// updated idempotently").
func (c *Collector) Cast(userID, genreID, author string) {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		c.reject(userID, genreID, "voting window closed")
		return
	}
	if _, ok := c.genres[genreID]; !ok {
		c.mu.Unlock()
		c.reject(userID, genreID, "unknown genre")
		return
	}

	if prev, voted := c.voterChoice[userID]; voted {
		if prev == genreID {
			c.mu.Unlock()
			return // idempotent re-vote for the same genre: no-op
		}
		c.removeVoter(prev, userID)
	}

	entry := c.tally[genreID]
	entry.Votes++
	entry.Voters = append(entry.Voters, Voter{UserID: userID, Author: author})
	c.voterChoice[userID] = genreID
	if _, seen := c.firstVoteAt[genreID]; !seen {
		c.firstVoteAt[genreID] = time.Now()
	}
	c.mu.Unlock()

	observability.VotesCast.WithLabelValues(genreID).Inc()
}

func (c *Collector) removeVoter(genreID, userID string) {
	entry := c.tally[genreID]
	entry.Votes--
	for i, v := range entry.Voters {
		if v.UserID == userID {
			entry.Voters = append(entry.Voters[:i], entry.Voters[i+1:]...)
			break
		}
	}
}

func (c *Collector) reject(userID, genreID, reason string) {
	observability.VotesRejected.WithLabelValues(reason).Inc()
	c.bus.Emit(EventVoteRejected, RejectedPayload{UserID: userID, GenreID: genreID, Reason: reason})
}

// GetTally returns a copy of the current tally.
func (c *Collector) GetTally() map[string]TallyEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]TallyEntry, len(c.tally))
	for id, e := range c.tally {
		votersCopy := make([]Voter, len(e.Voters))
		copy(votersCopy, e.Voters)
		out[id] = TallyEntry{Name: e.Name, Votes: e.Votes, Voters: votersCopy}
	}
	return out
}

// GetWinner returns the genre with the highest vote count, breaking ties
// by earliest first-vote timestamp, then by insertion order (spec §3
// Voting Window.winner).
func (c *Collector) GetWinner() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.winnerLocked()
}

func (c *Collector) winnerLocked() string {
	if len(c.genreOrder) == 0 {
		return ""
	}
	ids := make([]string, len(c.genreOrder))
	copy(ids, c.genreOrder)
	sort.SliceStable(ids, func(i, k int) bool {
		vi, vk := c.tally[ids[i]].Votes, c.tally[ids[k]].Votes
		if vi != vk {
			return vi > vk
		}
		ti, tiok := c.firstVoteAt[ids[i]]
		tk, tkok := c.firstVoteAt[ids[k]]
		if tiok && tkok && !ti.Equal(tk) {
			return ti.Before(tk)
		}
		if tiok != tkok {
			return tiok // a genre with at least one vote ranks above one with none
		}
		return false // preserve insertion order (stable sort) when neither has votes or timestamps tie
	})
	return ids[0]
}

// Stop closes the voting window immediately, emitting voting:complete.
// Safe to call multiple times; only the first has an effect.
func (c *Collector) Stop() {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return
	}
	c.open = false
	if c.timer != nil {
		c.timer.Stop()
	}
	winner := c.winnerLocked()
	tally := make(map[string]TallyEntry, len(c.tally))
	for id, e := range c.tally {
		tally[id] = *e
	}
	c.mu.Unlock()

	c.bus.Emit(c.completeEvent, CompletePayload{Tally: tally, Winner: winner})
}

// Close unsubscribes the collector from the bus.
func (c *Collector) Close() {
	c.unsubscribe()
}
