package persist

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mkraft/scrumdeck/internal/auth"
	"github.com/mkraft/scrumdeck/internal/room"
	"github.com/mkraft/scrumdeck/internal/stored"
)

// Oldest history entries are dropped past this count.
const historyLimit = 50

// Service owns the live→stored merge and the password operations. The
// live room is a working copy; the stored snapshot is the durable
// projection this service keeps consistent. Every write is a
// load-mutate-save against the repository, so writes to the same code
// hold that code's lock for the whole round trip.
type Service struct {
	repo   *Repository
	hasher auth.Hasher
	now    func() time.Time
	locks  sync.Map // code → *sync.Mutex
}

func NewService(repo *Repository, hasher auth.Hasher) *Service {
	return &Service{
		repo:   repo,
		hasher: hasher,
		now:    time.Now,
	}
}

// lockCode takes the per-code write lock and returns its release.
func (s *Service) lockCode(code string) func() {
	v, _ := s.locks.LoadOrStore(code, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// touchUpdated advances UpdatedAt strictly, even when the wall clock
// has not visibly moved between two writes, and keeps it after
// CreatedAt. Successive saves of the same code are therefore always
// ordered by UpdatedAt.
func touchUpdated(r *stored.Room, now time.Time) {
	switch {
	case r.UpdatedAt.IsZero():
		r.UpdatedAt = now
	case now.After(r.UpdatedAt):
		r.UpdatedAt = now
	default:
		r.UpdatedAt = r.UpdatedAt.Add(time.Nanosecond)
	}
	if r.UpdatedAt.Before(r.CreatedAt) {
		r.UpdatedAt = r.CreatedAt.Add(time.Nanosecond)
	}
}

func appendHistory(r *stored.Room, at time.Time, actor, action string) {
	r.History = append(r.History, stored.HistoryEntry{At: at, Actor: actor, Action: action})
	if len(r.History) > historyLimit {
		r.History = r.History[len(r.History)-historyLimit:]
	}
}

// SaveFromLive merges the room's state at call time into its stored
// snapshot. Settings, topic, and participants are replaced wholesale;
// title and owner only when the live side supplies them; passwordHash
// and createdAt are never touched by this path.
func (s *Service) SaveFromLive(r *room.Room, actor string) error {
	v := r.View()
	snap := stored.FromLive(v)

	defer s.lockCode(v.Code)()

	existing, err := s.repo.Load(v.Code)
	if err != nil {
		return err
	}

	now := s.now()
	out := snap
	if existing == nil {
		out.CreatedAt = now
	} else {
		out = existing
		if snap.Title != "" {
			out.Title = snap.Title
		}
		if snap.Owner != "" {
			out.Owner = snap.Owner
		}
		out.TopicLabel = snap.TopicLabel
		out.TopicURL = snap.TopicURL
		out.Settings = snap.Settings
		out.Participants = snap.Participants
	}

	mergeStats(out, v)
	appendHistory(out, now, actor, "sync")
	touchUpdated(out, now)

	return s.repo.Save(out)
}

func mergeStats(out *stored.Room, v room.View) {
	stats := out.Stats
	if stats == nil {
		stats = &stored.Stats{}
	}
	// A stale live cache must never walk the stored counter backwards.
	if v.RoundsPlayed > stats.RoundsPlayed {
		stats.RoundsPlayed = v.RoundsPlayed
	}
	if v.VotesRevealed {
		if avg, ok := viewAverage(v); ok {
			stats.LastAverage = &avg
		}
	}
	out.Stats = stats
}

func viewAverage(v room.View) (float64, bool) {
	sum := 0.0
	count := 0
	for _, p := range v.Participants {
		if !p.Participating || p.Vote == "" {
			continue
		}
		value, err := strconv.ParseFloat(p.Vote, 64)
		if err != nil {
			continue
		}
		sum += value
		count++
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// SetPassword stores the hash of a non-blank password, or clears the
// hash for blank input. The only code path allowed to change the hash.
func (s *Service) SetPassword(code, raw string) error {
	defer s.lockCode(code)()

	existing, err := s.repo.Load(code)
	if err != nil {
		return err
	}

	now := s.now()
	if existing == nil {
		existing = &stored.Room{Code: code, Settings: defaultStoredSettings()}
	}
	if existing.CreatedAt.IsZero() {
		existing.CreatedAt = now
	}

	if strings.TrimSpace(raw) == "" {
		existing.PasswordHash = ""
	} else {
		hash, err := s.hasher.Hash(raw)
		if err != nil {
			return err
		}
		existing.PasswordHash = hash
	}

	appendHistory(existing, now, "", "password")
	touchUpdated(existing, now)
	return s.repo.Save(existing)
}

// VerifyPassword checks a supplied password against the stored hash.
// A room with no hash is open to any input. A wholly missing record is
// fail-closed: only a blank supplied password passes. That asymmetry
// against the otherwise permissive not-found handling is deliberate.
func (s *Service) VerifyPassword(code, raw string) (bool, error) {
	existing, err := s.repo.Load(code)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return strings.TrimSpace(raw) == "", nil
	}
	if existing.PasswordHash == "" {
		return true, nil
	}
	return s.hasher.Verify(raw, existing.PasswordHash), nil
}

// Load exposes the stored snapshot for read-only callers.
func (s *Service) Load(code string) (*stored.Room, error) {
	return s.repo.Load(code)
}

// Delete removes the durable record; the live room is unaffected.
func (s *Service) Delete(code string) error {
	defer s.lockCode(code)()
	return s.repo.Delete(code)
}

func defaultStoredSettings() stored.Settings {
	d := room.DefaultSettings()
	return stored.Settings{
		SequenceID:        d.SequenceID,
		AutoRevealEnabled: d.AutoRevealEnabled,
		AllowSpecials:     d.AllowSpecials,
		TopicVisible:      d.TopicVisible,
	}
}
