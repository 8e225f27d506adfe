package snapshot

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mkraft/scrumdeck/internal/room"
)

// Saver is the persistence call a fired task executes.
type Saver interface {
	SaveFromLive(r *room.Room, actor string) error
}

type Config struct {
	DebounceWindow time.Duration
	QueueSize      int
}

func DefaultConfig() Config {
	return Config{
		DebounceWindow: 3 * time.Second,
		QueueSize:      64,
	}
}

type task struct {
	room  *room.Room
	actor string
}

type pendingTask struct {
	timer *time.Timer
	room  *room.Room
	actor string
}

// Service debounces live mutations into infrequent persistence calls.
// One pending timer per room code; every change replaces the previous
// timer, so a burst of mutations inside the window collapses to a
// single write of the state at fire time. A single worker drains fired
// tasks, which serializes merges per code.
type Service struct {
	saver  Saver
	config Config

	mu      sync.Mutex
	pending map[string]*pendingTask
	stopped bool

	tasks chan task
	wg    sync.WaitGroup
}

func New(saver Saver, config Config) *Service {
	return &Service{
		saver:   saver,
		config:  config,
		pending: make(map[string]*pendingTask),
		tasks:   make(chan task, config.QueueSize),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	logrus.Infof("🗜️ Snapshot service started (debounce: %v)", s.config.DebounceWindow)
}

// Stop refuses new work and drops unfired timers. Best-effort by
// design: state mutated inside the last window may not reach the
// store.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for _, p := range s.pending {
		p.timer.Stop()
	}
	s.pending = make(map[string]*pendingTask)
	close(s.tasks)
	s.mu.Unlock()

	s.wg.Wait()
	logrus.Info("🗜️ Snapshot service stopped")
}

// OnChange schedules a persistence task for the room, superseding any
// task still pending for the same code. Never blocks on I/O.
func (s *Service) OnChange(r *room.Room, actor string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	code := r.Code()
	if prev, ok := s.pending[code]; ok {
		prev.timer.Stop()
	}

	p := &pendingTask{room: r, actor: actor}
	p.timer = time.AfterFunc(s.config.DebounceWindow, func() {
		s.fire(code, p)
	})
	s.pending[code] = p
}

func (s *Service) fire(code string, p *pendingTask) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A replacement or shutdown may have raced the timer; only the
	// task still registered for the code is allowed to run.
	if s.stopped || s.pending[code] != p {
		return
	}
	delete(s.pending, code)

	select {
	case s.tasks <- task{room: p.room, actor: p.actor}:
	default:
		logrus.WithField("room", code).Warn("Snapshot queue full, dropping task until next change")
	}
}

func (s *Service) run() {
	defer s.wg.Done()

	for t := range s.tasks {
		if err := s.saver.SaveFromLive(t.room, t.actor); err != nil {
			// Live gameplay must never fail on a durability hiccup;
			// the next change will schedule another attempt.
			logrus.WithError(err).WithField("room", t.room.Code()).Error("Snapshot persistence failed")
		}
	}
}
