// Package session is the entry point for everything the transport
// layer may do to a live room: join, vote, reveal, reset, rename,
// leave. It owns the process-wide room table and pushes a change
// notification after every mutation so the snapshotter can schedule
// persistence.
package session

import (
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/mkraft/scrumdeck/internal/room"
	"github.com/mkraft/scrumdeck/internal/store"
)

var (
	ErrRoomCode = errors.New("session: invalid room code")
	ErrName     = errors.New("session: invalid participant name")
	ErrNoRoom   = errors.New("session: room not found")
	ErrNoMember = errors.New("session: participant not found")
)

const maxNameLength = 64

// Notifier receives a change notification after every mutation.
type Notifier interface {
	OnChange(r *room.Room, actor string)
}

// Sender fans a message out to every connection bound to a room.
type Sender interface {
	Send(code string, data []byte)
}

// Hydrator warms a freshly created room from durable state, if any.
type Hydrator func(code string) *room.Room

// Registry is the process-wide table of live rooms and of
// connection→room bindings. Rooms are created lazily on first
// reference; at most one instance ever exists per code.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*room.Room
	conns    map[string]*room.Room
	notifier Notifier
	sender   Sender
	hydrate  Hydrator
}

func NewRegistry(notifier Notifier) *Registry {
	return &Registry{
		rooms:    make(map[string]*room.Room),
		conns:    make(map[string]*room.Room),
		notifier: notifier,
	}
}

// SetSender wires the broadcast fan-out; nil is tolerated for tests.
func (g *Registry) SetSender(s Sender) {
	g.sender = s
}

// SetHydrator wires snapshot warm-up for first-created rooms.
func (g *Registry) SetHydrator(h Hydrator) {
	g.hydrate = h
}

func validateCode(code string) error {
	if !store.ValidCode(code) {
		return fmt.Errorf("%w: %q", ErrRoomCode, code)
	}
	return nil
}

func validateName(name string) error {
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: too long", ErrName)
	}
	return nil
}

// GetOrCreateRoom returns the live room for a code, creating it on
// first reference. Safe under concurrent first-creation.
func (g *Registry) GetOrCreateRoom(code string) (*room.Room, error) {
	if err := validateCode(code); err != nil {
		return nil, err
	}

	g.mu.RLock()
	r, ok := g.rooms[code]
	g.mu.RUnlock()
	if ok {
		return r, nil
	}

	// Hydrate outside the lock; a racing creator wins below.
	var warmed *room.Room
	if g.hydrate != nil {
		warmed = g.hydrate(code)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.rooms[code]; ok {
		return r, nil
	}
	r = warmed
	if r == nil {
		r = room.NewRoom(code)
	}
	g.rooms[code] = r
	logrus.WithField("room", code).Info("Room created")
	return r, nil
}

// GetRoom returns the live room for a code if one exists.
func (g *Registry) GetRoom(code string) (*room.Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[code]
	return r, ok
}

// Rooms returns a snapshot of all live room codes, for diagnostics.
func (g *Registry) Rooms() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	codes := make([]string, 0, len(g.rooms))
	for code := range g.rooms {
		codes = append(codes, code)
	}
	return codes
}

// ResolveRoom returns the room a connection is bound to.
func (g *Registry) ResolveRoom(cid string) (*room.Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.conns[cid]
	return r, ok
}

func (g *Registry) bind(cid string, r *room.Room) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conns[cid] = r
}

// Unbind drops a connection binding, keeping the room itself.
func (g *Registry) Unbind(cid string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.conns, cid)
}

// Broadcast fans a message to every connection bound to the room.
func (g *Registry) Broadcast(code string, data []byte) {
	if g.sender != nil {
		g.sender.Send(code, data)
	}
}

func (g *Registry) changed(r *room.Room, actor string) {
	if g.notifier != nil {
		g.notifier.OnChange(r, actor)
	}
}

// Inbound event contract

// Join resolves or creates the room, resolves the connection to a
// participant identity, and binds the connection.
func (g *Registry) Join(code, cid, requestedName string) (room.View, string, error) {
	if err := validateName(requestedName); err != nil {
		return room.View{}, "", err
	}
	r, err := g.GetOrCreateRoom(code)
	if err != nil {
		return room.View{}, "", err
	}

	name, rejoined := r.Join(cid, requestedName)
	g.bind(cid, r)
	g.changed(r, name)

	logrus.WithFields(logrus.Fields{
		"room":     code,
		"name":     name,
		"rejoined": rejoined,
	}).Info("Participant joined")
	return r.View(), name, nil
}

// Vote records a vote for the participant the CID resolves to; an
// unknown CID falls back to treating the identifier as a name.
func (g *Registry) Vote(code, cidOrName, value string) error {
	r, ok := g.GetRoom(code)
	if !ok {
		return ErrNoRoom
	}

	name := cidOrName
	if p, ok := r.ParticipantByCID(cidOrName); ok {
		name = p.Name
	}
	if !r.SetVote(name, value) {
		return ErrNoMember
	}
	g.changed(r, name)
	return nil
}

// Reveal exposes the current votes.
func (g *Registry) Reveal(code string) error {
	r, ok := g.GetRoom(code)
	if !ok {
		return ErrNoRoom
	}
	r.Reveal()
	g.changed(r, "")
	return nil
}

// Reset starts the next round.
func (g *Registry) Reset(code string) error {
	r, ok := g.GetRoom(code)
	if !ok {
		return ErrNoRoom
	}
	r.Reset()
	g.changed(r, "")
	return nil
}

// Rename moves the connection's participant to a new name.
func (g *Registry) Rename(code, cid, newName string) (string, error) {
	if err := validateName(newName); err != nil {
		return "", err
	}
	r, ok := g.GetRoom(code)
	if !ok {
		return "", ErrNoRoom
	}
	p, ok := r.ParticipantByCID(cid)
	if !ok {
		return "", ErrNoMember
	}
	final, ok := r.Rename(p.Name, newName)
	if !ok {
		return "", ErrNoMember
	}
	g.changed(r, final)
	return final, nil
}

// Leave is the deliberate-exit signal, distinct from a transport drop.
func (g *Registry) Leave(code, cid string) error {
	r, ok := g.GetRoom(code)
	if !ok {
		return ErrNoRoom
	}
	name, ok := r.Leave(cid)
	if !ok {
		return ErrNoMember
	}
	g.Unbind(cid)
	g.changed(r, name)
	logrus.WithFields(logrus.Fields{"room": code, "name": name}).Info("Participant left")
	return nil
}

// ConnectionLost marks a transport drop; identity is retained for
// reconnection under the same CID.
func (g *Registry) ConnectionLost(code, cid string) error {
	r, ok := g.GetRoom(code)
	if !ok {
		return ErrNoRoom
	}
	name, ok := r.Drop(cid)
	if !ok {
		return ErrNoMember
	}
	g.changed(r, name)
	return nil
}

// SetTopic updates the room's topic label and link.
func (g *Registry) SetTopic(code, label, url string) error {
	r, ok := g.GetRoom(code)
	if !ok {
		return ErrNoRoom
	}
	r.SetTopic(label, url)
	g.changed(r, "")
	return nil
}

// UpdateSettings replaces the room settings.
func (g *Registry) UpdateSettings(code string, s room.Settings) error {
	r, ok := g.GetRoom(code)
	if !ok {
		return ErrNoRoom
	}
	r.UpdateSettings(s)
	g.changed(r, "")
	return nil
}

// SetParticipating flips the connection's participant between
// estimator and observer.
func (g *Registry) SetParticipating(code, cid string, participating bool) error {
	r, ok := g.GetRoom(code)
	if !ok {
		return ErrNoRoom
	}
	p, ok := r.ParticipantByCID(cid)
	if !ok {
		return ErrNoMember
	}
	r.UpdateParticipating(p.Name, participating)
	g.changed(r, p.Name)
	return nil
}
