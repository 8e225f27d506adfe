package room

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// DefaultName is substituted for blank join names.
const DefaultName = "Guest"

// Matches a trailing uniqueness suffix like "Roland (2)"
var suffixPattern = regexp.MustCompile(`^(.*) \(\d+\)$`)

// Per-room estimation settings
type Settings struct {
	SequenceID        string
	AutoRevealEnabled bool
	AllowSpecials     bool
	TopicVisible      bool
}

func DefaultSettings() Settings {
	return Settings{
		SequenceID:    "fibonacci",
		AllowSpecials: true,
		TopicVisible:  true,
	}
}

// A member of an estimation session. Vote is the raw token as cast;
// empty means no vote this round. Disconnected marks a transport drop
// whose owner may still reconnect under the same CID, as opposed to
// Active=false with Disconnected=false, which is a deliberate exit.
type Participant struct {
	Name          string
	Vote          string
	Active        bool
	Disconnected  bool
	Participating bool
	IsHost        bool
}

// A live estimation session. All exported methods serialize through
// the room mutex; invariants (case-insensitively unique names, at most
// one host) hold only under that discipline.
type Room struct {
	code string

	mu            sync.Mutex
	participants  []*Participant
	cids          map[string]*Participant
	votesRevealed bool
	settings      Settings
	topicLabel    string
	topicURL      string
	roundsPlayed  int
}

// Creates a new room with the given code
func NewRoom(code string) *Room {
	return &Room{
		code:     code,
		cids:     make(map[string]*Participant),
		settings: DefaultSettings(),
	}
}

func (r *Room) Code() string {
	return r.code
}

// Identity resolution

func (r *Room) findParticipant(name string) *Participant {
	for _, p := range r.participants {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

func (r *Room) nameTaken(name string, exclude *Participant) bool {
	p := r.findParticipant(name)
	return p != nil && p != exclude
}

func (r *Room) ensureUniqueName(requested string, exclude *Participant) string {
	name := strings.TrimSpace(requested)
	if name == "" {
		name = DefaultName
	}
	if !r.nameTaken(name, exclude) {
		return name
	}

	// Strip an existing " (N)" suffix so "Roland (2)" probes from the
	// root "Roland" instead of stacking suffixes.
	root := name
	if m := suffixPattern.FindStringSubmatch(name); m != nil {
		root = m[1]
	}
	if !r.nameTaken(root, exclude) {
		return root
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", root, n)
		if !r.nameTaken(candidate, exclude) {
			return candidate
		}
	}
}

// EnsureUniqueName resolves a requested display name to one not in use,
// substituting the default for blank input and probing minimal numeric
// suffixes on collision. Collisions are never rejected.
func (r *Room) EnsureUniqueName(requested string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureUniqueName(requested, nil)
}

// NameInUse reports whether a name is already held, ignoring case.
func (r *Room) NameInUse(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findParticipant(name) != nil
}

// Join resolves a connection to a participant. A CID seen before maps
// back to its existing participant even across renames; otherwise a new
// participant is created under a collision-free name. The first
// participant ever added becomes host.
func (r *Room) Join(cid, requestedName string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.cids[cid]; ok {
		p.Active = true
		p.Disconnected = false
		return p.Name, true
	}

	// A name held by someone no longer connected is reclaimed rather
	// than suffixed: that participant was restored from a snapshot or
	// lost their transport, and this is them coming back.
	if p := r.findParticipant(strings.TrimSpace(requestedName)); p != nil && !p.Active {
		p.Active = true
		p.Disconnected = false
		if cid != "" {
			r.cids[cid] = p
		}
		return p.Name, true
	}

	name := r.ensureUniqueName(requestedName, nil)
	p := &Participant{
		Name:          name,
		Active:        true,
		Participating: true,
	}
	if len(r.participants) == 0 {
		p.IsHost = true
	}
	r.participants = append(r.participants, p)
	if cid != "" {
		r.cids[cid] = p
	}
	return name, false
}

// LinkCID associates a transport connection with an existing
// participant so later events under the same CID resolve to them.
func (r *Room) LinkCID(cid, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findParticipant(name)
	if p == nil {
		return false
	}
	r.cids[cid] = p
	return true
}

// ParticipantByCID returns a copy of the participant a CID resolves to.
func (r *Room) ParticipantByCID(cid string) (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.cids[cid]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// Participant returns a copy of the named participant.
func (r *Room) Participant(name string) (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findParticipant(name)
	if p == nil {
		return Participant{}, false
	}
	return *p, true
}

// UpdateParticipating switches a participant between estimator and
// observer. Observers keep their seat but are excluded from averages.
func (r *Room) UpdateParticipating(name string, participating bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findParticipant(name)
	if p == nil {
		return false
	}
	p.Participating = participating
	return true
}

// Rename moves a participant to a new name, resolving collisions by
// suffixing. The participant keeps their vote and flags; a colliding
// participant is never merged into or overwritten. CID associations
// follow the renamed participant.
func (r *Room) Rename(oldName, newName string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findParticipant(oldName)
	if p == nil {
		return "", false
	}
	// The participant being renamed does not block their own new name,
	// which permits pure case changes.
	p.Name = r.ensureUniqueName(newName, p)
	return p.Name, true
}

// Leave marks a deliberate exit. The participant stays in the list but
// is no longer active, and the host role moves on if they held it.
func (r *Room) Leave(cid string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.cids[cid]
	if !ok {
		return "", false
	}
	p.Active = false
	p.Disconnected = false
	if p.IsHost {
		p.IsHost = false
		r.assignNewHostIfNecessary("")
	}
	return p.Name, true
}

// Drop marks a transport-level disconnect. Identity is retained so the
// same CID resolves back to this participant on reconnect.
func (r *Room) Drop(cid string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.cids[cid]
	if !ok {
		return "", false
	}
	p.Active = false
	p.Disconnected = true
	return p.Name, true
}

// DeactivateAll benches every participant, typically after restoring a
// snapshot: nobody restored from disk is actually connected yet.
func (r *Room) DeactivateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants {
		p.Active = false
		p.Disconnected = false
	}
}

func (r *Room) assignNewHostIfNecessary(preferred string) (string, bool) {
	for _, p := range r.participants {
		if p.IsHost {
			return p.Name, true
		}
	}
	if preferred != "" {
		if p := r.findParticipant(preferred); p != nil && p.Active {
			p.IsHost = true
			return p.Name, true
		}
	}
	for _, p := range r.participants {
		if p.Active && p.Participating {
			p.IsHost = true
			return p.Name, true
		}
	}
	for _, p := range r.participants {
		if p.Active {
			p.IsHost = true
			return p.Name, true
		}
	}
	return "", false
}

// AssignNewHostIfNecessary promotes a host if none exists: the named
// active participant first, then the earliest-joined active estimator,
// then any active participant. No-op while a host is present.
func (r *Room) AssignNewHostIfNecessary(preferred string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.assignNewHostIfNecessary(preferred)
}

// Vote lifecycle

func isNumericVote(value string) bool {
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

// SetVote records a vote token for the named participant, overwriting
// any earlier vote. A vote landing after a reveal is kept rather than
// rejected; refusing it would race against in-flight messages. Special
// tokens are dropped when the room disallows them.
func (r *Room) SetVote(name, value string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findParticipant(name)
	if p == nil {
		return false
	}
	if value != "" && !isNumericVote(value) && !r.settings.AllowSpecials {
		return false
	}
	p.Vote = value

	if r.settings.AutoRevealEnabled && !r.votesRevealed && r.allVotesIn() {
		r.votesRevealed = true
	}
	return true
}

func (r *Room) allVotesIn() bool {
	voters := 0
	for _, p := range r.participants {
		if p.Active && p.Participating {
			voters++
			if p.Vote == "" {
				return false
			}
		}
	}
	return voters > 0
}

// Reveal exposes the current votes without altering them.
func (r *Room) Reveal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.votesRevealed = true
}

// Reset clears every vote and hides them for the next round.
// Active/participating/host flags are untouched.
func (r *Room) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.votesRevealed {
		r.roundsPlayed++
	}
	r.votesRevealed = false
	for _, p := range r.participants {
		p.Vote = ""
	}
}

func (r *Room) Revealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.votesRevealed
}

func (r *Room) average() (float64, bool) {
	sum := 0.0
	count := 0
	for _, p := range r.participants {
		if !p.Participating || p.Vote == "" {
			continue
		}
		v, err := strconv.ParseFloat(p.Vote, 64)
		if err != nil {
			// Special token, excluded from the mean
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// Average returns the arithmetic mean of the numeric votes. The second
// return is false when no numeric vote exists; callers must render
// that as "no value", never as zero.
func (r *Room) Average() (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.average()
}

// Settings and topic

func (r *Room) Settings() Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

func (r *Room) UpdateSettings(s Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = s
}

func (r *Room) SetTopic(label, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topicLabel = label
	r.topicURL = url
}

// View is a consistent deep copy of room state, safe to read without
// holding the room lock.
type View struct {
	Code          string
	TopicLabel    string
	TopicURL      string
	VotesRevealed bool
	Settings      Settings
	RoundsPlayed  int
	Participants  []Participant
}

func (r *Room) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()

	parts := make([]Participant, len(r.participants))
	for i, p := range r.participants {
		parts[i] = *p
	}
	return View{
		Code:          r.code,
		TopicLabel:    r.topicLabel,
		TopicURL:      r.topicURL,
		VotesRevealed: r.votesRevealed,
		Settings:      r.settings,
		RoundsPlayed:  r.roundsPlayed,
		Participants:  parts,
	}
}

// Restore repopulates a room from snapshot data. Host flags are taken
// as-is; host promotion does not run here.
func (r *Room) Restore(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.topicLabel = v.TopicLabel
	r.topicURL = v.TopicURL
	r.votesRevealed = v.VotesRevealed
	r.settings = v.Settings
	r.roundsPlayed = v.RoundsPlayed
	r.participants = make([]*Participant, len(v.Participants))
	for i := range v.Participants {
		p := v.Participants[i]
		r.participants[i] = &p
	}
}
