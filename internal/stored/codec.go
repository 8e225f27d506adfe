package stored

import (
	"github.com/mkraft/scrumdeck/internal/room"
)

// FromLive projects a live room view into its storage shape. Pure:
// no timestamps, password, stats, or history are filled in here;
// those belong to the persistence merge.
func FromLive(v room.View) *Room {
	parts := make([]Participant, len(v.Participants))
	for i, p := range v.Participants {
		parts[i] = Participant{
			Name:          p.Name,
			Host:          p.IsHost,
			Participating: p.Participating,
			Active:        p.Active,
			Vote:          p.Vote,
		}
	}
	return &Room{
		Code:       v.Code,
		TopicLabel: v.TopicLabel,
		TopicURL:   v.TopicURL,
		Settings: Settings{
			SequenceID:        v.Settings.SequenceID,
			AutoRevealEnabled: v.Settings.AutoRevealEnabled,
			AllowSpecials:     v.Settings.AllowSpecials,
			TopicVisible:      v.Settings.TopicVisible,
		},
		Participants: parts,
	}
}

// ToLive reconstructs a live room from a snapshot. Host flags are
// trusted as stored; host promotion is the session layer's job.
func ToLive(s *Room) *room.Room {
	r := room.NewRoom(s.Code)

	parts := make([]room.Participant, len(s.Participants))
	for i, p := range s.Participants {
		parts[i] = room.Participant{
			Name:          p.Name,
			Vote:          p.Vote,
			Active:        p.Active,
			Participating: p.Participating,
			IsHost:        p.Host,
		}
	}

	rounds := 0
	if s.Stats != nil {
		rounds = s.Stats.RoundsPlayed
	}
	r.Restore(room.View{
		Code:       s.Code,
		TopicLabel: s.TopicLabel,
		TopicURL:   s.TopicURL,
		Settings: room.Settings{
			SequenceID:        s.Settings.SequenceID,
			AutoRevealEnabled: s.Settings.AutoRevealEnabled,
			AllowSpecials:     s.Settings.AllowSpecials,
			TopicVisible:      s.Settings.TopicVisible,
		},
		RoundsPlayed: rounds,
		Participants: parts,
	})
	return r
}
