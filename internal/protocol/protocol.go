// Package protocol defines the JSON messages exchanged with clients.
package protocol

import (
	"encoding/json"

	"github.com/mkraft/scrumdeck/internal/room"
)

// Inbound message types
const (
	TypeVote          = "vote"
	TypeReveal        = "reveal"
	TypeReset         = "reset"
	TypeRename        = "rename"
	TypeTopic         = "topic"
	TypeSettings      = "settings"
	TypeParticipating = "participating"
	TypeLeave         = "leave"
)

// Outbound message types
const (
	TypeState  = "state"
	TypeJoined = "joined"
)

// Inbound is the envelope for client events. Only the fields relevant
// to the type are populated.
type Inbound struct {
	Type          string    `json:"type"`
	Value         string    `json:"value,omitempty"`
	Name          string    `json:"name,omitempty"`
	Label         string    `json:"label,omitempty"`
	URL           string    `json:"url,omitempty"`
	Participating *bool     `json:"participating,omitempty"`
	Settings      *Settings `json:"settings,omitempty"`
}

type Settings struct {
	SequenceID        string `json:"sequenceId"`
	AutoRevealEnabled bool   `json:"autoRevealEnabled"`
	AllowSpecials     bool   `json:"allowSpecials"`
	TopicVisible      bool   `json:"topicVisible"`
}

// ParticipantState is a participant as clients see them. While votes
// are hidden only HasVoted is filled in; the concrete token appears
// once revealed.
type ParticipantState struct {
	Name          string `json:"name"`
	Host          bool   `json:"host"`
	Active        bool   `json:"active"`
	Participating bool   `json:"participating"`
	HasVoted      bool   `json:"hasVoted"`
	Vote          string `json:"vote,omitempty"`
}

// RoomState is the full document broadcast after every mutation.
// Average is absent (not zero) when no numeric vote exists.
type RoomState struct {
	Type          string             `json:"type"`
	Code          string             `json:"code"`
	TopicLabel    string             `json:"topicLabel,omitempty"`
	TopicURL      string             `json:"topicUrl,omitempty"`
	VotesRevealed bool               `json:"votesRevealed"`
	Average       *float64           `json:"average,omitempty"`
	Settings      Settings           `json:"settings"`
	Participants  []ParticipantState `json:"participants"`
}

// Joined confirms a join and carries the effective name after
// collision resolution.
type Joined struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Name string `json:"name"`
}

func ParseInbound(data []byte) (*Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EncodeState renders a room view into the broadcast document,
// withholding vote tokens until the reveal.
func EncodeState(v room.View, average *float64) ([]byte, error) {
	parts := make([]ParticipantState, len(v.Participants))
	for i, p := range v.Participants {
		parts[i] = ParticipantState{
			Name:          p.Name,
			Host:          p.IsHost,
			Active:        p.Active,
			Participating: p.Participating,
			HasVoted:      p.Vote != "",
		}
		if v.VotesRevealed {
			parts[i].Vote = p.Vote
		}
	}

	state := RoomState{
		Type:          TypeState,
		Code:          v.Code,
		VotesRevealed: v.VotesRevealed,
		Settings: Settings{
			SequenceID:        v.Settings.SequenceID,
			AutoRevealEnabled: v.Settings.AutoRevealEnabled,
			AllowSpecials:     v.Settings.AllowSpecials,
			TopicVisible:      v.Settings.TopicVisible,
		},
		Participants: parts,
	}
	if v.Settings.TopicVisible {
		state.TopicLabel = v.TopicLabel
		state.TopicURL = v.TopicURL
	}
	if v.VotesRevealed {
		state.Average = average
	}
	return json.Marshal(state)
}

func EncodeJoined(roomCode, name string) ([]byte, error) {
	return json.Marshal(Joined{Type: TypeJoined, Room: roomCode, Name: name})
}
