// Package stored defines the durable snapshot shape of a room and the
// codec between it and the live aggregate. The JSON field names are a
// contract: other tools read these files.
package stored

import "time"

type Settings struct {
	SequenceID        string `json:"sequenceId"`
	AutoRevealEnabled bool   `json:"autoRevealEnabled"`
	AllowSpecials     bool   `json:"allowSpecials"`
	TopicVisible      bool   `json:"topicVisible"`
}

// Lightweight participant projection: connection state and CIDs are
// live-tier concerns and never persisted.
type Participant struct {
	Name          string `json:"name"`
	Host          bool   `json:"host"`
	Participating bool   `json:"participating"`
	Active        bool   `json:"active"`
	Vote          string `json:"vote,omitempty"`
}

type Stats struct {
	RoundsPlayed int      `json:"roundsPlayed"`
	LastAverage  *float64 `json:"lastAverage,omitempty"`
}

type HistoryEntry struct {
	At     time.Time `json:"at"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
}

type Room struct {
	Code         string         `json:"code"`
	Title        string         `json:"title,omitempty"`
	Owner        string         `json:"owner,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	TopicLabel   string         `json:"topicLabel,omitempty"`
	TopicURL     string         `json:"topicUrl,omitempty"`
	PasswordHash string         `json:"passwordHash,omitempty"`
	Settings     Settings       `json:"settings"`
	Participants []Participant  `json:"participants"`
	Stats        *Stats         `json:"stats,omitempty"`
	History      []HistoryEntry `json:"history,omitempty"`
}
