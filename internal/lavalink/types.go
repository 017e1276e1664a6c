package lavalink

import (
	"encoding/json"
	"time"

	"github.com/keshon/lavaplayer/internal/music/track"
)

// EventType names the node callbacks forwarded to the player manager.
type EventType string

const (
	EventNodeReady      EventType = "NodeReady"
	EventNodeClosed     EventType = "NodeClosed"
	EventPlayerUpdate   EventType = "PlayerUpdate"
	EventTrackStart     EventType = "TrackStartEvent"
	EventTrackEnd       EventType = "TrackEndEvent"
	EventTrackException EventType = "TrackExceptionEvent"
	EventTrackStuck     EventType = "TrackStuckEvent"
	EventVoiceClosed    EventType = "WebSocketClosedEvent"
)

// Event is a decoded node callback. GuildID is empty for node-wide events.
type Event struct {
	Type     EventType
	GuildID  string
	Track    *track.Track
	Reason   track.EndReason
	Error    string
	Position time.Duration
	Code     int
}

type wireTrack struct {
	Encoded string        `json:"encoded"`
	Info    wireTrackInfo `json:"info"`
}

type wireTrackInfo struct {
	Identifier string `json:"identifier"`
	IsSeekable bool   `json:"isSeekable"`
	Author     string `json:"author"`
	Length     int64  `json:"length"`
	IsStream   bool   `json:"isStream"`
	Position   int64  `json:"position"`
	Title      string `json:"title"`
	URI        string `json:"uri"`
	ArtworkURL string `json:"artworkUrl"`
	SourceName string `json:"sourceName"`
}

func (w *wireTrack) toTrack() *track.Track {
	if w == nil {
		return nil
	}
	return &track.Track{
		Encoded:    w.Encoded,
		Identifier: w.Info.Identifier,
		URI:        w.Info.URI,
		Title:      w.Info.Title,
		Author:     w.Info.Author,
		Length:     time.Duration(w.Info.Length) * time.Millisecond,
		IsStream:   w.Info.IsStream,
		IsSeekable: w.Info.IsSeekable,
		ArtworkURL: w.Info.ArtworkURL,
		SourceName: w.Info.SourceName,
		Position:   time.Duration(w.Info.Position) * time.Millisecond,
	}
}

type wireException struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause"`
}

// message is the union of every op the node sends over the websocket.
type message struct {
	Op        string `json:"op"`
	SessionID string `json:"sessionId"`
	Resumed   bool   `json:"resumed"`
	GuildID   string `json:"guildId"`

	State *struct {
		Time      int64 `json:"time"`
		Position  int64 `json:"position"`
		Connected bool  `json:"connected"`
		Ping      int   `json:"ping"`
	} `json:"state"`

	Type      string         `json:"type"`
	Track     *wireTrack     `json:"track"`
	Reason    string         `json:"reason"`
	Exception *wireException `json:"exception"`
	Threshold int64          `json:"thresholdMs"`
	Code      int            `json:"code"`
	ByRemote  bool           `json:"byRemote"`

	Players int `json:"players"`
}

type loadResponse struct {
	LoadType string          `json:"loadType"`
	Data     json.RawMessage `json:"data"`
}

type playlistData struct {
	Info struct {
		Name          string `json:"name"`
		SelectedTrack int    `json:"selectedTrack"`
	} `json:"info"`
	Tracks []wireTrack `json:"tracks"`
}

type trackUpdate struct {
	Encoded *string `json:"encoded"`
}

type voiceUpdate struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

type playerUpdate struct {
	Track    *trackUpdate `json:"track,omitempty"`
	Position *int64       `json:"position,omitempty"`
	Paused   *bool        `json:"paused,omitempty"`
	Volume   *int         `json:"volume,omitempty"`
	Voice    *voiceUpdate `json:"voice,omitempty"`
}

type errorResponse struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Path    string `json:"path"`
}
