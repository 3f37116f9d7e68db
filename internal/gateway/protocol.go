package gateway

import (
	"time"

	"github.com/MrWong99/dictaflow/internal/archive"
	"github.com/MrWong99/dictaflow/pkg/types"
)

// Command names accepted over the websocket.
const (
	cmdStart        = "start"
	cmdStop         = "stop"
	cmdEdit         = "edit"
	cmdEnrich       = "enrich"
	cmdPromptList   = "prompt_list"
	cmdPromptGet    = "prompt_get"
	cmdPromptSave   = "prompt_save"
	cmdPromptDelete = "prompt_delete"
	cmdArchive      = "archive"
	cmdSearch       = "search"
)

// command is an inbound JSON text message. Which fields are meaningful
// depends on Type.
type command struct {
	Type string `json:"type"`

	// start / enrich / archive / search
	Project string `json:"project,omitempty"`

	// edit
	SegmentID *int `json:"segment_id,omitempty"`

	// edit (replacement text), prompt_save (prompt body), enrich (inline
	// transcript override)
	Text string `json:"text,omitempty"`

	// enrich / prompt_get / prompt_save / prompt_delete
	Prompt string `json:"prompt,omitempty"`

	// search
	Query string `json:"query,omitempty"`
	Mode  string `json:"mode,omitempty"` // "semantic" (default) or "text"
	Limit int    `json:"limit,omitempty"`
}

// event is an outbound JSON text message. Type selects which fields are set.
type event struct {
	Type string `json:"type"`

	// countdown
	RemainingMS int64 `json:"remaining_ms,omitempty"`
	Running     bool  `json:"running,omitempty"`

	// status
	Status string `json:"status,omitempty"`

	// segment
	Segment *segmentPayload `json:"segment,omitempty"`

	// error; Of names the command that failed when known
	Message string `json:"message,omitempty"`
	Of      string `json:"of,omitempty"`

	// draining
	QueueDepth int `json:"queue_depth,omitempty"`

	// enrichment
	Result string `json:"result,omitempty"`

	// prompts (prompt_list, prompt_get)
	Prompts []promptPayload `json:"prompts,omitempty"`

	// search results
	Hits []searchHit `json:"hits,omitempty"`
}

type segmentPayload struct {
	ID        int    `json:"id"`
	Text      string `json:"text"`
	StartMS   int64  `json:"start_ms"`
	EndMS     int64  `json:"end_ms"`
	AudioFile string `json:"audio_file,omitempty"`
	Uncertain bool   `json:"uncertain,omitempty"`
}

func toSegmentPayload(seg types.Segment) segmentPayload {
	return segmentPayload{
		ID:        seg.ID,
		Text:      seg.Text,
		StartMS:   seg.Start.Milliseconds(),
		EndMS:     seg.End.Milliseconds(),
		AudioFile: seg.AudioFile,
		Uncertain: seg.Uncertain,
	}
}

type promptPayload struct {
	Name      string    `json:"name"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toPromptPayload(p types.Prompt) promptPayload {
	return promptPayload{Name: p.Name, Text: p.Text, UpdatedAt: p.UpdatedAt}
}

type searchHit struct {
	Project    string         `json:"project"`
	Segment    segmentPayload `json:"segment"`
	RecordedAt time.Time      `json:"recorded_at"`

	// Distance is the cosine distance of a semantic hit; absent for text
	// search results.
	Distance *float64 `json:"distance,omitempty"`
}

func toSearchHit(e archive.Entry, distance *float64) searchHit {
	return searchHit{
		Project:    e.ProjectID,
		Segment:    toSegmentPayload(e.Segment),
		RecordedAt: e.RecordedAt,
		Distance:   distance,
	}
}
