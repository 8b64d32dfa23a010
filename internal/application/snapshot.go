package application

import (
	"time"

	"github.com/bnema/parley/internal/domain"
)

type SpeakerView struct {
	AgentID   domain.AgentID `json:"agent_id"`
	Text      string         `json:"text"`
	StartedAt time.Time      `json:"started_at"`
	EndsAt    time.Time      `json:"ends_at"`
}

type UtteranceView struct {
	AgentID domain.AgentID `json:"agent_id"`
	Text    string         `json:"text"`
}

type ConversationView struct {
	ID           domain.ConversationID `json:"id"`
	State        string                `json:"state"`
	Location     domain.Vec2           `json:"location"`
	Participants []domain.AgentID      `json:"participants"`
	Speaker      *SpeakerView          `json:"speaker,omitempty"`
	Queue        []domain.AgentID      `json:"queue"`
	History      []UtteranceView       `json:"history"`
}

type RateView struct {
	Capacity  int       `json:"capacity"`
	Remaining int       `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}

// Snapshot is a read-only copy of the simulation state at one instant.
type Snapshot struct {
	At            time.Time          `json:"at"`
	Tick          uint64             `json:"tick"`
	Conversations []ConversationView `json:"conversations"`
	Monologues    []SpeakerView      `json:"monologues,omitempty"`
	Pending       map[string]int     `json:"pending"`
	InFlight      int                `json:"in_flight"`
	Rate          RateView           `json:"rate"`
}

func (s *Simulation) Snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		At:       now,
		Tick:     s.scheduler.Tick(),
		Pending:  s.scheduler.PendingByBand(),
		InFlight: s.scheduler.InFlight(),
		Rate: RateView{
			Capacity:  s.window.Capacity,
			Remaining: s.window.Remaining,
			ResetsAt:  s.window.ResetsAt(),
		},
	}

	for _, conv := range s.registry.All() {
		view := ConversationView{
			ID:           conv.ID,
			State:        conv.State.String(),
			Location:     conv.Location,
			Participants: append([]domain.AgentID(nil), conv.Participants...),
			Queue:        append([]domain.AgentID(nil), conv.SpeakerQueue...),
		}
		if conv.CurrentSpeaker != "" {
			if st, ok := s.turns.SpeakingFor(conv.CurrentSpeaker); ok {
				view.Speaker = speakerView(st)
			}
		}
		for _, u := range conv.History {
			view.History = append(view.History, UtteranceView{AgentID: u.AgentID, Text: u.Text})
		}
		snap.Conversations = append(snap.Conversations, view)
	}

	for _, agent := range s.world.Agents() {
		st, ok := s.turns.SpeakingFor(agent)
		if ok && st.ConversationID == "" {
			snap.Monologues = append(snap.Monologues, *speakerView(st))
		}
	}

	return snap
}

func speakerView(st domain.SpeakingState) *SpeakerView {
	return &SpeakerView{
		AgentID:   st.AgentID,
		Text:      st.Text,
		StartedAt: st.StartedAt,
		EndsAt:    st.EndsAt,
	}
}
