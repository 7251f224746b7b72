package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// PollPoint is a named location scored on every publishing cycle.
type PollPoint struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Snapshot is one scored nowcast published to the sink topic.
type Snapshot struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Lat         float64           `json:"lat"`
	Lon         float64           `json:"lon"`
	NX          int               `json:"nx"`
	NY          int               `json:"ny"`
	Base        Base              `json:"base"`
	Observation Observation       `json:"observation"`
	Defaulted   []string          `json:"defaulted,omitempty"`
	Result      SuitabilityResult `json:"result"`
	ProcessedAt time.Time         `json:"processed_at"`
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// NewSnapshot scores obs for point p and stamps it with the package clock.
func NewSnapshot(p PollPoint, cell GridCell, base Base, obs Observation) Snapshot {
	return Snapshot{
		ID:          snapshotID(p.Name, cell, base),
		Name:        p.Name,
		Lat:         p.Lat,
		Lon:         p.Lon,
		NX:          cell.NX,
		NY:          cell.NY,
		Base:        base,
		Observation: obs,
		Defaulted:   obs.DefaultedFields(),
		Result:      Score(obs),
		ProcessedAt: clock.Now().UTC(),
	}
}

// snapshotID is deterministic so replays of the same batch overwrite rather
// than duplicate downstream.
func snapshotID(name string, cell GridCell, base Base) string {
	input := fmt.Sprintf("%s|%d|%d|%s|%s", name, cell.NX, cell.NY, base.Date, base.Time)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:8])
}

// SerializeSnapshot marshals a snapshot into an OutputEvent keyed by its ID.
func SerializeSnapshot(s Snapshot) (OutputEvent, error) {
	value, err := json.Marshal(s)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("marshal snapshot: %w", err)
	}

	return OutputEvent{
		Key:   []byte(s.ID),
		Value: value,
		Headers: map[string]string{
			"grade":        string(s.Result.Grade),
			"processed_at": s.ProcessedAt.Format(time.RFC3339),
		},
	}, nil
}
