package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// Geolocation is the coordinate payload attached to a check-in or check-out.
type Geolocation struct {
	Lat      float64
	Lon      float64
	Accuracy *float64
}

// SummaryLine renders the coordinates (and accuracy radius when reported)
// plus a map link for the message tail.
func (g *Geolocation) SummaryLine() string {
	acc := ""
	if g.Accuracy != nil {
		acc = fmt.Sprintf(" (±%.0f m)", *g.Accuracy)
	}
	return fmt.Sprintf("location %.5f,%.5f%s\nhttps://maps.google.com/?q=%.5f,%.5f", g.Lat, g.Lon, acc, g.Lat, g.Lon)
}

// SideEffect is the reported status of one best-effort step that followed a
// committed ledger write: a marker fill, a side-date write, a chat message, a
// tracking call. Side-effect failures never roll back the main write; they
// are surfaced here instead of being discarded.
type SideEffect struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// Outcome is the full report of one applied action: the composed caption and
// the status of every side effect attempted after the main write.
type Outcome struct {
	ID       string       `json:"id"`
	Employee string       `json:"employee"`
	Action   string       `json:"action"`
	Caption  string       `json:"caption"`
	Effects  []SideEffect `json:"effects"`
}

func newOutcome(employee, action string) *Outcome {
	return &Outcome{ID: uuid.NewString(), Employee: employee, Action: action}
}

func (o *Outcome) record(kind, target string, err error) {
	eff := SideEffect{Kind: kind, Target: target, OK: err == nil}
	if err != nil {
		eff.Error = err.Error()
	}
	o.Effects = append(o.Effects, eff)
}

// BatchResult is one employee's result within a brigade check.
type BatchResult struct {
	Employee string `json:"employee"`
	Status   string `json:"outcome"` // "ok" or "error"
	Message  string `json:"message"`
}

// BatchOutcome reports a brigade check: one result per selected employee.
// Partial success is the expected shape, not an error.
type BatchOutcome struct {
	ID      string        `json:"id"`
	Results []BatchResult `json:"results"`
}
