// Package missions implements the mission record engine: the data model, the
// live synchronizer against the remote store, the optimistic field patch
// dispatcher, the sub-record editors, signature capture and the
// remote-signing handoff.
package missions

import (
	"fmt"
	"time"

	"github.com/athmos-ops/missionsync/internal/rand"
)

// Collection is the remote collection mission records live in.
const Collection = "missions"

// RefPrefix is the prefix of the human-readable mission code.
const RefPrefix = "ATH"

// Document is one attached document, ordered by position.
type Document struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// FlightLog is one flight entry. ID is client-generated and unique within
// the mission; all log mutation is addressed by it, never by position.
type FlightLog struct {
	ID      string `json:"id"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Battery string `json:"battery"`
	Notes   string `json:"notes"`
}

// Mission is the root record. Scalar fields are independently patchable;
// json tags are the wire field names of the remote collection.
type Mission struct {
	ID              string          `json:"id,omitempty"`
	Owner           string          `json:"owner,omitempty"`
	Ref             string          `json:"ref"`
	Date            string          `json:"date"`
	Title           string          `json:"title"`
	Client          string          `json:"client"`
	Location        string          `json:"location"`
	Type            string          `json:"type"`
	Category        string          `json:"category"`
	Scenario        string          `json:"scenario"`
	FlightNotes     string          `json:"flightNotes"`
	TechNotes       string          `json:"techNotes"`
	Checklist       map[string]bool `json:"checklist"`
	Documents       []Document      `json:"documents"`
	Logs            []FlightLog     `json:"logs"`
	SignaturePilote *string         `json:"signaturePilote,omitempty"`
	SignatureClient *string         `json:"signatureClient,omitempty"`
	CreatedAt       int64           `json:"createdAt,omitempty"`
}

// MissionTypes is the enumerated mission-type set.
var MissionTypes = []string{
	"Inspection",
	"Photogrammetrie",
	"Prise de vue",
	"Surveillance",
	"Thermographie",
	"Autre",
}

// ChecklistKeys is the fixed safety checklist. Checklist maps never contain
// keys outside this set.
var ChecklistKeys = []string{
	"meteo",
	"zone",
	"notam",
	"batteries",
	"materiel",
	"assurance",
}

// ScenarioInfo is advisory regulatory text for a flight scenario. Not an
// enforced invariant.
type ScenarioInfo struct {
	Label string
	Info  string
}

// Scenarios is the static scenario-info table keyed by scenario code.
var Scenarios = map[string]ScenarioInfo{
	"S1": {Label: "S1", Info: "Hors zone peuplée, vue directe, distance max 200 m."},
	"S2": {Label: "S2", Info: "Hors zone peuplée, hors vue, distance max 1 km."},
	"S3": {Label: "S3", Info: "En agglomération, vue directe, distance max 100 m."},
	"S4": {Label: "S4", Info: "Hors zone peuplée, hors vue, sans limite de distance."},
}

// IsChecklistKey reports whether key belongs to the fixed checklist set.
func IsChecklistKey(key string) bool {
	for _, k := range ChecklistKeys {
		if k == key {
			return true
		}
	}
	return false
}

// IsMissionType reports whether t belongs to the mission-type set.
func IsMissionType(t string) bool {
	for _, mt := range MissionTypes {
		if mt == t {
			return true
		}
	}
	return false
}

// NewRef generates a human-readable mission code of the form ATH-YYYY-NNNN.
// NNNN is random; the ref is not guaranteed globally unique.
func NewRef(now time.Time) string {
	return fmt.Sprintf("%s-%d-%04d", RefPrefix, now.Year(), rand.IntN(10000))
}

// DefaultMission returns the deterministic defaults a mission is created
// with. Ref and Owner are filled in by CreateMission.
func DefaultMission() Mission {
	return Mission{
		Date:      "",
		Title:     "",
		Client:    "",
		Location:  "",
		Type:      MissionTypes[0],
		Category:  "",
		Scenario:  "S1",
		Checklist: map[string]bool{},
		Documents: []Document{},
		Logs:      []FlightLog{},
	}
}
