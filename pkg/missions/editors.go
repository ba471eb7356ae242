package missions

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrNoSuchLog       = errors.New("no flight log with that id")
)

// Documents edits the ordered document list of the open mission. All
// mutation goes through the dispatcher as a whole-field patch; documents are
// display-ordered rows and stay index-addressed.
type Documents struct {
	d *Dispatcher
}

func (d *Dispatcher) Documents() Documents { return Documents{d: d} }

func (e Documents) Add() error {
	m, ok := e.d.Current()
	if !ok {
		return ErrNoOpenMission
	}

	next := append(append([]Document{}, m.Documents...), Document{Name: "Document", URL: ""})
	return e.d.ApplyField(FieldDocuments, next)
}

func (e Documents) SetName(index int, name string) error {
	return e.set(index, func(doc *Document) { doc.Name = name })
}

func (e Documents) SetURL(index int, url string) error {
	return e.set(index, func(doc *Document) { doc.URL = url })
}

// Remove splices out the document at index, preserving the relative order of
// the rest.
func (e Documents) Remove(index int) error {
	m, ok := e.d.Current()
	if !ok {
		return ErrNoOpenMission
	}
	if index < 0 || index >= len(m.Documents) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}

	next := make([]Document, 0, len(m.Documents)-1)
	next = append(next, m.Documents[:index]...)
	next = append(next, m.Documents[index+1:]...)
	return e.d.ApplyField(FieldDocuments, next)
}

func (e Documents) set(index int, mutate func(*Document)) error {
	m, ok := e.d.Current()
	if !ok {
		return ErrNoOpenMission
	}
	if index < 0 || index >= len(m.Documents) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}

	next := append([]Document{}, m.Documents...)
	mutate(&next[index])
	return e.d.ApplyField(FieldDocuments, next)
}

// Checklist edits the fixed-key safety checklist of the open mission.
type Checklist struct {
	d *Dispatcher
}

func (d *Dispatcher) Checklist() Checklist { return Checklist{d: d} }

// Toggle flips the completion state of one checklist item. Keys outside the
// fixed set are rejected, so unknown keys never reach the record.
func (e Checklist) Toggle(key string) error {
	if !IsChecklistKey(key) {
		return fmt.Errorf("unknown checklist key: %s", key)
	}

	m, ok := e.d.Current()
	if !ok {
		return ErrNoOpenMission
	}

	next := make(map[string]bool, len(m.Checklist)+1)
	for k, v := range m.Checklist {
		next[k] = v
	}
	next[key] = !next[key]

	return e.d.ApplyField(FieldChecklist, next)
}

// FlightLogs edits the flight log entries of the open mission. Entries are
// addressed by their stable client-generated id, never by position, so
// concurrent inserts and removals cannot retarget a mutation.
type FlightLogs struct {
	d *Dispatcher
}

func (d *Dispatcher) FlightLogs() FlightLogs { return FlightLogs{d: d} }

// Add appends a log entry with default times and a fresh id, and returns the
// id.
func (e FlightLogs) Add() (string, error) {
	m, ok := e.d.Current()
	if !ok {
		return "", ErrNoOpenMission
	}

	id := newLogID(m.Logs)
	entry := FlightLog{
		ID:      id,
		Start:   "00:00",
		End:     "00:00",
		Battery: "100",
	}

	next := append(append([]FlightLog{}, m.Logs...), entry)
	if err := e.d.ApplyField(FieldLogs, next); err != nil {
		return "", err
	}
	return id, nil
}

func (e FlightLogs) SetStart(id, start string) error {
	return e.set(id, func(l *FlightLog) { l.Start = start })
}

func (e FlightLogs) SetEnd(id, end string) error {
	return e.set(id, func(l *FlightLog) { l.End = end })
}

func (e FlightLogs) SetBattery(id, battery string) error {
	return e.set(id, func(l *FlightLog) { l.Battery = battery })
}

func (e FlightLogs) SetNotes(id, notes string) error {
	return e.set(id, func(l *FlightLog) { l.Notes = notes })
}

func (e FlightLogs) Remove(id string) error {
	m, ok := e.d.Current()
	if !ok {
		return ErrNoOpenMission
	}

	next := make([]FlightLog, 0, len(m.Logs))
	found := false
	for _, l := range m.Logs {
		if l.ID == id {
			found = true
			continue
		}
		next = append(next, l)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNoSuchLog, id)
	}

	return e.d.ApplyField(FieldLogs, next)
}

func (e FlightLogs) set(id string, mutate func(*FlightLog)) error {
	m, ok := e.d.Current()
	if !ok {
		return ErrNoOpenMission
	}

	next := append([]FlightLog{}, m.Logs...)
	for i := range next {
		if next[i].ID == id {
			mutate(&next[i])
			return e.d.ApplyField(FieldLogs, next)
		}
	}

	return fmt.Errorf("%w: %s", ErrNoSuchLog, id)
}

// newLogID generates a timestamp-based id, bumped until unique within the
// mission so two entries added in the same millisecond cannot collide.
func newLogID(existing []FlightLog) string {
	ts := time.Now().UnixMilli()
	for {
		id := strconv.FormatInt(ts, 10)
		taken := false
		for _, l := range existing {
			if l.ID == id {
				taken = true
				break
			}
		}
		if !taken {
			return id
		}
		ts++
	}
}
