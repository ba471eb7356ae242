package missions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentsAdd(t *testing.T) {
	d := newTestDispatcher(t, &recordingSender{})
	openMission(d)
	docs := d.Documents()

	require.NoError(t, docs.Add())
	require.NoError(t, docs.Add())

	m, _ := d.Current()
	require.Len(t, m.Documents, 2)
	assert.Equal(t, "Document", m.Documents[0].Name)
}

func TestDocumentsEditByIndex(t *testing.T) {
	d := newTestDispatcher(t, &recordingSender{})
	openMission(d)
	docs := d.Documents()

	require.NoError(t, docs.Add())
	require.NoError(t, docs.SetName(0, "Autorisation préfecture"))
	require.NoError(t, docs.SetURL(0, "https://docs.example/pref.pdf"))

	m, _ := d.Current()
	assert.Equal(t, "Autorisation préfecture", m.Documents[0].Name)
	assert.Equal(t, "https://docs.example/pref.pdf", m.Documents[0].URL)

	assert.Error(t, docs.SetName(5, "nope"))
	assert.Error(t, docs.SetName(-1, "nope"))
}

func TestDocumentsRemovePreservesOrder(t *testing.T) {
	d := newTestDispatcher(t, &recordingSender{})
	openMission(d)
	docs := d.Documents()

	names := []string{"a", "b", "c", "d"}
	for i, n := range names {
		require.NoError(t, docs.Add())
		require.NoError(t, docs.SetName(i, n))
	}

	require.NoError(t, docs.Remove(1))

	m, _ := d.Current()
	require.Len(t, m.Documents, 3)
	assert.Equal(t, "a", m.Documents[0].Name)
	assert.Equal(t, "c", m.Documents[1].Name)
	assert.Equal(t, "d", m.Documents[2].Name)

	assert.Error(t, docs.Remove(3))
}

func TestChecklistToggleIdempotentUnderDoubleToggle(t *testing.T) {
	d := newTestDispatcher(t, &recordingSender{})
	openMission(d)
	cl := d.Checklist()

	key := ChecklistKeys[0]

	require.NoError(t, cl.Toggle(key))
	m, _ := d.Current()
	assert.True(t, m.Checklist[key])

	require.NoError(t, cl.Toggle(key))
	m, _ = d.Current()
	assert.False(t, m.Checklist[key])
}

func TestChecklistRejectsUnknownKey(t *testing.T) {
	d := newTestDispatcher(t, &recordingSender{})
	openMission(d)

	err := d.Checklist().Toggle("parachute")
	assert.Error(t, err)

	m, _ := d.Current()
	assert.NotContains(t, m.Checklist, "parachute")
}

func TestFlightLogsAdd(t *testing.T) {
	d := newTestDispatcher(t, &recordingSender{})
	openMission(d)
	logs := d.FlightLogs()

	id1, err := logs.Add()
	require.NoError(t, err)
	id2, err := logs.Add()
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2, "log ids must be unique within a mission")

	m, _ := d.Current()
	require.Len(t, m.Logs, 2)
	assert.Equal(t, "00:00", m.Logs[0].Start)
	assert.Equal(t, "100", m.Logs[0].Battery)
}

func TestFlightLogsEditByID(t *testing.T) {
	d := newTestDispatcher(t, &recordingSender{})
	openMission(d)
	logs := d.FlightLogs()

	first, err := logs.Add()
	require.NoError(t, err)
	second, err := logs.Add()
	require.NoError(t, err)

	// Removing the first entry must not retarget edits addressed to the
	// second one.
	require.NoError(t, logs.Remove(first))
	require.NoError(t, logs.SetStart(second, "12:00"))
	require.NoError(t, logs.SetEnd(second, "12:30"))
	require.NoError(t, logs.SetBattery(second, "72"))
	require.NoError(t, logs.SetNotes(second, "RAS"))

	m, _ := d.Current()
	require.Len(t, m.Logs, 1)
	assert.Equal(t, second, m.Logs[0].ID)
	assert.Equal(t, "12:00", m.Logs[0].Start)
	assert.Equal(t, "12:30", m.Logs[0].End)
	assert.Equal(t, "72", m.Logs[0].Battery)
	assert.Equal(t, "RAS", m.Logs[0].Notes)

	assert.ErrorIs(t, logs.SetStart(first, "09:00"), ErrNoSuchLog)
	assert.ErrorIs(t, logs.Remove(first), ErrNoSuchLog)
}

func TestFlightLogsTotal(t *testing.T) {
	d := newTestDispatcher(t, &recordingSender{})
	openMission(d)
	logs := d.FlightLogs()

	id1, err := logs.Add()
	require.NoError(t, err)
	id2, err := logs.Add()
	require.NoError(t, err)

	require.NoError(t, logs.SetStart(id1, "12:00"))
	require.NoError(t, logs.SetEnd(id1, "12:30"))
	require.NoError(t, logs.SetStart(id2, "13:00"))
	require.NoError(t, logs.SetEnd(id2, "13:45"))

	m, _ := d.Current()
	assert.Equal(t, 75, TotalMinutes(m))
}

func TestEditorsRequireOpenMission(t *testing.T) {
	d := newTestDispatcher(t, &recordingSender{})

	assert.ErrorIs(t, d.Documents().Add(), ErrNoOpenMission)
	assert.ErrorIs(t, d.Checklist().Toggle(ChecklistKeys[0]), ErrNoOpenMission)
	_, err := d.FlightLogs().Add()
	assert.ErrorIs(t, err, ErrNoOpenMission)
}
