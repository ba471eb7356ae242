package missions

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drawStroke(p *SignaturePad) {
	p.Down(Point{X: 10, Y: 10})
	p.Move(Point{X: 40, Y: 25})
	p.Move(Point{X: 80, Y: 12})
	_ = p.Up()
}

func TestSignatureCaptureLifecycle(t *testing.T) {
	d := newTestDispatcher(t, &recordingSender{})
	openMission(d)

	pad := d.PilotPad()
	assert.Equal(t, PadEmpty, pad.State())

	pad.Down(Point{X: 10, Y: 10})
	assert.Equal(t, PadDrawing, pad.State())

	pad.Move(Point{X: 40, Y: 25})
	pad.Move(Point{X: 80, Y: 12})

	require.NoError(t, pad.Up())
	assert.Equal(t, PadCaptured, pad.State())

	m, _ := d.Current()
	require.NotNil(t, m.SignaturePilote)
	assert.True(t, strings.HasPrefix(*m.SignaturePilote, "data:image/png;base64,"))
}

func TestSignatureCapturedPadIgnoresStrokes(t *testing.T) {
	d := newTestDispatcher(t, &recordingSender{})
	openMission(d)

	pad := d.PilotPad()
	drawStroke(pad)
	require.Equal(t, PadCaptured, pad.State())

	m, _ := d.Current()
	captured := *m.SignaturePilote

	// Further strokes require an explicit clear first.
	pad.Down(Point{X: 1, Y: 1})
	assert.Equal(t, PadCaptured, pad.State())
	pad.Move(Point{X: 2, Y: 2})
	require.NoError(t, pad.Up())

	m, _ = d.Current()
	assert.Equal(t, captured, *m.SignaturePilote)
}

func TestSignatureClear(t *testing.T) {
	d := newTestDispatcher(t, &recordingSender{})
	openMission(d)

	pad := d.ClientPad()

	t.Run("from captured", func(t *testing.T) {
		drawStroke(pad)
		require.Equal(t, PadCaptured, pad.State())

		require.NoError(t, pad.Clear())
		assert.Equal(t, PadEmpty, pad.State())

		m, _ := d.Current()
		assert.Nil(t, m.SignatureClient)
	})

	t.Run("from drawing", func(t *testing.T) {
		pad.Down(Point{X: 5, Y: 5})
		require.Equal(t, PadDrawing, pad.State())

		require.NoError(t, pad.Clear())
		assert.Equal(t, PadEmpty, pad.State())
	})

	t.Run("from empty", func(t *testing.T) {
		require.NoError(t, pad.Clear())
		assert.Equal(t, PadEmpty, pad.State())
	})
}

func TestSignaturePadsAreIsolated(t *testing.T) {
	d := newTestDispatcher(t, &recordingSender{})
	openMission(d)

	pilot := d.PilotPad()
	client := d.ClientPad()

	drawStroke(pilot)

	assert.Equal(t, PadCaptured, pilot.State())
	assert.Equal(t, PadEmpty, client.State())

	m, _ := d.Current()
	assert.NotNil(t, m.SignaturePilote)
	assert.Nil(t, m.SignatureClient)
}

func TestRasterizePNG(t *testing.T) {
	payload, err := RasterizePNG([][]Point{{{X: 0, Y: 0}, {X: 100, Y: 50}}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(payload, "data:image/png;base64,"))

	_, err = RasterizePNG(nil)
	assert.Error(t, err)
}
