package missions

import (
	"errors"
)

// PadState is the lifecycle state of one signature pad.
type PadState int

const (
	PadEmpty PadState = iota
	PadDrawing
	PadCaptured
)

func (s PadState) String() string {
	switch s {
	case PadEmpty:
		return "Empty"
	case PadDrawing:
		return "Drawing"
	case PadCaptured:
		return "Captured"
	default:
		return "InvalidState"
	}
}

// Point is one sampled pointer position on the pad, in pad-local pixels.
type Point struct {
	X float64
	Y float64
}

// Rasterizer turns stroke paths into an image payload stored in the
// signature field.
type Rasterizer func(strokes [][]Point) (string, error)

// SignaturePad captures one signature: pilot or client, each pad with fully
// isolated state.
//
// Pointer-down on an empty pad starts a stroke; movement extends it;
// pointer-up captures the pad and pushes the rasterized payload through the
// dispatcher to the pad's signature field. A captured pad ignores further
// strokes until cleared: Clear returns the pad to empty and patches the
// field to null.
type SignaturePad struct {
	field   string
	d       *Dispatcher
	raster  Rasterizer
	state   PadState
	strokes [][]Point
	current []Point
}

// PilotPad returns the pad bound to the pilot signature field.
func (d *Dispatcher) PilotPad() *SignaturePad {
	return newPad(d, FieldSignaturePilote)
}

// ClientPad returns the pad bound to the client signature field.
func (d *Dispatcher) ClientPad() *SignaturePad {
	return newPad(d, FieldSignatureClient)
}

func newPad(d *Dispatcher, field string) *SignaturePad {
	return &SignaturePad{
		field:  field,
		d:      d,
		raster: RasterizePNG,
		state:  PadEmpty,
	}
}

// SetRasterizer replaces the payload renderer. Must be called before drawing
// starts.
func (p *SignaturePad) SetRasterizer(r Rasterizer) { p.raster = r }

func (p *SignaturePad) State() PadState { return p.state }

// Down handles a pointer/touch press. Only an empty pad starts drawing; a
// captured pad shows the static image until explicitly cleared.
func (p *SignaturePad) Down(pt Point) {
	if p.state != PadEmpty {
		return
	}
	p.state = PadDrawing
	p.current = []Point{pt}
}

// Move extends the current stroke while drawing.
func (p *SignaturePad) Move(pt Point) {
	if p.state != PadDrawing {
		return
	}
	p.current = append(p.current, pt)
}

// Up ends the stroke, captures the pad and dispatches the rasterized payload
// to the signature field.
func (p *SignaturePad) Up() error {
	if p.state != PadDrawing {
		return nil
	}

	p.strokes = append(p.strokes, p.current)
	p.current = nil
	p.state = PadCaptured

	payload, err := p.raster(p.strokes)
	if err != nil {
		// Capture failed entirely: drop back to empty rather than holding a
		// captured pad with nothing behind it.
		p.state = PadEmpty
		p.strokes = nil
		return err
	}
	if payload == "" {
		p.state = PadEmpty
		p.strokes = nil
		return errors.New("rasterizer produced empty payload")
	}

	return p.d.ApplyField(p.field, payload)
}

// Clear empties the pad from any state and patches the signature field to
// null.
func (p *SignaturePad) Clear() error {
	p.state = PadEmpty
	p.strokes = nil
	p.current = nil
	return p.d.ApplyField(p.field, nil)
}
