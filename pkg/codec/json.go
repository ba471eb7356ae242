package codec

import (
	"encoding/json"
	"io"
)

// JSON is the default wire codec. The remote store speaks JSON-RPC over
// websocket text frames.
type JSON struct{}

func NewJSON() *JSON { return &JSON{} }

func (*JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (*JSON) Unmarshal(data []byte, dst any) error {
	return json.Unmarshal(data, dst)
}

func (*JSON) NewEncoder(w io.Writer) Encoder {
	return json.NewEncoder(w)
}

func (*JSON) NewDecoder(r io.Reader) Decoder {
	return json.NewDecoder(r)
}
