package pskreporter

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"bandwatch/spot"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message mirrors the compact JSON PSKReporter publishes over MQTT. Field
// names are abbreviated on the wire to save bandwidth; values that should be
// numbers sometimes arrive as numeric strings, so the numeric fields decode
// through flexInt.
type Message struct {
	Timestamp   flexInt `json:"t"`    // primary timestamp, epoch seconds
	TimestampTX flexInt `json:"t_tx"` // fallback timestamp when t is absent
	Band        string  `json:"b"`
	Mode        string  `json:"md"`
	Frequency   flexInt `json:"f"`  // Hz
	Report      flexInt `json:"rp"` // SNR in dB
	SpottedCall string  `json:"sc"` // sender (station that was heard)
	SpottedGrid string  `json:"sl"`
	SpotterCall string  `json:"rc"` // receiver (station doing the hearing)
	SpotterGrid string  `json:"rl"`
}

// flexInt decodes an integer that may arrive as a JSON number, a numeric
// string, or garbage. Garbage leaves the value absent rather than failing the
// whole message: one unreadable field must not reject an otherwise good spot.
type flexInt struct {
	value   int64
	present bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if s == "" {
		return nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		f.value = v
		f.present = true
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		f.value = int64(v)
		f.present = true
	}
	// Present but not coercible: treat as absent, not as a parse failure.
	return nil
}

// Parse converts one raw feed message into a validated raw spot. All failure
// is communicated by returning nil; Parse never panics or returns an error,
// so a stream of mixed good and bad messages cannot stall ingestion.
//
// Band, mode and a usable timestamp (t, falling back to t_tx) are mandatory.
// Everything else is optional: blank strings normalize to absent, grids are
// capped at six characters, and uncoercible numerics are simply left unset.
func Parse(payload []byte) *spot.Spot {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil
	}

	ts := msg.Timestamp
	if !ts.present {
		ts = msg.TimestampTX
	}
	if !ts.present || ts.value <= 0 {
		return nil
	}

	s, err := spot.New(msg.Band, msg.Mode, time.Unix(ts.value, 0))
	if err != nil {
		return nil
	}

	if msg.Frequency.present {
		hz := msg.Frequency.value
		s.FrequencyHz = &hz
	}
	if msg.Report.present {
		snr := int(msg.Report.value)
		s.SNR = &snr
	}
	s.SpottedCall = strings.ToUpper(strings.TrimSpace(msg.SpottedCall))
	s.SpotterCall = strings.ToUpper(strings.TrimSpace(msg.SpotterCall))
	s.SpottedGrid = spot.TruncateGrid(strings.ToUpper(msg.SpottedGrid))
	s.SpotterGrid = spot.TruncateGrid(strings.ToUpper(msg.SpotterGrid))
	s.Source = SourceName
	return s
}
