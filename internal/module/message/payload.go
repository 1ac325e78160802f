package message

import (
	"encoding/json"
	"strings"

	"github.com/simp-lee/mqttbench/internal/domain"
)

// payload is the JSON body of a test message. Slaves echo keys "1" and "2"
// in their ACKs.
type payload struct {
	RunID string `json:"1"`
	Seq   int    `json:"2"`
	Pad   string `json:"3,omitempty"`
}

// padKeyOverhead is the length of `,"3":""`.
const padKeyOverhead = 7

// buildPayload returns message seq of a run, size bytes long when size leaves
// room for the run ID and sequence. Binary messages carry the same header
// followed by zero bytes, which slaves do not acknowledge.
func buildPayload(runID string, seq, size int, messageType string) ([]byte, error) {
	header, err := json.Marshal(payload{RunID: runID, Seq: seq})
	if err != nil {
		return nil, err
	}
	if len(header) >= size {
		return header, nil
	}

	if messageType == domain.MessageTypeBinary {
		body := make([]byte, size)
		copy(body, header)
		return body, nil
	}

	padLen := size - len(header) - padKeyOverhead
	if padLen <= 0 {
		return header, nil
	}
	return json.Marshal(payload{RunID: runID, Seq: seq, Pad: strings.Repeat("x", padLen)})
}
