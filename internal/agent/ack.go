package agent

import (
	"encoding/json"
	"fmt"
	"time"
)

// AckTimeLayout formats the receive and send times of an ACK.
const AckTimeLayout = "2006-01-02 15:04:05.999"

// ackKeys are copied from the received message into the ACK.
var ackKeys = [...]string{"1", "2"}

// BuildACK builds the acknowledgement for a received payload. Keys "1" and
// "2" are copied verbatim ("" when absent), "3" and "4" carry now and "5"
// the receiving client ID. Payloads that are not JSON objects are rejected.
func BuildACK(payload []byte, clientID string, now time.Time) ([]byte, error) {
	var in map[string]json.RawMessage
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	ts, err := json.Marshal(now.Format(AckTimeLayout))
	if err != nil {
		return nil, err
	}
	id, err := json.Marshal(clientID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]json.RawMessage, 5)
	for _, k := range ackKeys {
		v, ok := in[k]
		if !ok || v == nil {
			v = json.RawMessage(`""`)
		}
		out[k] = v
	}
	out["3"] = ts
	out["4"] = ts
	out["5"] = id
	return json.Marshal(out)
}
