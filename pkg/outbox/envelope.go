package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PayloadEnvelope is the stable payload structure stored in outbox_events
// and delivered verbatim to tenant webhook endpoints.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	ClinicID   *uuid.UUID      `json:"clinicId,omitempty"`
	Data       json.RawMessage `json:"data"`
}
