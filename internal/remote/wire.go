package remote

import "encoding/json"

// EntityKind names a pullable collection.
type EntityKind string

const (
	EntityMessages    EntityKind = "messages"
	EntityMemberships EntityKind = "memberships"
	EntityChatRooms   EntityKind = "chat_rooms"
)

// EntityKinds lists every pullable collection in pull order.
var EntityKinds = []EntityKind{EntityChatRooms, EntityMemberships, EntityMessages}

// PushItem is one outbox mutation on the wire.
type PushItem struct {
	Seq       int64           `json:"seq"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt int64           `json:"createdAt"`
}

type pushRequest struct {
	DeviceID  string     `json:"deviceId"`
	Kind      string     `json:"kind"`
	Mutations []PushItem `json:"mutations"`
}

// ItemResult is the remote verdict on one pushed mutation. A refused item
// with Retry set failed for a passing reason and may be sent again.
type ItemResult struct {
	Seq      int64  `json:"seq"`
	Accepted bool   `json:"accepted"`
	Retry    bool   `json:"retry,omitempty"`
	Error    string `json:"error,omitempty"`
}

type pushResponse struct {
	Results []ItemResult `json:"results"`
}

// Page is one pull response: records changed since the requested watermark.
type Page struct {
	Records   []json.RawMessage `json:"records"`
	Watermark int64             `json:"watermark"`
	HasMore   bool              `json:"hasMore"`
}
