package domain

// Names of the push events emitted to subscribers.
const (
	EventRecordCreated       = "new-fiche"
	EventVisibilityChanged   = "visibility-changed"
	EventDownloadableChanged = "downloadable-changed"
	EventRecordUpdated       = "update-fiche"
	EventRecordDeleted       = "delete-fiche"
)

// ChangeEvent describes a committed mutation of the record set.
// It only exists on the wire to subscribers and is never persisted.
type ChangeEvent interface {
	EventName() string
	// Payload is the value serialized as the event data.
	Payload() any
}

// RecordCreated is emitted once per inserted record.
type RecordCreated struct {
	Record Record
}

func (e RecordCreated) EventName() string { return EventRecordCreated }
func (e RecordCreated) Payload() any      { return e.Record }

type VisibilityChanged struct {
	ID      string `json:"id"`
	Visible bool   `json:"visible"`
}

func (e VisibilityChanged) EventName() string { return EventVisibilityChanged }
func (e VisibilityChanged) Payload() any      { return e }

type DownloadableChanged struct {
	ID           string `json:"id"`
	Downloadable bool   `json:"downloadable"`
}

func (e DownloadableChanged) EventName() string { return EventDownloadableChanged }
func (e DownloadableChanged) Payload() any      { return e }

// RecordUpdated carries the full post-update record.
type RecordUpdated struct {
	Record Record
}

func (e RecordUpdated) EventName() string { return EventRecordUpdated }
func (e RecordUpdated) Payload() any      { return e.Record }

type RecordDeleted struct {
	ID string `json:"id"`
}

func (e RecordDeleted) EventName() string { return EventRecordDeleted }
func (e RecordDeleted) Payload() any      { return e }
