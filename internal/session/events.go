package session

// EventType enumerates emitted progress events.
type EventType string

const (
	EventFolderStart  EventType = "folder_start"
	EventFetchDone    EventType = "fetch_done"
	EventBatchApplied EventType = "batch_applied"
)

// Event carries progress about the current folder or batch.
type Event struct {
	Type   EventType
	Folder string
	Total  int
	Done   int
}

// Events returns a read-only channel of progress events.
func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		// drop if slow consumer
	}
}
