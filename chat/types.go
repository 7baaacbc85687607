package chat

// Request is one user turn.
type Request struct {
	Message     string
	SessionID   string // A new session is created when empty
	UseSearch   bool   // Skip document retrieval
	Image       []byte // Optional attached image
	ImageFormat string // e.g. "png"
}

// Source is a retrieved document as shown to the user.
type Source struct {
	Content string   `json:"content"`
	Source  string   `json:"source"`
	Score   *float64 `json:"score"`
}

// Response is the reply to a non-streaming request.
type Response struct {
	Content   string         `json:"content"`
	SessionID string         `json:"session_id"`
	Sources   []Source       `json:"sources"`
	Metadata  map[string]any `json:"metadata"`
}

// Event names sent while streaming.
const (
	EventMetadata = "metadata"
	EventToken    = "token"
	EventDone     = "done"
	EventError    = "error"
)

// Event is one server-sent event. Data is one of the *Event payload types.
type Event struct {
	Name string
	Data any
}

// MetadataEvent opens a stream.
type MetadataEvent struct {
	SessionID  string   `json:"session_id"`
	Sources    []Source `json:"sources"`
	HasContext bool     `json:"has_context"`
}

// TokenEvent carries one generated token.
type TokenEvent struct {
	Token string `json:"token"`
}

// DoneEvent closes a successful stream.
type DoneEvent struct {
	SessionID   string `json:"session_id"`
	FullContent string `json:"full_content"`
}

// ErrorEvent closes a failed stream.
type ErrorEvent struct {
	Error string `json:"error"`
}

// EmitFunc delivers a stream event. Returning an error aborts the stream.
type EmitFunc func(Event) error
