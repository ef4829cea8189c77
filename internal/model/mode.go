package model

// Mode selects an assistant behavior hint forwarded inside the system
// prompt. It has no other effect on the client's logic.
type Mode string

const (
	ModeNone   Mode = ""
	ModeSearch Mode = "search"
	ModeStudy  Mode = "study"
	ModeImage  Mode = "image"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeNone, ModeSearch, ModeStudy, ModeImage:
		return true
	}
	return false
}

// PromptClause returns the sentence appended to the system prompt for the
// mode, or "" for ModeNone.
func (m Mode) PromptClause() string {
	switch m {
	case ModeSearch:
		return " The user has enabled search mode: ground your answers in looked-up facts."
	case ModeStudy:
		return " The user has enabled study mode: explain step by step and quiz the user."
	case ModeImage:
		return " The user has enabled image mode: when asked for an image, include a line starting with IMAGE_URL: followed by the image location."
	default:
		return ""
	}
}
