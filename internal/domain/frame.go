package domain

import (
	"strings"
	"time"
)

// Frame is one screen capture.
type Frame struct {
	Data       []byte
	MimeType   string
	CapturedAt time.Time
}

// Foreground describes what the user is currently looking at.
type Foreground struct {
	// AppID is the frontmost application identifier (bundle id or name).
	AppID string `json:"appId"`
	// FocusRole is the accessibility role of the focused element, if known.
	FocusRole string `json:"focusRole,omitempty"`
}

var textInputRoles = map[string]bool{
	"axtextfield":   true,
	"axtextarea":    true,
	"axsearchfield": true,
	"axcombobox":    true,
	"textfield":     true,
	"textarea":      true,
	"searchfield":   true,
	"text_input":    true,
	"editable_text": true,
}

// FocusIsTextInput reports whether the focused element is a text input.
// An unknown focus role is not a text input.
func (f Foreground) FocusIsTextInput() bool {
	return textInputRoles[strings.ToLower(strings.TrimSpace(f.FocusRole))]
}
