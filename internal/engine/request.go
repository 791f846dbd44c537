package engine

import (
	"github.com/justyntemme/strop/internal/conflict"
	"github.com/justyntemme/strop/internal/index"
	"github.com/justyntemme/strop/internal/ops"
	"github.com/justyntemme/strop/internal/shell"
)

// Action is what a Request asks the engine to do.
type Action int

const (
	ActionNavigate Action = iota
	ActionBack
	ActionForward
	ActionUp
	ActionRefresh
	ActionStartOperation
	ActionResolveConflict
	ActionCancelOperation
	ActionPauseOperation
	ActionResumeOperation
	ActionAcknowledgeOperation
	ActionSelect
	ActionDeselect
	ActionClearSelection
	ActionPin
	ActionSelectMatching
	ActionCopyToClipboard
	ActionCutToClipboard
	ActionPaste
	ActionAddBookmark
	ActionRemoveBookmark
	ActionOpen
	ActionShowProperties
	ActionSetShowHidden
	ActionSetScroll

	// Sent by the engine itself when an operation finishes.
	actionSettleOperation
)

var actionNames = [...]string{
	ActionNavigate:             "navigate",
	ActionBack:                 "back",
	ActionForward:              "forward",
	ActionUp:                   "up",
	ActionRefresh:              "refresh",
	ActionStartOperation:       "start-operation",
	ActionResolveConflict:      "resolve-conflict",
	ActionCancelOperation:      "cancel-operation",
	ActionPauseOperation:       "pause-operation",
	ActionResumeOperation:      "resume-operation",
	ActionAcknowledgeOperation: "acknowledge-operation",
	ActionSelect:               "select",
	ActionDeselect:             "deselect",
	ActionClearSelection:       "clear-selection",
	ActionPin:                  "pin",
	ActionSelectMatching:       "select-matching",
	ActionCopyToClipboard:      "copy",
	ActionCutToClipboard:       "cut",
	ActionPaste:                "paste",
	ActionAddBookmark:          "add-bookmark",
	ActionRemoveBookmark:       "remove-bookmark",
	ActionOpen:                 "open",
	ActionShowProperties:       "show-properties",
	ActionSetShowHidden:        "set-show-hidden",
	ActionSetScroll:            "set-scroll",
	actionSettleOperation:      "settle-operation",
}

func (a Action) String() string {
	if a >= 0 && int(a) < len(actionNames) && actionNames[a] != "" {
		return actionNames[a]
	}
	return "unknown"
}

// Request is one input from the front end. Only the fields the Action needs
// are read.
type Request struct {
	Action Action

	Path  string   // Navigate, Refresh, Paste target, bookmarks, Open, ShowProperties
	Paths []string // selection and clipboard actions; empty means the selection
	Name  string   // bookmark name, SelectMatching pattern

	Operation ops.Request // StartOperation; empty Sources means the selection

	TaskID     string // operation control
	Source     string // ResolveConflict
	Decision   conflict.Decision
	ApplyToAll bool

	Show   bool // SetShowHidden
	Scroll int  // SetScroll

	finished ops.Task
	reply    chan Result
}

// Result is what Do returns for a request.
type Result struct {
	Node       index.Node        // navigation and Refresh
	TaskID     string            // StartOperation and Paste
	Matched    int               // SelectMatching
	Properties *shell.Properties // ShowProperties when the desktop has no dialog
	Err        error
}
