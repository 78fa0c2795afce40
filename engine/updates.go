package engine

import (
	"github.com/bazelment/yoloswe/agentsession/approval"
	"github.com/bazelment/yoloswe/agentsession/changes"
	"github.com/bazelment/yoloswe/agentsession/protocol"
	"github.com/bazelment/yoloswe/agentsession/transcript"
)

// UpdateType identifies the kind of host update.
type UpdateType int

const (
	UpdateTypeSession UpdateType = iota
	UpdateTypeTurn
	UpdateTypeTurnComplete
	UpdateTypeApprovalRequested
	UpdateTypeApprovalResolved
	UpdateTypeFileChanged
	UpdateTypeExternalChange
	UpdateTypeRawOutput
	UpdateTypeSessionEnded
)

// String returns the string representation of the update type.
func (t UpdateType) String() string {
	switch t {
	case UpdateTypeSession:
		return "session"
	case UpdateTypeTurn:
		return "turn"
	case UpdateTypeTurnComplete:
		return "turnComplete"
	case UpdateTypeApprovalRequested:
		return "approvalRequested"
	case UpdateTypeApprovalResolved:
		return "approvalResolved"
	case UpdateTypeFileChanged:
		return "fileChanged"
	case UpdateTypeExternalChange:
		return "externalChange"
	case UpdateTypeRawOutput:
		return "rawOutput"
	case UpdateTypeSessionEnded:
		return "sessionEnded"
	default:
		return "unknown"
	}
}

// Update is the interface for all host-visible state changes.
type Update interface {
	Type() UpdateType
}

// SessionUpdate is sent when the agent announces its session.
type SessionUpdate struct {
	SessionID string
	Model     string
	Tools     []string
}

// Type returns the update type.
func (u SessionUpdate) Type() UpdateType { return UpdateTypeSession }

// TurnUpdate carries a copy of a transcript turn after it changed.
type TurnUpdate struct {
	Turn  transcript.Turn
	Index int
}

// Type returns the update type.
func (u TurnUpdate) Type() UpdateType { return UpdateTypeTurn }

// TurnCompleteUpdate is sent when the agent finishes a turn.
type TurnCompleteUpdate struct {
	Result protocol.ResultMessage
}

// Type returns the update type.
func (u TurnCompleteUpdate) Type() UpdateType { return UpdateTypeTurnComplete }

// ApprovalRequestedUpdate asks the host to call Engine.Approve.
type ApprovalRequestedUpdate struct {
	Approval approval.PendingApproval
}

// Type returns the update type.
func (u ApprovalRequestedUpdate) Type() UpdateType { return UpdateTypeApprovalRequested }

// ApprovalResolvedUpdate is sent when a pending approval leaves the pending
// set, including forced denials on teardown.
type ApprovalResolvedUpdate struct {
	RequestID string
	Approved  bool
}

// Type returns the update type.
func (u ApprovalResolvedUpdate) Type() UpdateType { return UpdateTypeApprovalResolved }

// FileChangedUpdate carries the tracked state of a file the agent edited.
type FileChangedUpdate struct {
	File   changes.TrackedFile
	ToolID string
}

// Type returns the update type.
func (u FileChangedUpdate) Type() UpdateType { return UpdateTypeFileChanged }

// ExternalChangeUpdate reports that a tracked file changed on disk outside
// the agent.
type ExternalChangeUpdate struct {
	Path string
	Op   changes.ChangeOp
}

// Type returns the update type.
func (u ExternalChangeUpdate) Type() UpdateType { return UpdateTypeExternalChange }

// RawOutputUpdate carries agent output that was not a protocol record.
type RawOutputUpdate struct {
	Line string
}

// Type returns the update type.
func (u RawOutputUpdate) Type() UpdateType { return UpdateTypeRawOutput }

// SessionEndedUpdate is sent once per session attempt. Err is set for
// spawn failures and unexpected exits.
type SessionEndedUpdate struct {
	Err       error
	Code      int
	Requested bool
}

// Type returns the update type.
func (u SessionEndedUpdate) Type() UpdateType { return UpdateTypeSessionEnded }
