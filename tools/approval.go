package tools

// Approver decides whether a mutating tool call may proceed. The
// description may embed a diff preview. Implementations may block
// (ask-and-wait); the executor consults the gate exactly once per
// qualifying call, before any side effect.
type Approver interface {
	Approve(toolName, description string) bool
}

// ApproverFunc adapts a plain function to the Approver interface.
type ApproverFunc func(toolName, description string) bool

func (f ApproverFunc) Approve(toolName, description string) bool {
	return f(toolName, description)
}

// AutoApprover approves everything. Used in unattended contexts
// (Telegram sessions, benchmarks, tests).
type AutoApprover struct{}

func (AutoApprover) Approve(string, string) bool { return true }

// approvalRequired is the fixed set of tools that consult the gate.
// Everything else is read-only.
func approvalRequired(toolName string) bool {
	switch toolName {
	case ToolWriteFile, ToolEditFile, ToolRunCommand:
		return true
	}
	return false
}
