package workflow

// Trigger is an action that may move an expense between states
type Trigger string

const (
	TriggerProcess Trigger = "PROCESS"
)

func (t Trigger) String() string {
	return string(t)
}
