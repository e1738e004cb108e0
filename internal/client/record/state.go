package record

import "fmt"

// State состояние жизненного цикла записи
type State int

// Состояния записи. StateLoadingOffline начальное для каждого Core.
const (
	StateLoadingOffline State = iota
	StateSubscribing
	StateResubscribing
	StateReady
	StateMerging
	StateUnsubscribing
	StateUnsubscribed
	StateDeleting
	StateDeleted
)

var stateNames = map[State]string{
	StateLoadingOffline: "LOADING_OFFLINE",
	StateSubscribing:    "SUBSCRIBING",
	StateResubscribing:  "RESUBSCRIBING",
	StateReady:          "READY",
	StateMerging:        "MERGING",
	StateUnsubscribing:  "UNSUBSCRIBING",
	StateUnsubscribed:   "UNSUBSCRIBED",
	StateDeleting:       "DELETING",
	StateDeleted:        "DELETED",
}

// String implements fmt.Stringer
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// IsTerminal сообщает, что из состояния нет переходов
func (s State) IsTerminal() bool {
	return s == StateUnsubscribed || s == StateDeleted
}

// trigger событие, вызывающее переход
type trigger string

const (
	triggerLoadedOffline   trigger = "loaded-offline"
	triggerLoadedNew       trigger = "loaded-new"
	triggerLoadedKnown     trigger = "loaded-known"
	triggerSubscribed      trigger = "subscribed"
	triggerReconnected     trigger = "reconnected"
	triggerResubscribed    trigger = "resubscribed"
	triggerConflict        trigger = "conflict"
	triggerMerged          trigger = "merged"
	triggerMergeFailed     trigger = "merge-failed"
	triggerUnsubscribe     trigger = "unsubscribe"
	triggerReferenced      trigger = "referenced"
	triggerUnsubscribed    trigger = "unsubscribed"
	triggerDelete          trigger = "delete"
	triggerDeleteSuccess   trigger = "delete-success"
	triggerDeleteFailed    trigger = "delete-failed"
	triggerDeletedRemotely trigger = "deleted-remotely"
)

type transition struct {
	trigger trigger
	from    State
	to      State
}

// transitions полная таблица допустимых переходов
var transitions = []transition{
	{triggerLoadedOffline, StateLoadingOffline, StateReady},
	{triggerLoadedNew, StateLoadingOffline, StateSubscribing},
	{triggerLoadedKnown, StateLoadingOffline, StateResubscribing},

	{triggerSubscribed, StateSubscribing, StateReady},

	{triggerReconnected, StateReady, StateResubscribing},
	{triggerReconnected, StateSubscribing, StateSubscribing},
	{triggerReconnected, StateResubscribing, StateResubscribing},
	{triggerReconnected, StateMerging, StateResubscribing},

	{triggerResubscribed, StateResubscribing, StateReady},

	{triggerConflict, StateResubscribing, StateMerging},
	{triggerConflict, StateReady, StateMerging},
	{triggerConflict, StateUnsubscribing, StateMerging},
	{triggerMerged, StateMerging, StateReady},
	{triggerMergeFailed, StateMerging, StateReady},

	{triggerUnsubscribe, StateReady, StateUnsubscribing},
	{triggerReferenced, StateUnsubscribing, StateReady},
	{triggerUnsubscribed, StateUnsubscribing, StateUnsubscribed},

	{triggerDelete, StateReady, StateDeleting},
	{triggerDelete, StateMerging, StateDeleting},
	{triggerDelete, StateUnsubscribing, StateDeleting},
	{triggerDeleteSuccess, StateDeleting, StateDeleted},
	{triggerDeleteFailed, StateDeleting, StateReady},

	{triggerDeletedRemotely, StateLoadingOffline, StateDeleted},
	{triggerDeletedRemotely, StateSubscribing, StateDeleted},
	{triggerDeletedRemotely, StateResubscribing, StateDeleted},
	{triggerDeletedRemotely, StateReady, StateDeleted},
	{triggerDeletedRemotely, StateMerging, StateDeleted},
	{triggerDeletedRemotely, StateUnsubscribing, StateDeleted},
	{triggerDeletedRemotely, StateDeleting, StateDeleted},
}

// TransitionError недопустимый переход. Это нарушение протокола или ошибка
// в коде, поэтому Core паникует с этим значением и не пытается продолжить.
type TransitionError struct {
	Record  string
	Trigger string
	State   State
}

// Error implements error
func (e *TransitionError) Error() string {
	return fmt.Sprintf("record %q: invalid transition %q from state %s", e.Record, e.Trigger, e.State)
}

// nextState возвращает состояние после trigger или false, если перехода нет
func nextState(from State, t trigger) (State, bool) {
	for _, tr := range transitions {
		if tr.trigger == t && tr.from == from {
			return tr.to, true
		}
	}
	return from, false
}
