package api

// Action действие внутри топика
type Action string

// Record actions
const (
	ActionSubscribeCreateAndRead Action = "SUBSCRIBE_CREATE_AND_READ"
	ActionSubscribeAndHead       Action = "SUBSCRIBE_AND_HEAD"
	ActionSubscribe              Action = "SUBSCRIBE"
	ActionUnsubscribe            Action = "UNSUBSCRIBE"

	ActionRead         Action = "READ"
	ActionReadResponse Action = "READ_RESPONSE"
	ActionHead         Action = "HEAD"
	ActionHeadResponse Action = "HEAD_RESPONSE"
	ActionHas          Action = "HAS"
	ActionHasResponse  Action = "HAS_RESPONSE"

	ActionUpdate          Action = "UPDATE"
	ActionPatch           Action = "PATCH"
	ActionErase           Action = "ERASE"
	ActionCreateAndUpdate Action = "CREATE_AND_UPDATE"
	ActionCreateAndPatch  Action = "CREATE_AND_PATCH"

	ActionDelete        Action = "DELETE"
	ActionDeleteSuccess Action = "DELETE_SUCCESS"
	ActionDeleted       Action = "DELETED"

	ActionVersionExists        Action = "VERSION_EXISTS"
	ActionWriteAcknowledgement Action = "WRITE_ACKNOWLEDGEMENT"
	ActionRecordNotFound       Action = "RECORD_NOT_FOUND"

	ActionMessageDenied          Action = "MESSAGE_DENIED"
	ActionMessagePermissionError Action = "MESSAGE_PERMISSION_ERROR"

	ActionListen                        Action = "LISTEN"
	ActionUnlisten                      Action = "UNLISTEN"
	ActionListenAccept                  Action = "LISTEN_ACCEPT"
	ActionListenReject                  Action = "LISTEN_REJECT"
	ActionSubscriptionForPatternFound   Action = "SUBSCRIPTION_FOR_PATTERN_FOUND"
	ActionSubscriptionForPatternRemoved Action = "SUBSCRIPTION_FOR_PATTERN_REMOVED"
)

// writeActions действия, изменяющие запись на сервере
var writeActions = []Action{
	ActionUpdate,
	ActionPatch,
	ActionErase,
	ActionCreateAndUpdate,
	ActionCreateAndPatch,
}

// responseToRequest сопоставляет ответ с действиями запросов, на которые он отвечает.
// По этой таблице входящий ответ снимает таймаут, взведённый для исходящего запроса.
var responseToRequest = map[Action][]Action{
	ActionReadResponse:         {ActionRead, ActionSubscribeCreateAndRead},
	ActionHeadResponse:         {ActionHead, ActionSubscribeAndHead},
	ActionHasResponse:          {ActionHas},
	ActionDeleteSuccess:        {ActionDelete},
	ActionWriteAcknowledgement: writeActions,
	ActionVersionExists:        writeActions,
	ActionRecordNotFound:       {ActionRead, ActionHead},
}

// RequestActions возвращает действия запросов, на которые отвечает msg.
// Ack повторяет действие запроса, ошибка несёт его в OriginalAction.
func RequestActions(msg *Message) []Action {
	if msg.IsAck {
		return []Action{msg.Action}
	}
	if msg.IsError && msg.OriginalAction != "" {
		return []Action{msg.OriginalAction}
	}
	if actions, ok := responseToRequest[msg.Action]; ok {
		return actions
	}
	return []Action{msg.Action}
}

// IsWrite сообщает, изменяет ли действие данные записи
func IsWrite(action Action) bool {
	for _, a := range writeActions {
		if a == action {
			return true
		}
	}
	return false
}
