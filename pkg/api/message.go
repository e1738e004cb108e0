package api

import (
	"encoding/json"
	"fmt"
)

// Topic группирует действия протокола
type Topic string

// TopicRecord единственный топик, с которым работает клиентское ядро записей
const TopicRecord Topic = "record"

// Message представляет одно сообщение протокола синхронизации записей.
// Поля Path, Data, Version и CorrelationID заполняются в зависимости от Action.
type Message struct {
	Data           any    `json:"data,omitempty"`            // Data JSON-значение (полные данные записи или значение по Path)
	Topic          Topic  `json:"topic"`                     // Topic топик сообщения
	Action         Action `json:"action"`                    // Action действие
	Name           string `json:"name,omitempty"`            // Name имя записи (или паттерн для listen)
	Path           string `json:"path,omitempty"`            // Path путь внутри записи для patch/erase
	CorrelationID  string `json:"cid,omitempty"`             // CorrelationID связывает запрос write-ack с ответом
	Subscription   string `json:"subscription,omitempty"`    // Subscription имя записи, найденное по паттерну listen
	Reason         string `json:"reason,omitempty"`          // Reason причина отказа сервера
	OriginalAction Action `json:"original_action,omitempty"` // OriginalAction действие запроса, на который пришла ошибка
	Version        int64  `json:"version"`                   // Version версия записи, -1 если запись не существует
	IsAck          bool   `json:"ack,omitempty"`             // IsAck сервер подтвердил получение запроса
	IsError        bool   `json:"error,omitempty"`           // IsError сообщение сообщает об ошибке
	IsWriteAck     bool   `json:"write_ack,omitempty"`       // IsWriteAck отправитель ждёт WRITE_ACKNOWLEDGEMENT
}

// Encode сериализует сообщение в JSON-фрейм
func Encode(msg *Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("message cannot be nil")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}

// Decode разбирает JSON-фрейм в сообщение
func Decode(frame []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if msg.Topic == "" || msg.Action == "" {
		return nil, fmt.Errorf("message without topic or action")
	}
	return &msg, nil
}
