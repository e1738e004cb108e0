package models

import (
	"encoding/json"
	"time"
)

// NoVersion версия записи, которая ещё ни разу не создавалась
const NoVersion int64 = -1

// StoredRecord представляет запись в локальном офлайн-хранилище.
// Data хранится как исходный JSON, чтобы хранилище не зависело от структуры документа.
type StoredRecord struct {
	UpdatedAt time.Time       `json:"updated_at"` // UpdatedAt время последнего сохранения (для информации)
	Name      string          `json:"name"`       // Name уникальное имя записи
	Data      json.RawMessage `json:"data"`       // Data JSON-документ записи
	Version   int64           `json:"version"`    // Version последняя известная версия записи
	// CreatedOffline запись создана без соединения и ещё не отправлена на сервер
	CreatedOffline bool `json:"created_offline,omitempty"`
}

// Clone создает глубокую копию записи
func (r *StoredRecord) Clone() *StoredRecord {
	data := make(json.RawMessage, len(r.Data))
	copy(data, r.Data)

	return &StoredRecord{
		Name:           r.Name,
		Data:           data,
		Version:        r.Version,
		CreatedOffline: r.CreatedOffline,
		UpdatedAt:      r.UpdatedAt,
	}
}
