package storage

import (
	"errors"
	"time"
)

// ErrNoRecord возвращается Load, если для ключа ничего не сохранено
var ErrNoRecord = errors.New("storage: no record")

// Record хранимая ссылка на сообщение бота.
// Идентификаторы хранятся как строки: разбор и проверка - забота вызывающего.
type Record struct {
	ChannelID string    `json:"channelId"`
	MessageID string    `json:"messageId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Storage интерфейс долговременного хранилища ссылок на сообщения
type Storage interface {
	// Load возвращает запись по ключу или ErrNoRecord
	Load(key string) (Record, error)

	// Save создаёт или перезаписывает запись по ключу
	Save(key string, rec Record) error

	// Delete удаляет запись (отсутствие записи не ошибка)
	Delete(key string) error

	// Close закрывает хранилище
	Close() error
}

// Type выбор бэкенда хранилища
type Type string

const (
	TypeMemory Type = "memory"
	TypeSQLite Type = "sqlite"
)

// Open создаёт хранилище указанного типа
func Open(t Type, path string) (Storage, error) {
	switch t {
	case TypeSQLite:
		return NewSQLiteStorage(path)
	case TypeMemory, "":
		return NewMemoryStorage(), nil
	}
	return nil, errors.New("storage: unknown type " + string(t))
}
