// Package stats получает текущее состояние игрового сервера: число игроков,
// максимум слотов и список ников. Две взаимозаменяемые стратегии: A2S-запрос
// и чтение JSON-файла статистики по FTP.
package stats

import (
	"context"
	"fmt"
)

// Snapshot один успешный срез состояния сервера. После создания не меняется.
type Snapshot struct {
	PlayerCount int
	MaxPlayers  int // 0 если источник не сообщает максимум
	Players     []string
}

// Fetcher источник снимков. Без внутренних повторов: повтор - следующий тик.
type Fetcher interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

// FetchError ошибка получения снимка (сеть, протокол, разбор)
type FetchError struct {
	Source string // "a2s" | "ftp"
	Op     string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Source, e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func newSnapshot(count, max int, players []string) Snapshot {
	if count < 0 {
		count = 0
	}
	if max < 0 {
		max = 0
	}
	cp := make([]string, len(players))
	copy(cp, players)
	return Snapshot{PlayerCount: count, MaxPlayers: max, Players: cp}
}
