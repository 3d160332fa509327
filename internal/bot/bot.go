// Package bot связывает получение статистики, форматирование и обновление
// presence/сообщения. Каждый тик изолирован: ошибка или паника логируется и
// не доходит до планировщика, следующий тик выполняется как обычно.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pv/gameserver-status-bot/internal/artifact"
	"github.com/pv/gameserver-status-bot/internal/display"
	"github.com/pv/gameserver-status-bot/internal/logger"
	"github.com/pv/gameserver-status-bot/internal/stats"
)

// Имена тиков (и триггеров планировщика)
const (
	TickStatus  = "status"
	TickPlayers = "players"
)

// PresenceSetter выставляет короткую строку статуса бота
type PresenceSetter interface {
	SetPresence(ctx context.Context, text string) error
}

// ArtifactTracker сообщение со списком игроков
type ArtifactTracker interface {
	Resolve(ctx context.Context) (artifact.Ref, error)
	Update(ctx context.Context, ref artifact.Ref, out display.Output) error
}

// Bot цикл согласования
type Bot struct {
	fetcher   stats.Fetcher
	formatter *display.Formatter
	tracker   ArtifactTracker
	presence  PresenceSetter

	// TickTimeout ограничивает один тик; 0 - без ограничения
	TickTimeout time.Duration

	mu     sync.RWMutex
	status map[string]*TickState
}

func New(fetcher stats.Fetcher, formatter *display.Formatter, tracker ArtifactTracker, presence PresenceSetter) *Bot {
	return &Bot{
		fetcher:   fetcher,
		formatter: formatter,
		tracker:   tracker,
		presence:  presence,
		status: map[string]*TickState{
			TickStatus:  {Name: TickStatus},
			TickPlayers: {Name: TickPlayers},
		},
	}
}

// UpdateStatus тик статуса: fetch -> format -> presence
func (b *Bot) UpdateStatus(ctx context.Context) {
	b.runTick(ctx, TickStatus, func(ctx context.Context) error {
		snap, fetchErr := b.fetcher.Fetch(ctx)
		if fetchErr != nil {
			logger.Warn("Stats fetch failed", "tick", TickStatus, "error", fetchErr)
		}
		out := b.formatter.Format(snap, fetchErr)

		if err := b.presence.SetPresence(ctx, out.PresenceText); err != nil {
			return err
		}
		logger.Debug("Presence updated", "text", out.PresenceText)
		return fetchErr
	})
}

// UpdatePlayerList тик списка игроков: fetch -> format -> resolve -> update
func (b *Bot) UpdatePlayerList(ctx context.Context) {
	b.runTick(ctx, TickPlayers, func(ctx context.Context) error {
		snap, fetchErr := b.fetcher.Fetch(ctx)
		if fetchErr != nil {
			logger.Warn("Stats fetch failed", "tick", TickPlayers, "error", fetchErr)
		}
		out := b.formatter.Format(snap, fetchErr)

		ref, err := b.tracker.Resolve(ctx)
		if err != nil {
			return fmt.Errorf("resolve message: %w", err)
		}
		if err := b.tracker.Update(ctx, ref, out); err != nil {
			return fmt.Errorf("update message: %w", err)
		}
		logger.Debug("Player list updated", "players", len(snap.Players), "unavailable", out.Unavailable)
		return fetchErr
	})
}

// runTick граница изоляции: ошибки и паники логируются и проглатываются
func (b *Bot) runTick(ctx context.Context, name string, fn func(ctx context.Context) error) {
	start := time.Now()

	if b.TickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.TickTimeout)
		defer cancel()
	}

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = fn(ctx)
	}()

	b.record(name, start, err)

	if err != nil {
		logger.Error("Tick failed", "tick", name, "error", err, "took", time.Since(start))
	}
}
