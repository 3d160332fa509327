package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/pv/gameserver-status-bot/internal/display"
	"github.com/pv/gameserver-status-bot/internal/logger"
	"github.com/pv/gameserver-status-bot/internal/storage"
)

// AdoptScanLimit сколько последних сообщений канала просматривать в поисках своего
const AdoptScanLimit = 10

// Tracker владеет ссылкой на единственное сообщение бота в канале
type Tracker struct {
	channelID snowflake.ID
	title     string
	messenger Messenger
	store     storage.Storage
	log       *slog.Logger

	ref    Ref
	loaded bool
}

func NewTracker(channelID snowflake.ID, title string, messenger Messenger, store storage.Storage) *Tracker {
	return &Tracker{
		channelID: channelID,
		title:     title,
		messenger: messenger,
		store:     store,
		log:       logger.With("channel", channelID.String()),
	}
}

// Ref returns the currently cached reference (may be invalid before the first Resolve).
func (t *Tracker) Ref() Ref { return t.ref }

func (t *Tracker) key() string {
	return "channel:" + t.channelID.String()
}

// Resolve возвращает ссылку на живое сообщение, при необходимости создавая его.
//
// Первый вызов читает сохранённую ссылку и проверяет, что сообщение существует.
// Если проверить не удалось из-за сетевой ошибки, ничего не создаётся: иначе
// появился бы дубликат. Повторные вызовы отдают закэшированную ссылку.
func (t *Tracker) Resolve(ctx context.Context) (Ref, error) {
	if t.loaded && t.ref.Valid() {
		return t.ref, nil
	}

	if !t.loaded {
		if ref, ok := t.loadPersisted(); ok {
			err := t.messenger.FetchMessage(ctx, ref.ChannelID, ref.MessageID)
			switch {
			case err == nil:
				t.ref = ref
				t.loaded = true
				t.log.Info("Tracked message restored", "message", ref.MessageID.String())
				return ref, nil
			case errors.Is(err, ErrPermissionDenied):
				// без Read Message History своё сообщение всё ещё можно править:
				// пусть решает Update, удалённое он пересоздаст
				t.ref = ref
				t.loaded = true
				t.log.Warn("Cannot verify persisted message, reusing it", "message", ref.MessageID.String(), "error", err)
				return ref, nil
			case errors.Is(err, ErrNotFound):
				t.log.Warn("Persisted message is gone", "message", ref.MessageID.String())
				t.forget()
			default:
				return Ref{}, fmt.Errorf("verify message %s: %w", ref.MessageID, err)
			}
		}
		t.loaded = true
	}

	ref, ok, err := t.adopt(ctx)
	if err != nil {
		return Ref{}, err
	}
	if ok {
		t.ref = ref
		t.persist(ref)
		t.log.Info("Adopted existing message", "message", ref.MessageID.String())
		return ref, nil
	}

	return t.create(ctx, display.Output{Title: t.title, Color: display.ColorOnline})
}

// Update заменяет содержимое сообщения. Если сообщение удалено, создаёт новое
// с тем же содержимым (ровно одно за вызов) и сохраняет его id.
func (t *Tracker) Update(ctx context.Context, ref Ref, out display.Output) error {
	if !ref.Valid() {
		_, err := t.create(ctx, out)
		return err
	}

	err := t.messenger.EditEmbed(ctx, ref.ChannelID, ref.MessageID, out)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("edit message %s: %w", ref.MessageID, err)
	}

	t.log.Warn("Tracked message deleted, re-creating", "message", ref.MessageID.String())
	t.ref = Ref{}

	_, err = t.create(ctx, out)
	return err
}

func (t *Tracker) create(ctx context.Context, out display.Output) (Ref, error) {
	id, err := t.messenger.SendEmbed(ctx, t.channelID, out)
	if err != nil {
		return Ref{}, fmt.Errorf("send message: %w", err)
	}

	ref := Ref{ChannelID: t.channelID, MessageID: id}
	t.ref = ref
	t.persist(ref)

	t.log.Info("Created tracked message", "message", id.String())
	return ref, nil
}

// adopt ищет среди последних сообщений канала своё сообщение с тем же заголовком
func (t *Tracker) adopt(ctx context.Context) (Ref, bool, error) {
	self := t.messenger.SelfID()
	if self == 0 {
		return Ref{}, false, nil
	}

	msgs, err := t.messenger.RecentMessages(ctx, t.channelID, AdoptScanLimit)
	if errors.Is(err, ErrPermissionDenied) {
		// без истории канала искать негде, просто создаём новое
		t.log.Debug("Cannot read channel history", "error", err)
		return Ref{}, false, nil
	}
	if err != nil {
		return Ref{}, false, fmt.Errorf("scan channel history: %w", err)
	}

	for _, m := range msgs {
		if m.AuthorID == self && m.Title == t.title {
			return Ref{ChannelID: t.channelID, MessageID: m.ID}, true, nil
		}
	}
	return Ref{}, false, nil
}

// loadPersisted: битая или отсутствующая запись означает "ссылки ещё нет"
func (t *Tracker) loadPersisted() (Ref, bool) {
	rec, err := t.store.Load(t.key())
	if errors.Is(err, storage.ErrNoRecord) {
		return Ref{}, false
	}
	if err != nil {
		t.log.Warn("Failed to load persisted message id", "error", err)
		return Ref{}, false
	}

	channelID, err := snowflake.Parse(rec.ChannelID)
	if err != nil || channelID != t.channelID {
		t.log.Warn("Ignoring persisted record for another channel", "stored", rec.ChannelID)
		t.forget()
		return Ref{}, false
	}
	messageID, err := snowflake.Parse(rec.MessageID)
	if err != nil || messageID == 0 {
		t.log.Warn("Ignoring malformed persisted message id", "stored", rec.MessageID)
		t.forget()
		return Ref{}, false
	}

	return Ref{ChannelID: channelID, MessageID: messageID}, true
}

func (t *Tracker) persist(ref Ref) {
	err := t.store.Save(t.key(), storage.Record{
		ChannelID: ref.ChannelID.String(),
		MessageID: ref.MessageID.String(),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		// ссылка остаётся в памяти: до рестарта дубликатов не будет
		t.log.Error("Failed to persist message id", "message", ref.MessageID.String(), "error", err)
	}
}

// forget удаляет сохранённую запись, которой больше нельзя пользоваться
func (t *Tracker) forget() {
	if err := t.store.Delete(t.key()); err != nil {
		t.log.Warn("Failed to drop persisted message id", "error", err)
	}
}
