// Package discord адаптер discordgo: подключение к шлюзу, embed-сообщения
// и presence. Ошибки REST приводятся к artifact.ErrNotFound / ErrPermissionDenied.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"

	"github.com/pv/gameserver-status-bot/internal/artifact"
	"github.com/pv/gameserver-status-bot/internal/display"
	"github.com/pv/gameserver-status-bot/internal/logger"
)

// session is the subset of *discordgo.Session the adapter calls.
type session interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
}

var _ artifact.Messenger = (*Client)(nil)

// Config параметры подключения
type Config struct {
	Token        string
	ActivityType string // playing | watching | listening | competing
}

// Client обёртка над discordgo.Session
type Client struct {
	dg       *discordgo.Session
	api      session
	activity discordgo.ActivityType

	mu     sync.RWMutex
	selfID snowflake.ID
}

// New creates a client; the gateway is not opened until Connect.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord: token required")
	}
	activity, err := ParseActivityType(cfg.ActivityType)
	if err != nil {
		return nil, err
	}

	token := cfg.Token
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}

	dg, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	// только гильдии: сообщения читаем через REST, события сообщений не нужны
	dg.Identify.Intents = discordgo.IntentsGuilds

	return &Client{dg: dg, api: dg, activity: activity}, nil
}

// Connect открывает шлюз и ждёт событие Ready.
// Пока Connect не вернул nil, периодические задачи не запускаются.
func (c *Client) Connect(ctx context.Context, timeout time.Duration) error {
	ready := make(chan *discordgo.Ready, 1)
	c.dg.AddHandlerOnce(func(_ *discordgo.Session, r *discordgo.Ready) {
		ready <- r
	})
	c.dg.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
		logger.Info("Discord session resumed")
	})

	if err := c.dg.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ready:
		c.setSelf(r.User)
		logger.Info("Logged in", "user", r.User.String(), "guilds", len(r.Guilds))
		return nil
	case <-timer.C:
		_ = c.dg.Close()
		return errors.New("discord: timed out waiting for ready")
	case <-ctx.Done():
		_ = c.dg.Close()
		return ctx.Err()
	}
}

func (c *Client) Close() error {
	return c.dg.Close()
}

func (c *Client) setSelf(u *discordgo.User) {
	if u == nil {
		return
	}
	id, err := snowflake.Parse(u.ID)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.selfID = id
	c.mu.Unlock()
}

// SelfID returns the bot user id, 0 before Ready.
func (c *Client) SelfID() snowflake.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selfID
}

// SetPresence выставляет активность бота, например "Watching 12/64 players"
func (c *Client) SetPresence(_ context.Context, text string) error {
	idle := 0
	err := c.api.UpdateStatusComplex(discordgo.UpdateStatusData{
		IdleSince: &idle,
		Activities: []*discordgo.Activity{{
			Name: text,
			Type: c.activity,
		}},
		Status: string(discordgo.StatusOnline),
	})
	if err != nil {
		return fmt.Errorf("update presence: %w", err)
	}
	return nil
}

func (c *Client) SendEmbed(ctx context.Context, channelID snowflake.ID, out display.Output) (snowflake.ID, error) {
	msg, err := c.api.ChannelMessageSendEmbed(channelID.String(), toEmbed(out), discordgo.WithContext(ctx))
	if err != nil {
		return 0, classify(err)
	}
	id, err := snowflake.Parse(msg.ID)
	if err != nil {
		return 0, fmt.Errorf("discord: bad message id %q: %w", msg.ID, err)
	}
	return id, nil
}

func (c *Client) EditEmbed(ctx context.Context, channelID, messageID snowflake.ID, out display.Output) error {
	_, err := c.api.ChannelMessageEditEmbed(channelID.String(), messageID.String(), toEmbed(out), discordgo.WithContext(ctx))
	return classify(err)
}

func (c *Client) FetchMessage(ctx context.Context, channelID, messageID snowflake.ID) error {
	_, err := c.api.ChannelMessage(channelID.String(), messageID.String(), discordgo.WithContext(ctx))
	return classify(err)
}

func (c *Client) RecentMessages(ctx context.Context, channelID snowflake.ID, limit int) ([]artifact.Message, error) {
	msgs, err := c.api.ChannelMessages(channelID.String(), limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err)
	}

	out := make([]artifact.Message, 0, len(msgs))
	for _, m := range msgs {
		id, err := snowflake.Parse(m.ID)
		if err != nil {
			continue
		}
		am := artifact.Message{ID: id}
		if m.Author != nil {
			am.AuthorID, _ = snowflake.Parse(m.Author.ID)
		}
		if len(m.Embeds) > 0 && m.Embeds[0] != nil {
			am.Title = m.Embeds[0].Title
		}
		out = append(out, am)
	}
	return out, nil
}

func toEmbed(out display.Output) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       out.Title,
		Description: out.Body,
		Color:       out.Color,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

// classify maps REST failures onto artifact errors; the original error stays wrapped.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return err
	}

	code := 0
	if rest.Message != nil {
		code = rest.Message.Code
	}
	status := 0
	if rest.Response != nil {
		status = rest.Response.StatusCode
	}

	switch {
	case code == discordgo.ErrCodeUnknownMessage,
		code == discordgo.ErrCodeUnknownChannel,
		status == http.StatusNotFound:
		return fmt.Errorf("%w: %v", artifact.ErrNotFound, err)
	case code == discordgo.ErrCodeMissingAccess,
		code == discordgo.ErrCodeMissingPermissions,
		status == http.StatusForbidden:
		return fmt.Errorf("%w: %v", artifact.ErrPermissionDenied, err)
	}
	return err
}

// ParseActivityType переводит имя из конфигурации в тип активности Discord
func ParseActivityType(s string) (discordgo.ActivityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "watching":
		return discordgo.ActivityTypeWatching, nil
	case "playing", "game":
		return discordgo.ActivityTypeGame, nil
	case "listening":
		return discordgo.ActivityTypeListening, nil
	case "competing":
		return discordgo.ActivityTypeCompeting, nil
	}
	return 0, fmt.Errorf("discord: unknown activity type %q", s)
}
