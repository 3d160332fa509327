// Package display превращает снимок сервера в presence-строку и embed со списком игроков.
package display

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pv/gameserver-status-bot/internal/stats"
)

// Ограничения Discord
const (
	MaxBodyLength     = 4096 // embed description
	MaxPresenceLength = 128  // activity name
)

const (
	Bullet = "• "

	NoPlayersText   = "Nobody is online right now"
	UnavailableText = "Server data unavailable"
	TooManyText     = "Too many players to display"

	DefaultTitle = "Players online"
	DefaultLabel = "players"
)

const (
	ColorOnline      = 0x00FF00
	ColorUnavailable = 0xFF0000
)

// OverflowPolicy что делать со списком длиннее MaxBodyLength
type OverflowPolicy string

const (
	// OverflowTruncate оставляет целые строки и дописывает "… and N more"
	OverflowTruncate OverflowPolicy = "truncate"
	// OverflowReplace заменяет тело целиком на TooManyText
	OverflowReplace OverflowPolicy = "replace"
)

// Output готовые к отправке артефакты
type Output struct {
	PresenceText string
	Title        string
	Body         string
	Color        int
	Unavailable  bool
}

// Options настройки форматирования
type Options struct {
	Title      string
	Label      string
	MaxPlayers int // используется, когда источник не сообщает максимум
	Overflow   OverflowPolicy
	// MaxBody переопределяет MaxBodyLength (для тестов), 0 - по умолчанию
	MaxBody int
}

type Formatter struct {
	opts Options
}

func New(opts Options) *Formatter {
	if opts.Title == "" {
		opts.Title = DefaultTitle
	}
	if opts.Label == "" {
		opts.Label = DefaultLabel
	}
	if opts.Overflow == "" {
		opts.Overflow = OverflowTruncate
	}
	if opts.MaxBody <= 0 || opts.MaxBody > MaxBodyLength {
		opts.MaxBody = MaxBodyLength
	}
	return &Formatter{opts: opts}
}

// Format чистая функция от результата Fetch. fetchErr != nil - сбой получения,
// он отображается иначе, чем пустой сервер.
func (f *Formatter) Format(snap stats.Snapshot, fetchErr error) Output {
	maxPlayers := snap.MaxPlayers
	if maxPlayers <= 0 {
		maxPlayers = f.opts.MaxPlayers
	}

	if fetchErr != nil {
		return Output{
			PresenceText: clip(fmt.Sprintf("?/%d %s", f.opts.MaxPlayers, f.opts.Label), MaxPresenceLength),
			Title:        f.opts.Title,
			Body:         UnavailableText,
			Color:        ColorUnavailable,
			Unavailable:  true,
		}
	}

	return Output{
		PresenceText: clip(fmt.Sprintf("%d/%d %s", snap.PlayerCount, maxPlayers, f.opts.Label), MaxPresenceLength),
		Title:        f.opts.Title,
		Body:         f.body(snap.Players),
		Color:        ColorOnline,
	}
}

func (f *Formatter) body(players []string) string {
	if len(players) == 0 {
		return NoPlayersText
	}

	lines := make([]string, len(players))
	for i, p := range players {
		lines[i] = Bullet + singleLine(p)
	}

	full := strings.Join(lines, "\n")
	if utf8.RuneCountInString(full) <= f.opts.MaxBody {
		return full
	}

	if f.opts.Overflow == OverflowReplace {
		return TooManyText
	}
	return truncateLines(lines, f.opts.MaxBody)
}

// truncateLines берёт максимум целых строк так, чтобы вместе с пометкой
// об остатке тело укладывалось в limit рун.
func truncateLines(lines []string, limit int) string {
	var sb strings.Builder
	used := 0

	for i, line := range lines {
		n := utf8.RuneCountInString(line)
		if i > 0 {
			n++ // перевод строки
		}
		note := moreNote(len(lines) - i - 1)
		if used+n+1+utf8.RuneCountInString(note) > limit {
			rest := moreNote(len(lines) - i)
			if used == 0 {
				return clip(rest, limit)
			}
			sb.WriteString("\n")
			sb.WriteString(rest)
			return sb.String()
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(line)
		used += n
	}
	return sb.String()
}

// один игрок - одна строка
var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func singleLine(name string) string {
	return lineBreaks.Replace(name)
}

func moreNote(n int) string {
	return fmt.Sprintf("… and %d more", n)
}

func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}
