package stats

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"
)

// DefaultPlayersField ключ объекта игроков в ServerAdminTools_Stats.json
const DefaultPlayersField = "connected_players"

// ErrMalformedDocument документ статистики не является корректным JSON
var ErrMalformedDocument = errors.New("malformed stats document")

// ParseRoster извлекает ники игроков из документа статистики.
//
// Поле field - объект "id -> ник" (или массив ников). Порядок игроков
// совпадает с порядком в документе. Пустые ники отбрасываются.
// Отсутствующее поле - ошибка, пустой объект - ноль игроков.
func ParseRoster(data []byte, field string) ([]string, error) {
	stripped := jsonc.ToJSON(data)
	if !gjson.ValidBytes(stripped) {
		return nil, ErrMalformedDocument
	}

	doc := gjson.ParseBytes(stripped)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: top level is not an object", ErrMalformedDocument)
	}

	res := doc.Get(field)
	if !res.Exists() {
		return nil, fmt.Errorf("field %q not found", field)
	}

	players := []string{}
	switch {
	case res.IsObject() || res.IsArray():
		res.ForEach(func(_, value gjson.Result) bool {
			if name := playerName(value); name != "" {
				players = append(players, name)
			}
			return true
		})
	case res.Type == gjson.Null:
		// сервер без игроков пишет null
	default:
		return nil, fmt.Errorf("field %q: unexpected %s", field, res.Type)
	}

	return players, nil
}

// playerName принимает как строку-ник, так и объект с полем name
func playerName(v gjson.Result) string {
	if v.IsObject() {
		v = v.Get("name")
	}
	if v.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(v.String())
}
