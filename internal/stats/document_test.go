package stats

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseRoster(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		field   string
		want    []string
		wantErr bool
	}{
		{
			name: "object keeps document order",
			doc: `{"connected_players": {
				"zz-uid": "Zulu",
				"aa-uid": "Alpha",
				"mm-uid": "Mike"
			}}`,
			field: DefaultPlayersField,
			want:  []string{"Zulu", "Alpha", "Mike"},
		},
		{
			name:  "empty object is zero players",
			doc:   `{"connected_players": {}}`,
			field: DefaultPlayersField,
			want:  []string{},
		},
		{
			name:  "null is zero players",
			doc:   `{"connected_players": null}`,
			field: DefaultPlayersField,
			want:  []string{},
		},
		{
			name:  "blank names dropped",
			doc:   `{"connected_players": {"a": "  ", "b": "Bravo", "c": 12}}`,
			field: DefaultPlayersField,
			want:  []string{"Bravo"},
		},
		{
			name: "jsonc comments and trailing commas",
			doc: `{
				// written by ServerAdminTools
				"connected_players": {"a": "Alpha", "b": "Bravo",},
			}`,
			field: DefaultPlayersField,
			want:  []string{"Alpha", "Bravo"},
		},
		{
			name:  "nested field and array of objects",
			doc:   `{"server": {"players": [{"name": "Alpha"}, {"name": "Bravo"}]}}`,
			field: "server.players",
			want:  []string{"Alpha", "Bravo"},
		},
		{
			name:    "missing field",
			doc:     `{"uptime": 100}`,
			field:   DefaultPlayersField,
			wantErr: true,
		},
		{
			name:    "wrong type",
			doc:     `{"connected_players": 5}`,
			field:   DefaultPlayersField,
			wantErr: true,
		},
		{
			name:    "invalid json",
			doc:     `{"connected_players": {`,
			field:   DefaultPlayersField,
			wantErr: true,
		},
		{
			name:    "top level array",
			doc:     `["Alpha"]`,
			field:   DefaultPlayersField,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRoster([]byte(tt.doc), tt.field)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got players %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseRoster() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParseRoster_MalformedSentinel(t *testing.T) {
	_, err := ParseRoster([]byte("not json"), DefaultPlayersField)
	if !errors.Is(err, ErrMalformedDocument) {
		t.Fatalf("expected ErrMalformedDocument, got %v", err)
	}
}
