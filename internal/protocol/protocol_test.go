package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	lovewise "github.com/Washington-NKE/lovewise-relay"
)

// TestDecode tests the Decode function with various frames
func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		data      string
		wantType  string
		wantError error
	}{
		{
			name:     "ping",
			data:     `{"type":"ping","timestamp":42}`,
			wantType: lovewise.TypePing,
		},
		{
			name:     "send message",
			data:     `{"type":"send_message","content":"hi","receiverId":"b","relationshipId":"r1"}`,
			wantType: lovewise.TypeSendMessage,
		},
		{
			name:     "unknown type still decodes",
			data:     `{"type":"dance"}`,
			wantType: "dance",
		},
		{
			name:      "empty frame",
			data:      ``,
			wantError: ErrEmptyFrame,
		},
		{
			name:      "missing type",
			data:      `{"content":"hi"}`,
			wantError: ErrMissingType,
		},
		{
			name:      "not json",
			data:      `hello`,
			wantError: errAny,
		},
		{
			name:      "json array",
			data:      `[1,2,3]`,
			wantError: errAny,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			in, err := Decode([]byte(tt.data))
			switch {
			case tt.wantError == errAny:
				if err == nil {
					t.Fatal("Decode() expected error, got nil")
				}
				return
			case tt.wantError != nil:
				if !errors.Is(err, tt.wantError) {
					t.Fatalf("Decode() error = %v, want %v", err, tt.wantError)
				}
				return
			case err != nil:
				t.Fatalf("Decode() unexpected error = %v", err)
			}

			if in.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", in.Type, tt.wantType)
			}
		})
	}
}

var errAny = errors.New("any error")

// TestDecodeKeepsGameDataOpaque tests that the game payload is passed through byte for byte
func TestDecodeKeepsGameDataOpaque(t *testing.T) {
	t.Parallel()

	raw := `{"type":"game_move","gameSessionId":"s1","data":{"board":["x","",null],"turn":"o"}}`
	in, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if in.GameSessionID != "s1" {
		t.Errorf("GameSessionID = %q, want s1", in.GameSessionID)
	}

	want := `{"board":["x","",null],"turn":"o"}`
	if string(in.Data) != want {
		t.Errorf("Data = %s, want %s", in.Data, want)
	}
}

// TestDecodeOversizedFrame tests the frame size limit
func TestDecodeOversizedFrame(t *testing.T) {
	t.Parallel()

	data := []byte(`{"type":"send_message","content":"` + strings.Repeat("a", maxPayloadSize) + `"}`)
	if _, err := Decode(data); err == nil {
		t.Error("Decode() expected error for oversized frame")
	}
}

// TestEncodeOutbound tests the wire shape of outbound messages
func TestEncodeOutbound(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		msg  any
		want string
	}{
		{
			name: "presence change",
			msg:  NewPresenceChange("a", true, at),
			want: `{"type":"presence_change","userId":"a","isOnline":true,"timestamp":"2026-02-14T09:30:00Z"}`,
		},
		{
			name: "typing indicator",
			msg:  NewTypingIndicator("a", false),
			want: `{"type":"typing_indicator","senderId":"a","isTyping":false}`,
		},
		{
			name: "message read",
			msg:  NewMessageRead("m1", "b"),
			want: `{"type":"message_read","messageId":"m1","readBy":"b"}`,
		},
		{
			name: "player joined",
			msg:  NewPlayerJoined("p1", 2),
			want: `{"type":"player_joined","playerId":"p1","playerCount":2}`,
		},
		{
			name: "game move keeps data verbatim",
			msg:  NewGameMove("p1", json.RawMessage(`{"cell":4}`), 3),
			want: `{"type":"game_move","playerId":"p1","data":{"cell":4},"seq":3}`,
		},
		{
			name: "game state without data",
			msg:  NewGameState(nil, 0),
			want: `{"type":"game_state","data":null,"seq":0}`,
		},
		{
			name: "empty presence update",
			msg:  NewPresenceUpdate(nil),
			want: `{"type":"presence_update","partners":[]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Encode() = %s, want %s", got, tt.want)
			}
		})
	}
}

// TestValidID tests user and session id validation
func TestValidID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   string
		want bool
	}{
		{"clx9a2b3c0000", true},
		{"7f9e1c2a-5b7d-4e0f-9a3b-2c1d0e9f8a7b", true},
		{"", false},
		{"has space", false},
		{"tab\tid", false},
		{strings.Repeat("x", maxIDLength), true},
		{strings.Repeat("x", maxIDLength+1), false},
	}

	for _, tt := range tests {
		if got := ValidID(tt.id); got != tt.want {
			t.Errorf("ValidID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestHasData(t *testing.T) {
	t.Parallel()

	if HasData(nil) {
		t.Error("HasData(nil) = true")
	}
	if HasData(json.RawMessage("null")) {
		t.Error("HasData(null) = true")
	}
	if !HasData(json.RawMessage(`{"board":[]}`)) {
		t.Error("HasData(object) = false")
	}
}

// BenchmarkDecode benchmarks frame decoding
func BenchmarkDecode(b *testing.B) {
	data := []byte(`{"type":"game_move","gameSessionId":"s1","data":{"board":["x","o","","","x","","","","o"]}}`)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Decode(data)
	}
}

// BenchmarkEncode benchmarks outbound encoding
func BenchmarkEncode(b *testing.B) {
	msg := NewGameMove("p1", json.RawMessage(`{"board":["x","o","","","x","","","","o"]}`), 7)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Encode(msg)
	}
}
