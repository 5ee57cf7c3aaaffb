package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientAudioChunk MessageType = "client_audio_chunk"
	TypeClientControl    MessageType = "client_control"
	TypeClientText       MessageType = "client_text"
	TypeClientLanguage   MessageType = "client_language"
	TypeStatusEvent      MessageType = "status_event"
	TypeHistorySnapshot  MessageType = "history_snapshot"
	TypeTurnAppended     MessageType = "turn_appended"
	TypeAssistantAudio   MessageType = "assistant_audio_chunk"
	TypeSystemEvent      MessageType = "system_event"
	TypeErrorEvent       MessageType = "error_event"
)

// Control actions accepted in client_control messages.
const (
	ActionStartRecording = "start_recording"
	ActionStopRecording  = "stop_recording"
	ActionClearHistory   = "clear_history"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientAudioChunk struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id,omitempty"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
	TSMs        int64       `json:"ts_ms"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Action    string      `json:"action"`
}

type ClientText struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Text      string      `json:"text"`
}

type ClientLanguage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Language  string      `json:"language"`
}

type StatusEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Status    string      `json:"status"`
	Previous  string      `json:"previous,omitempty"`
	Language  string      `json:"language"`
	TSMs      int64       `json:"ts_ms"`
}

// HistoryTurn is one conversation entry as sent to clients.
type HistoryTurn struct {
	TurnID  string `json:"turn_id"`
	Role    string `json:"role"`
	Text    string `json:"text"`
	Ordinal int    `json:"ordinal"`
}

// HistorySnapshot carries the full history, newest first.
type HistorySnapshot struct {
	Type      MessageType   `json:"type"`
	SessionID string        `json:"session_id"`
	Turns     []HistoryTurn `json:"turns"`
}

type TurnAppended struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	HistoryTurn
}

type AssistantAudioChunk struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	TurnID      string      `json:"turn_id"`
	Seq         int         `json:"seq"`
	Format      string      `json:"format"`
	AudioBase64 string      `json:"audio_base64"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAudioChunk:
		var msg ClientAudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.PCM16Base64 == "" || msg.SampleRate <= 0 {
			return nil, errors.New("invalid client_audio_chunk")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Action {
		case ActionStartRecording, ActionStopRecording, ActionClearHistory:
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
		return msg, nil
	case TypeClientText:
		var msg ClientText
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, errors.New("invalid client_text")
		}
		return msg, nil
	case TypeClientLanguage:
		var msg ClientLanguage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Language) == "" {
			return nil, errors.New("invalid client_language")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
