package model

import (
	"encoding/json"
	"fmt"
)

// ActionToken is the payload of a repost button. It travels inside the
// callback data of the message it is attached to and is never persisted.
type ActionToken struct {
	PostID      string `json:"n"`
	CopyCaption bool   `json:"c"`
	IsGallery   bool   `json:"d"`
}

// maxTokenSize is the callback data limit of the Telegram bot API.
const maxTokenSize = 64

func (t ActionToken) Encode() (string, error) {
	byts, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("error encoding action token: %w", err)
	}
	if len(byts) > maxTokenSize {
		return "", fmt.Errorf("action token for %q exceeds %d bytes", t.PostID, maxTokenSize)
	}

	return string(byts), nil
}

func DecodeActionToken(data string) (ActionToken, error) {
	var t ActionToken
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return ActionToken{}, fmt.Errorf("%w: malformed action token: %s", ErrInvalidArgs, err)
	}
	if t.PostID == "" {
		return ActionToken{}, fmt.Errorf("%w: action token without post id", ErrInvalidArgs)
	}

	return t, nil
}
