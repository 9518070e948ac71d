package notify

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/impet14/inverter-automator/internal/pkg/logging"
)

const defaultTelegramTimeout = time.Second * 45

// Telegram pushes messages through the Telegram Bot API
type Telegram struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
}

func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		baseURL: "https://api.telegram.org",
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: defaultTelegramTimeout},
	}
}

// WithBaseURL overrides the Bot API endpoint
func (t *Telegram) WithBaseURL(u string) *Telegram {
	nt := *t
	nt.baseURL = u
	return &nt
}

func (t *Telegram) WithTimeout(d time.Duration) *Telegram {
	nt := *t
	nt.client = &http.Client{Timeout: d}
	return &nt
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) Send(msg Message) error {
	marker := "✅"
	if !msg.Success {
		marker = "❌"
	}

	text := marker + " " + msg.Title
	if msg.Body != "" {
		text += "\n" + msg.Body
	}

	reqBody, err := json.Marshal(sendMessageRequest{
		ChatID: t.chatID,
		Text:   text,
	})
	if err != nil {
		return errors.Wrap(err, "encoding notification request")
	}

	logging.Logger(nil).Debugf("sending notification to chat %s: %s", t.chatID, msg.Title)

	resp, err := t.client.Post(t.baseURL+"/bot"+t.token+"/sendMessage", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return errors.Wrap(err, "executing notification request")
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading notification response")
	}

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("non-200 code from notification API: %d (%s): %s", resp.StatusCode, resp.Status, bodyBytes)
	}

	var smr sendMessageResponse
	if err := json.Unmarshal(bodyBytes, &smr); err != nil {
		return errors.Wrap(err, "decoding notification response")
	}

	if !smr.OK {
		return errors.Errorf("notification API rejected message: %s", smr.Description)
	}

	return nil
}
