package notify

import "github.com/impet14/inverter-automator/internal/pkg/logging"

// Noop drops messages when no push channel is configured
type Noop struct{}

func (Noop) Send(msg Message) error {
	logging.Logger(nil).Debugf("no notification channel configured, dropping message [%s]", msg.Title)
	return nil
}
