package notify

// Message is one command-outcome report pushed to the operator
type Message struct {
	Title   string
	Body    string
	Success bool
}

// Notifier delivers outcome messages to a push channel
type Notifier interface {
	Send(msg Message) error
}
