package mailer

// Message is a single outbound email.
type Message struct {
	To        string
	ToName    string
	Subject   string
	PlainBody string
	HTMLBody  string
}

// Mailer delivers a message. Implementations are best-effort transports; the
// caller decides how to contain failures.
type Mailer interface {
	Send(msg Message) error
}
