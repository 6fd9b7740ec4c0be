package email

import (
	"crypto/tls"

	mail "github.com/go-mail/mail"
)

// SMTPSender implements Sender over SMTP.
type SMTPSender struct {
	Host               string
	Port               int
	From               string
	User               string
	Pass               string
	StartTLS           bool
	InsecureSkipVerify bool // dev only
}

// Send delivers a multipart/alternative (text + html) message.
func (s *SMTPSender) Send(to, subject, htmlBody, textBody string) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)

	if textBody != "" {
		m.SetBody("text/plain", textBody)
	}
	if htmlBody != "" {
		if textBody == "" {
			m.SetBody("text/html", htmlBody)
		} else {
			m.AddAlternative("text/html", htmlBody)
		}
	}

	d := mail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	d.TLSConfig = &tls.Config{
		ServerName:         s.Host,
		InsecureSkipVerify: s.InsecureSkipVerify,
	}
	if s.StartTLS {
		d.StartTLSPolicy = mail.MandatoryStartTLS
	}
	return d.DialAndSend(m)
}
