package email

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"
)

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SMTPService delivers billing notices to the vendor's contact address.
type SMTPService struct {
	config SMTPConfig
}

func NewSMTPService(config SMTPConfig) *SMTPService {
	return &SMTPService{
		config: config,
	}
}

func (s *SMTPService) SendEmail(to, subject, body string) error {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: true,
		ServerName:         s.config.Host,
	}

	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%s", s.config.Host, s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %v", err)
	}

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %v", err)
	}
	defer client.Close()

	if err = client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("failed to start TLS: %v", err)
	}

	if err = client.Mail(s.config.From); err != nil {
		return fmt.Errorf("failed to set sender: %v", err)
	}
	if err = client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %v", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to create email body writer: %v", err)
	}

	headers := fmt.Sprintf(
		"From: DukaPay Billing <%s>\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n",
		s.config.From, to, subject,
	)

	if _, err = w.Write([]byte(headers + body)); err != nil {
		return fmt.Errorf("failed to write email body: %v", err)
	}

	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close email body writer: %v", err)
	}

	return client.Quit()
}

func (s *SMTPService) SendGracePeriodNotice(to string, deadline time.Time) error {
	content := fmt.Sprintf(`
		<h2>Subscription payment failed</h2>
		<p>Your last subscription payment did not go through.</p>
		<p>Your listing stays active during a grace period ending on <b>%s</b>.
		Please retry the payment before then.</p>
	`, deadline.Format("Monday, 2 January 2006"))

	return s.SendEmail(to, "Payment failed - grace period started", content)
}

func (s *SMTPService) SendRetryReminder(to string, deadline time.Time, attempts int) error {
	content := fmt.Sprintf(`
		<h2>Subscription payment failed again</h2>
		<p>We have now recorded %d failed payment attempts.</p>
		<p>You have until <b>%s</b> to complete the payment before your
		listing is suspended.</p>
	`, attempts, deadline.Format("Monday, 2 January 2006"))

	return s.SendEmail(to, "Payment failed - please retry", content)
}

func (s *SMTPService) SendSuspensionNotice(to string) error {
	content := `
		<h2>Listing suspended</h2>
		<p>The grace period for your subscription payment has expired and
		your business listing has been temporarily suspended.</p>
		<p>Complete the outstanding payment to restore it.</p>
	`

	return s.SendEmail(to, "Your listing has been suspended", content)
}
