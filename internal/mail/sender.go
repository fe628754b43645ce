package mail

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/bookleaf/tracker/internal/models"
)

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailSender struct {
	From   string
	dialer dialer
}

func NewEmailSender(host string, port int, user, password, from string) *EmailSender {
	return &EmailSender{
		From:   from,
		dialer: gomail.NewDialer(host, port, user, password),
	}
}

var bookingTmpl = template.Must(template.New("booking").Parse(`<p>Hi {{.ConsultantName}},</p>
<p>{{.AuthorName}} ({{.AuthorEmail}}) booked a call for <strong>{{.Day}}</strong> at <strong>{{.TimeSlot}}</strong>.</p>
{{if .Phone}}<p>Phone: {{.Phone}}</p>{{end}}
{{if .Notes}}<p>Notes: {{.Notes}}</p>{{end}}
<p>Booking id: {{.ID}}</p>
`))

type bookingData struct {
	ConsultantName string
	AuthorName     string
	AuthorEmail    string
	Phone          string
	Day            string
	TimeSlot       string
	Notes          string
	ID             string
}

// SendBookingConfirmation mails the consultant, copying the author.
func (s *EmailSender) SendBookingConfirmation(b models.Booking, consultant models.Consultant) error {
	if consultant.Email == "" {
		return fmt.Errorf("consultant %s has no email", consultant.Name)
	}
	name := consultant.FullName
	if name == "" {
		name = consultant.Name
	}
	day := b.Date
	if d, err := time.Parse("2006-01-02", b.Date); err == nil {
		day = d.Format("Monday, 2 Jan 2006")
	}

	var body bytes.Buffer
	if err := bookingTmpl.Execute(&body, bookingData{
		ConsultantName: name,
		AuthorName:     b.AuthorName,
		AuthorEmail:    b.AuthorEmail,
		Phone:          b.AuthorPhone,
		Day:            day,
		TimeSlot:       b.TimeSlot,
		Notes:          b.Notes,
		ID:             b.ID,
	}); err != nil {
		return fmt.Errorf("render booking mail: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", consultant.Email)
	if b.AuthorEmail != "" {
		m.SetHeader("Cc", b.AuthorEmail)
	}
	m.SetHeader("Subject", fmt.Sprintf("Call booked: %s on %s at %s", b.AuthorName, day, b.TimeSlot))
	m.SetBody("text/html", body.String())

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send booking mail: %w", err)
	}
	return nil
}
