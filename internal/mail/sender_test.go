package mail

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/bookleaf/tracker/internal/models"
)

type captureDialer struct {
	sent []*gomail.Message
}

func (d *captureDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	return nil
}

func TestSendBookingConfirmation(t *testing.T) {
	d := &captureDialer{}
	s := &EmailSender{From: "noreply@bookleaf.in", dialer: d}

	err := s.SendBookingConfirmation(models.Booking{
		ID:          "b1",
		AuthorName:  "Asha",
		AuthorEmail: "asha@x.com",
		Date:        "2025-03-05",
		TimeSlot:    "10:30",
	}, models.Consultant{Name: "Vandana", FullName: "Vandana Rao", Email: "vandana@bookleaf.in"})
	require.NoError(t, err)
	require.Len(t, d.sent, 1)

	m := d.sent[0]
	assert.Equal(t, []string{"vandana@bookleaf.in"}, m.GetHeader("To"))
	assert.Equal(t, []string{"asha@x.com"}, m.GetHeader("Cc"))
	assert.Contains(t, m.GetHeader("Subject")[0], "Wednesday, 5 Mar 2025")

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	assert.True(t, strings.Contains(buf.String(), "Vandana Rao"))
}

func TestSendBookingConfirmationNeedsEmail(t *testing.T) {
	s := &EmailSender{dialer: &captureDialer{}}
	err := s.SendBookingConfirmation(models.Booking{}, models.Consultant{Name: "Tannu"})
	assert.Error(t, err)
}
