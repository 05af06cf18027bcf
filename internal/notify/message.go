package notify

import (
	"fmt"
	"strings"

	"ms-registration/internal/models"
)

const dateLayout = "Mon, 02 Jan 2006 15:04 MST"

// Render builds the plain-text subject and body for a notification.
func Render(n models.Notification) (subject, body string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", greetingName(n.AttendeeName))

	switch n.Type {
	case models.NotificationRegistrationCreated, models.NotificationWaitlistPromoted:
		subject = "You're registered: " + n.EventTitle
		if n.Type == models.NotificationWaitlistPromoted {
			subject = "A spot opened up: " + n.EventTitle
			b.WriteString("Good news, a spot opened up and you have been moved off the waitlist.\n\n")
		}
		fmt.Fprintf(&b, "Your registration for %s on %s is confirmed.\n", n.EventTitle, n.EventStart.Format(dateLayout))
		writeTicket(&b, n)
	case models.NotificationRegistrationPaid:
		subject = "Payment received: " + n.EventTitle
		fmt.Fprintf(&b, "We received your payment of %.2f for %s.\n", n.TicketPrice, n.EventTitle)
		writeTicket(&b, n)
	case models.NotificationRegistrationCancelled:
		subject = "Registration cancelled: " + n.EventTitle
		fmt.Fprintf(&b, "Your registration for %s has been cancelled.\n", n.EventTitle)
	case models.NotificationWaitlistJoined:
		subject = "You're on the waitlist: " + n.EventTitle
		fmt.Fprintf(&b, "%s is full. You joined the waitlist at position %d.\n", n.EventTitle, n.Position)
		b.WriteString("We'll email you if a spot opens up.\n")
	case models.NotificationWaitlistOffered:
		subject = "A ticket is available: " + n.EventTitle
		fmt.Fprintf(&b, "A spot opened up for %s. Claim it from the event page and pay %.2f to confirm.\n", n.EventTitle, n.TicketPrice)
		b.WriteString("The spot is not held for you until you claim it.\n")
	default:
		subject = "Update: " + n.EventTitle
		fmt.Fprintf(&b, "There is an update about %s.\n", n.EventTitle)
	}

	b.WriteString("\nSee you there.\n")
	return subject, b.String()
}

func writeTicket(b *strings.Builder, n models.Notification) {
	if n.QRCode == "" {
		return
	}
	fmt.Fprintf(b, "\nTicket code: %s\n", n.QRCode)
	if n.PaymentStatus == models.PaymentStatusPending {
		b.WriteString("Payment is still pending for this ticket.\n")
	}
}

func greetingName(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return "there"
	}
	return name
}
