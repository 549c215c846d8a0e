package mailer

import (
	"fmt"
	"html"
)

// LetterShareEmail builds the message delivering a letter share link
func LetterShareEmail(to, receiverName, senderName, baseURL, token string) Message {
	link := fmt.Sprintf("%s/letters/shared/%s", baseURL, token)
	name := receiverName
	if name == "" {
		name = "there"
	}
	body := fmt.Sprintf(
		`<p>Hi %s,</p>`+
			`<p>%s wrote you a letter on Dearly.</p>`+
			`<p><a href="%s">Open your letter</a></p>`+
			`<p>This link is personal to you, please don't forward it.</p>`,
		html.EscapeString(name), html.EscapeString(senderName), link,
	)
	return Message{
		To:      to,
		Subject: fmt.Sprintf("%s sent you a letter", senderName),
		HTML:    body,
	}
}

// VerificationEmail builds the address-confirmation message
func VerificationEmail(to, baseURL, token string) Message {
	link := fmt.Sprintf("%s/verify-email?token=%s", baseURL, token)
	body := fmt.Sprintf(
		`<p>Welcome to Dearly!</p>`+
			`<p>Please confirm your email address:</p>`+
			`<p><a href="%s">Verify my email</a></p>`+
			`<p>This link expires in 24 hours.</p>`,
		link,
	)
	return Message{To: to, Subject: "Verify your Dearly email", HTML: body}
}

// GamePrizeEmail builds the reward message sent when a receiver completes
// a letter's game or quiz.
func GamePrizeEmail(to, gameTitle, reward string) Message {
	body := fmt.Sprintf(
		`<p>Congratulations, you finished "%s"!</p>`+
			`<p>Your prize:</p>`+
			`<blockquote>%s</blockquote>`,
		html.EscapeString(gameTitle), html.EscapeString(reward),
	)
	return Message{
		To:      to,
		Subject: fmt.Sprintf("You won a prize: %s", gameTitle),
		HTML:    body,
	}
}

// DateResponseEmail tells the sender how their date invitation was answered
func DateResponseEmail(to, receiverName, title, status, responseMessage string) Message {
	body := fmt.Sprintf(
		`<p>%s %s your date invitation "%s".</p>`,
		html.EscapeString(receiverName), html.EscapeString(status), html.EscapeString(title),
	)
	if responseMessage != "" {
		body += fmt.Sprintf(`<blockquote>%s</blockquote>`, html.EscapeString(responseMessage))
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Your date invitation was %s", status),
		HTML:    body,
	}
}
