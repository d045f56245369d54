package mailer

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"
)

type Kind string

const (
	KindVerification  Kind = "verification"
	KindPasswordReset Kind = "password_reset"
	KindEmailChange   Kind = "email_change"
)

type messageData struct {
	Username  string
	Link      string
	ExpiresIn string
	Year      int
}

type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

var subjects = map[Kind]string{
	KindVerification:  "Verify your account",
	KindPasswordReset: "Reset your password",
	KindEmailChange:   "Confirm your new email address",
}

var textTemplates = map[Kind]*texttemplate.Template{
	KindVerification: texttemplate.Must(texttemplate.New("verification").Parse(`Hi {{.Username}},

Welcome aboard. Please confirm your email address by opening the link below:
{{.Link}}

This link expires in {{.ExpiresIn}}.

If you did not create an account you can safely ignore this message.

(c) {{.Year}}`)),
	KindPasswordReset: texttemplate.Must(texttemplate.New("password_reset").Parse(`Hi {{.Username}},

We received a request to reset your password. Choose a new one here:
{{.Link}}

This link expires in {{.ExpiresIn}}. If you did not ask for a reset, ignore this message and your password stays unchanged.

(c) {{.Year}}`)),
	KindEmailChange: texttemplate.Must(texttemplate.New("email_change").Parse(`Hi {{.Username}},

Your account email was changed to this address. Confirm it by opening the link below:
{{.Link}}

This link expires in {{.ExpiresIn}}.

If you did not make this change, contact support.

(c) {{.Year}}`)),
}

const htmlLayout = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.Parts.Title}}</title></head>
<body style="font-family: Arial, sans-serif; background: #f4f4f4; padding: 24px;">
  <div style="max-width: 600px; margin: 0 auto; background: #ffffff; border-radius: 8px; padding: 32px;">
    <h2>Hi {{.Data.Username}},</h2>
    <p>{{.Parts.Intro}}</p>
    <p style="text-align: center;">
      <a href="{{.Data.Link}}" style="background: #667eea; color: #ffffff; padding: 12px 24px; border-radius: 4px; text-decoration: none;">{{.Parts.Action}}</a>
    </p>
    <p>Or paste this link into your browser:<br>{{.Data.Link}}</p>
    <p>This link expires in {{.Data.ExpiresIn}}.</p>
    <p style="color: #888888; font-size: 12px;">{{.Parts.Footer}}<br>&copy; {{.Data.Year}}</p>
  </div>
</body>
</html>`

var htmlTemplate = htmltemplate.Must(htmltemplate.New("layout").Parse(htmlLayout))

type htmlParts struct {
	Title  string
	Intro  string
	Action string
	Footer string
}

var htmlCopy = map[Kind]htmlParts{
	KindVerification: {
		Title:  "Verify your account",
		Intro:  "Welcome aboard. Please confirm your email address to finish setting up your account.",
		Action: "Verify email",
		Footer: "If you did not create an account you can safely ignore this message.",
	},
	KindPasswordReset: {
		Title:  "Reset your password",
		Intro:  "We received a request to reset your password.",
		Action: "Choose a new password",
		Footer: "If you did not ask for a reset, ignore this message and your password stays unchanged.",
	},
	KindEmailChange: {
		Title:  "Confirm your new email address",
		Intro:  "Your account email was changed to this address. Please confirm it.",
		Action: "Confirm email",
		Footer: "If you did not make this change, contact support.",
	},
}

func render(kind Kind, to string, data messageData) (Message, error) {
	textTmpl, ok := textTemplates[kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown message kind %q", kind)
	}

	var text bytes.Buffer
	if err := textTmpl.Execute(&text, data); err != nil {
		return Message{}, err
	}

	var html bytes.Buffer
	parts := htmlCopy[kind]
	err := htmlTemplate.Execute(&html, struct {
		Parts htmlParts
		Data  messageData
	}{parts, data})
	if err != nil {
		return Message{}, err
	}

	return Message{
		To:      to,
		Subject: subjects[kind],
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

// humanizeDuration renders whole days or hours the way people read them in
// an email ("24 hours", "1 hour", "30 days").
func humanizeDuration(d time.Duration) string {
	switch {
	case d >= 48*time.Hour && d%(24*time.Hour) == 0:
		return plural(int(d/(24*time.Hour)), "day")
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	default:
		minutes := int(d / time.Minute)
		if minutes < 1 {
			minutes = 1
		}
		return plural(minutes, "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
