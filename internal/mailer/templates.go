package mailer

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/stuffr/marketplace/internal/queue"
)

type tmpl struct {
	subject string
	body    *template.Template
}

var templates = map[queue.MailKind]tmpl{
	queue.MailForgotPassword: {
		subject: "Password reset",
		body: template.Must(template.New("forgot").Parse(
			`<div><h2>Hello!</h2><p>To reset your password follow the link <a href="{{.Link}}">{{.Link}}</a></p></div>`)),
	},
	queue.MailPasswordChanged: {
		subject: "Password changed",
		body: template.Must(template.New("changed").Parse(
			`<div><h2>Hello!</h2><p>The password for account {{.Email}} was changed successfully</p></div>`)),
	},
}

// render returns the subject and HTML body for an event.
func render(ev queue.MailEvent) (string, string, error) {
	t, ok := templates[ev.Kind]
	if !ok {
		return "", "", fmt.Errorf("mailer: no template for %q", ev.Kind)
	}
	var buf bytes.Buffer
	if err := t.body.Execute(&buf, ev); err != nil {
		return "", "", fmt.Errorf("mailer: render %s: %w", ev.Kind, err)
	}
	return t.subject, buf.String(), nil
}
