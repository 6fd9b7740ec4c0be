package email

import (
	"bytes"
	"fmt"
	"html/template"
)

// Built-in templates; the surrounding product brands these, the core only
// needs a working default.

type LinkVars struct {
	DisplayName string
	Link        string
	TTL         string
}

var verifyHTML = template.Must(template.New("verify_html").Parse(`<p>Hi {{.DisplayName}},</p>
<p>Confirm your email address to finish setting up your account:</p>
<p><a href="{{.Link}}">Verify email</a></p>
<p>The link expires in {{.TTL}}.</p>`))

var resetHTML = template.Must(template.New("reset_html").Parse(`<p>Hi {{.DisplayName}},</p>
<p>We received a request to reset your password:</p>
<p><a href="{{.Link}}">Reset password</a></p>
<p>The link expires in {{.TTL}}. If you didn't ask for this, ignore this mail.</p>`))

// RenderVerify returns subject, html and text bodies for the verify mail.
func RenderVerify(v LinkVars) (subject, html, text string) {
	return "Verify your email",
		render(verifyHTML, v),
		fmt.Sprintf("Hi %s,\n\nConfirm your email address: %s\n\nThe link expires in %s.\n", v.DisplayName, v.Link, v.TTL)
}

// RenderReset returns subject, html and text bodies for the reset mail.
func RenderReset(v LinkVars) (subject, html, text string) {
	return "Reset your password",
		render(resetHTML, v),
		fmt.Sprintf("Hi %s,\n\nReset your password: %s\n\nThe link expires in %s. If you didn't ask for this, ignore this mail.\n", v.DisplayName, v.Link, v.TTL)
}

func render(t *template.Template, v LinkVars) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, v); err != nil {
		return ""
	}
	return buf.String()
}
