package mailer

import (
	"fmt"

	"github.com/osteele/liquid"
)

// Email template sources. Kept inline: there are four of them and they
// change together with the code that sends them.
const (
	confirmationHTMLSrc = `<html>
<body>
<p>Hi {{ subscriber_name }},</p>
<p>Welcome to our newsletter! Please confirm your subscription by clicking the link below:</p>
<p><a href="{{ confirmation_link }}">Confirm my subscription</a></p>
<p>If you did not sign up, you can safely ignore this email.</p>
</body>
</html>`

	confirmationTextSrc = `Hi {{ subscriber_name }},

Welcome to our newsletter! Please confirm your subscription by visiting:

{{ confirmation_link }}

If you did not sign up, you can safely ignore this email.`

	alreadySubscribedHTMLSrc = `<html>
<body>
<p>Hi {{ subscriber_name }},</p>
<p>You are already subscribed to our newsletter - no further action is needed.</p>
</body>
</html>`

	alreadySubscribedTextSrc = `Hi {{ subscriber_name }},

You are already subscribed to our newsletter - no further action is needed.`
)

// Templates renders the transactional emails sent outside the delivery
// queue (confirmation, already-subscribed).
type Templates struct {
	confirmationHTML      *liquid.Template
	confirmationText      *liquid.Template
	alreadySubscribedHTML *liquid.Template
	alreadySubscribedText *liquid.Template
}

// NewTemplates parses the built-in email templates.
func NewTemplates() (*Templates, error) {
	engine := liquid.NewEngine()

	var t Templates
	var err error
	if t.confirmationHTML, err = engine.ParseString(confirmationHTMLSrc); err != nil {
		return nil, fmt.Errorf("parse confirmation html template: %w", err)
	}
	if t.confirmationText, err = engine.ParseString(confirmationTextSrc); err != nil {
		return nil, fmt.Errorf("parse confirmation text template: %w", err)
	}
	if t.alreadySubscribedHTML, err = engine.ParseString(alreadySubscribedHTMLSrc); err != nil {
		return nil, fmt.Errorf("parse already-subscribed html template: %w", err)
	}
	if t.alreadySubscribedText, err = engine.ParseString(alreadySubscribedTextSrc); err != nil {
		return nil, fmt.Errorf("parse already-subscribed text template: %w", err)
	}
	return &t, nil
}

// Confirmation renders the confirmation email bodies for the given
// subscriber and link.
func (t *Templates) Confirmation(subscriberName, confirmationLink string) (htmlBody, textBody string, err error) {
	bindings := liquid.Bindings{
		"subscriber_name":   subscriberName,
		"confirmation_link": confirmationLink,
	}
	htmlBody, err = t.confirmationHTML.RenderString(bindings)
	if err != nil {
		return "", "", fmt.Errorf("render confirmation html: %w", err)
	}
	textBody, err = t.confirmationText.RenderString(bindings)
	if err != nil {
		return "", "", fmt.Errorf("render confirmation text: %w", err)
	}
	return htmlBody, textBody, nil
}

// AlreadySubscribed renders the courtesy email bodies for a subscriber who
// signed up again while already confirmed.
func (t *Templates) AlreadySubscribed(subscriberName string) (htmlBody, textBody string, err error) {
	bindings := liquid.Bindings{"subscriber_name": subscriberName}
	htmlBody, err = t.alreadySubscribedHTML.RenderString(bindings)
	if err != nil {
		return "", "", fmt.Errorf("render already-subscribed html: %w", err)
	}
	textBody, err = t.alreadySubscribedText.RenderString(bindings)
	if err != nil {
		return "", "", fmt.Errorf("render already-subscribed text: %w", err)
	}
	return htmlBody, textBody, nil
}
