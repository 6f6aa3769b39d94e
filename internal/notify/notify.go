// Package notify mails a short digest after a search that wrote documents.
package notify

import (
	"context"
	"courtfetch/internal/components/assert"
	"courtfetch/internal/components/telemetry"
	"courtfetch/internal/engine"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jordan-wright/email"
)

const report_notifier_send = "notifier.send"

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

type Config struct {
	Smtp SmtpConfig `json:"smtp"`
	To   []string   `json:"to"`
}

func (c Config) Enabled() bool {
	return c.Smtp.Server != "" && len(c.To) > 0
}

// Search is the part of a finished search a digest talks about.
type Search struct {
	Portal string
	Label  string
	Report engine.Report
}

type Notifier struct {
	config Config
	tel    telemetry.API
	// send is swapped out in tests.
	send func(mail *email.Email, addr string, auth smtp.Auth) error
}

func NewNotifier(config Config, tel telemetry.API) Notifier {
	assert.NotNil(tel)
	return Notifier{
		config: config,
		tel:    telemetry.NewScopedAPI("notify", tel),
		send: func(mail *email.Email, addr string, auth smtp.Auth) error {
			return mail.Send(addr, auth)
		},
	}
}

// Compose builds the digest, ok is false when nothing was written and
// there is nothing worth mailing.
func (n Notifier) Compose(search Search) (mail *email.Email, ok bool) {
	if search.Report.DocumentsWritten == 0 {
		return nil, false
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Case", "Order date", "Document"})
	for _, view := range search.Report.Records {
		if view.Status != engine.StatusDownloaded {
			continue
		}
		t.AppendRow(table.Row{view.Sequence, view.CaseNumber, view.OrderDate, view.Path})
	}
	t.SetStyle(table.StyleLight)

	var body strings.Builder
	fmt.Fprintf(&body, "%d new document(s) from %s for %s.\n\n", search.Report.DocumentsWritten, search.Portal, search.Label)
	body.WriteString(t.Render())
	fmt.Fprintf(&body, "\n\nEverything was saved under %s.\n", search.Report.SearchDir)

	mail = email.NewEmail()
	mail.From = fmt.Sprintf("courtfetch <%s>", n.config.Smtp.EmailAddress)
	mail.To = n.config.To
	mail.Subject = fmt.Sprintf("[courtfetch] %d new document(s): %s", search.Report.DocumentsWritten, search.Label)
	mail.Text = []byte(body.String())
	return mail, true
}

// Notify mails the digest of a search. It does nothing when mail is not
// configured or the search wrote nothing.
func (n Notifier) Notify(ctx context.Context, search Search) error {
	if !n.config.Enabled() {
		return nil
	}
	mail, ok := n.Compose(search)
	if !ok {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	smtpCfg := n.config.Smtp
	addr := fmt.Sprintf("%s:%d", smtpCfg.Server, smtpCfg.Port)
	err := n.send(mail, addr, smtp.PlainAuth("", smtpCfg.EmailAddress, smtpCfg.Password, smtpCfg.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = n.send(mail, addr, nil)
	}
	if err != nil {
		n.tel.ReportBroken(report_notifier_send, err, search.Label)
		return err
	}
	n.tel.ReportDebug("digest sent", search.Label, len(mail.To))
	return nil
}
