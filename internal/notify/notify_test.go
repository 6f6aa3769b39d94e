package notify

import (
	"context"
	"courtfetch/internal/components/telemetry"
	"courtfetch/internal/engine"
	"courtfetch/internal/records"
	"errors"
	"net/smtp"
	"testing"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/require"
)

var config = Config{
	Smtp: SmtpConfig{Server: "mail.example.org", Port: 587, EmailAddress: "bot@example.org", Password: "secret"},
	To:   []string{"clerk@example.org"},
}

func search(written int) Search {
	return Search{
		Portal: "andhra",
		Label:  "citation 2025 (1) ALT 5",
		Report: engine.Report{
			SearchDir:        "/out/andhra/2025-03-14/citation_2025_1_ALT_5",
			DocumentsWritten: written,
			Records: []engine.RecordView{
				{Record: records.Record{Sequence: 1, CaseNumber: "CRLP/1/2025", OrderDate: "12-03-2025"}, Status: engine.StatusDownloaded, Path: "/out/a/CRLP_1_2025.pdf"},
				{Record: records.Record{Sequence: 2, CaseNumber: "WP/2/2025", OrderDate: "12-03-2025"}, Status: engine.StatusNoLocator},
			},
		},
	}
}

func TestCompose(t *testing.T) {
	n := NewNotifier(config, telemetry.NewRecorder())

	_, ok := n.Compose(search(0))
	require.False(t, ok)

	mail, ok := n.Compose(search(1))
	require.True(t, ok)
	require.Equal(t, "courtfetch <bot@example.org>", mail.From)
	require.Equal(t, []string{"clerk@example.org"}, mail.To)
	require.Contains(t, mail.Subject, "1 new document(s)")

	body := string(mail.Text)
	require.Contains(t, body, "CRLP/1/2025")
	require.Contains(t, body, "/out/a/CRLP_1_2025.pdf")
	require.NotContains(t, body, "WP/2/2025")
	require.Contains(t, body, "citation_2025_1_ALT_5")
}

func TestNotifyFallsBackWithoutAuth(t *testing.T) {
	recorder := telemetry.NewRecorder()
	n := NewNotifier(config, recorder)

	var auths []smtp.Auth
	n.send = func(mail *email.Email, addr string, auth smtp.Auth) error {
		require.Equal(t, "mail.example.org:587", addr)
		auths = append(auths, auth)
		if auth != nil {
			return errors.New("smtp: server doesn't support AUTH")
		}
		return nil
	}
	require.NoError(t, n.Notify(context.Background(), search(1)))
	require.Len(t, auths, 2)
	require.Nil(t, auths[1])

	n.send = func(*email.Email, string, smtp.Auth) error { return errors.New("connection refused") }
	require.Error(t, n.Notify(context.Background(), search(1)))
	require.Len(t, recorder.Find(telemetry.KindBroken, report_notifier_send), 1)
}

func TestNotifySkips(t *testing.T) {
	n := NewNotifier(Config{}, telemetry.NewRecorder())
	n.send = func(*email.Email, string, smtp.Auth) error {
		t.Fatal("nothing should be sent")
		return nil
	}
	require.NoError(t, n.Notify(context.Background(), search(3)))

	n.config = config
	require.NoError(t, n.Notify(context.Background(), search(0)))
}
