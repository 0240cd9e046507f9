package emailsvc

import (
	"bytes"
	"encoding/json"
	"log"
	"net/mail"
	"testing"

	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/afya/core"
	appfs "github.com/trezcool/afya/fs"
	logsvc "github.com/trezcool/afya/services/logger"
)

func setup(t *testing.T) (*core.Config, *core.EmailTemplates, core.Logger, *bytes.Buffer) {
	conf := core.NewTestConfig()
	tmpls, err := core.ParseEmailTemplates(appfs.FS, conf)
	require.NoError(t, err)
	var buf bytes.Buffer
	return conf, tmpls, logsvc.NewRollbarLogger(log.New(&buf, "", 0), conf), &buf
}

func welcomeMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: "Ada", Address: "ada@test.cd"}},
		Subject:      "Welcome",
		TemplateName: "welcome",
		TemplateData: map[string]string{"Name": "Ada", "Username": "ada"},
	}
}

func TestConsoleService_SendMessages(t *testing.T) {
	conf, tmpls, logger, buf := setup(t)
	svc := NewConsoleService(conf, tmpls, logger)

	svc.SendMessages(welcomeMessage())
	svc.Wait()

	out := buf.String()
	assert.Contains(t, out, "Subject: [Afya] Welcome")
	assert.Contains(t, out, `To: "Ada" <ada@test.cd>`)
	assert.Contains(t, out, "text/plain")
	assert.Contains(t, out, "text/html")
	assert.Contains(t, out, "Hello Ada")
}

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	conf, tmpls, logger, buf := setup(t)
	svc := NewConsoleServiceMock(conf, tmpls, logger)

	noRecipient := &core.EmailMessage{Subject: "lost", BodyStr: "nobody"}
	unknown := &core.EmailMessage{To: []mail.Address{{Address: "x@test.cd"}}, TemplateName: "lol"}
	svc.SendMessages(welcomeMessage(), noRecipient, unknown)

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextContent, "Hello Ada")
	assert.Contains(t, sent[0].HTMLContent, "<strong>ada</strong>")
	assert.Contains(t, buf.String(), "rendering email")

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

func TestSendgridService_prepare(t *testing.T) {
	conf, tmpls, logger, _ := setup(t)
	svc := NewSendgridService(conf, tmpls, logger)

	msg := welcomeMessage()
	msg.Cc = []mail.Address{{Address: "cc@test.cd"}}
	require.NoError(t, tmpls.Render(msg))

	var body struct {
		From             struct{ Email string } `json:"from"`
		Personalizations []struct {
			To      []struct{ Email string } `json:"to"`
			CC      []struct{ Email string } `json:"cc"`
			Subject string                   `json:"subject"`
		} `json:"personalizations"`
		Content []struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(sgmailBody(svc, *msg), &body))

	assert.Equal(t, conf.DefaultFromEmail.Address, body.From.Email)
	require.Len(t, body.Personalizations, 1)
	assert.Equal(t, "[Afya] Welcome", body.Personalizations[0].Subject)
	assert.Equal(t, "ada@test.cd", body.Personalizations[0].To[0].Email)
	assert.Equal(t, "cc@test.cd", body.Personalizations[0].CC[0].Email)
	require.Len(t, body.Content, 2)
	assert.Equal(t, "text/plain", body.Content[0].Type)
	assert.Equal(t, "text/html", body.Content[1].Type)
}

func sgmailBody(svc *sendgridService, msg core.EmailMessage) []byte {
	return sgmail.GetRequestBody(svc.prepare(msg))
}
