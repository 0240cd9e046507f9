package core

import (
	"net/mail"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTemplatesFS() fstest.MapFS {
	return fstest.MapFS{
		"templates/email/_base.txt":       {Data: []byte(`{{define "base"}}{{template "content" .}}-- {{.AppName}}{{end}}`)},
		"templates/email/_base.gohtml":    {Data: []byte(`{{define "base"}}<body>{{template "content" .}}</body>{{end}}`)},
		"templates/email/hello.txt":       {Data: []byte(`{{define "content"}}Hi {{.Data.Name}} {{end}}`)},
		"templates/email/hello.gohtml":    {Data: []byte(`{{define "content"}}<p>Hi {{.Data.Name}}</p>{{end}}`)},
		"templates/email/textonly.txt":    {Data: []byte(`{{define "content"}}plain{{end}}`)},
		"templates/email/README.md":       {Data: []byte(`ignored`)},
		"templates/email/_partial.gohtml": {Data: []byte(`ignored`)},
	}
}

func TestParseEmailTemplates(t *testing.T) {
	tmpls, err := ParseEmailTemplates(testTemplatesFS(), NewTestConfig())
	require.NoError(t, err)

	assert.True(t, tmpls.Has("hello"))
	assert.True(t, tmpls.Has("textonly"))
	assert.False(t, tmpls.Has("README"))
	assert.False(t, tmpls.Has("_partial"))
}

func TestEmailTemplates_Render(t *testing.T) {
	conf := NewTestConfig()
	tmpls, err := ParseEmailTemplates(testTemplatesFS(), conf)
	require.NoError(t, err)

	t.Run("text and html", func(t *testing.T) {
		msg := &EmailMessage{
			To:           []mail.Address{{Name: "Ada", Address: "ada@test.cd"}},
			TemplateName: "hello",
			TemplateData: map[string]string{"Name": "Ada"},
		}
		require.NoError(t, tmpls.Render(msg))
		assert.Equal(t, "Hi Ada -- "+conf.AppName, msg.TextContent)
		assert.Equal(t, "<body><p>Hi Ada</p></body>", msg.HTMLContent)
		assert.True(t, msg.HasContent())
		assert.True(t, msg.HasRecipients())
	})

	t.Run("text only", func(t *testing.T) {
		msg := &EmailMessage{TemplateName: "textonly"}
		require.NoError(t, tmpls.Render(msg))
		assert.Equal(t, "plain-- "+conf.AppName, msg.TextContent)
		assert.Empty(t, msg.HTMLContent)
	})

	t.Run("body string wins over text template", func(t *testing.T) {
		msg := &EmailMessage{BodyStr: "raw", TemplateName: "hello", TemplateData: map[string]string{"Name": "Ada"}}
		require.NoError(t, tmpls.Render(msg))
		assert.Equal(t, "raw", msg.TextContent)
		assert.Equal(t, "<body><p>Hi Ada</p></body>", msg.HTMLContent)
	})

	t.Run("unknown template", func(t *testing.T) {
		msg := &EmailMessage{TemplateName: "lol"}
		assert.Error(t, tmpls.Render(msg))
	})

	t.Run("missing key is an error in test mode", func(t *testing.T) {
		msg := &EmailMessage{TemplateName: "hello", TemplateData: map[string]string{}}
		assert.Error(t, tmpls.Render(msg))
	})
}
