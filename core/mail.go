package core

import (
	"bytes"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

const emailTemplatesDir = "templates/email"

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		AppName         string
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailTemplates holds the parsed email templates, by name.
	EmailTemplates struct {
		appName         string
		frontendBaseURL string
		text            map[string]*texttmpl.Template
		html            map[string]*htmltmpl.Template
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
		// Wait blocks until the pending messages are sent
		Wait()
	}
)

// ParseEmailTemplates parses every "templates/email/<name>.{txt,gohtml}" file of fsys
// along with its "_base" layout. Files starting with "_" are layouts only.
func ParseEmailTemplates(fsys fs.FS, conf *Config) (*EmailTemplates, error) {
	tmpls := &EmailTemplates{
		appName:         conf.AppName,
		frontendBaseURL: conf.FrontendBaseURL,
		text:            make(map[string]*texttmpl.Template),
		html:            make(map[string]*htmltmpl.Template),
	}

	fps, err := fs.Glob(fsys, path.Join(emailTemplatesDir, "*"))
	if err != nil {
		return nil, errors.Wrap(err, "core.ParseEmailTemplates")
	}

	strict := conf.Debug || conf.TestMode
	for _, fp := range fps {
		fname := path.Base(fp)
		ext := path.Ext(fname)
		if strings.HasPrefix(fname, "_") || !(ext == ".txt" || ext == ".gohtml") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		base := path.Join(emailTemplatesDir, "_base"+ext)

		if ext == ".txt" {
			tmpl, err := texttmpl.ParseFS(fsys, base, fp)
			if err != nil {
				return nil, errors.Wrapf(err, "core.ParseEmailTemplates(%s)", fname)
			}
			if strict {
				tmpl = tmpl.Option("missingkey=error")
			}
			tmpls.text[name] = tmpl
		} else {
			tmpl, err := htmltmpl.ParseFS(fsys, base, fp)
			if err != nil {
				return nil, errors.Wrapf(err, "core.ParseEmailTemplates(%s)", fname)
			}
			if strict {
				tmpl = tmpl.Option("missingkey=error")
			}
			tmpls.html[name] = tmpl
		}
	}
	return tmpls, nil
}

// Has reports whether a template with the given name exists in either format.
func (t *EmailTemplates) Has(name string) bool {
	_, txt := t.text[name]
	_, html := t.html[name]
	return txt || html
}

func (t *EmailTemplates) contextData(m *EmailMessage) ContextData {
	return ContextData{
		AppName:         t.appName,
		FrontendBaseURL: t.frontendBaseURL,
		Data:            m.TemplateData,
	}
}

// Render fills in the text and HTML contents of m.
func (t *EmailTemplates) Render(m *EmailMessage) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	if m.TemplateName == "" {
		return nil
	}
	if !t.Has(m.TemplateName) {
		return errors.Errorf("core.Render: unknown email template %q", m.TemplateName)
	}

	data := t.contextData(m)
	if tmpl, ok := t.text[m.TemplateName]; ok && m.BodyStr == "" {
		var buff bytes.Buffer
		if err := tmpl.ExecuteTemplate(&buff, "base", data); err != nil {
			return errors.Wrap(err, "core.Render")
		}
		m.TextContent = buff.String()
	}
	if tmpl, ok := t.html[m.TemplateName]; ok {
		var buff bytes.Buffer
		if err := tmpl.ExecuteTemplate(&buff, "base", data); err != nil {
			return errors.Wrap(err, "core.Render")
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }
