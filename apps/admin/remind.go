package main

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/trezcool/afya/core"
	"github.com/trezcool/afya/core/child"
	"github.com/trezcool/afya/core/user"
)

const reminderTemplate = "vaccination_reminder"

var nowFunc = child.NowFunc // mockable

type reminderData struct {
	ParentName string
	Children   []child.DoseReminder
}

// remind emails every parent whose children have upcoming or overdue doses on date (today if empty).
func (cli *commandLine) remind(date string) error {
	ctx := context.Background()

	today := core.Today(nowFunc())
	if date != "" {
		d, err := core.ParseDate(date)
		if err != nil {
			return err
		}
		today = d
	}

	reminders, err := cli.childSvc.DueReminders(ctx, today)
	if err != nil {
		return errors.Wrap(err, "collecting reminders")
	}

	messages := make([]*core.EmailMessage, 0, len(reminders))
	for _, rem := range reminders {
		parent, err := cli.usrSvc.GetByID(ctx, rem.ParentID)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				continue
			}
			return errors.Wrap(err, "finding parent")
		}
		if parent.Email == "" {
			continue
		}
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: parent.Name, Address: parent.Email}},
			Subject:      "Vaccination reminder",
			TemplateName: reminderTemplate,
			TemplateData: reminderData{ParentName: parent.Name, Children: rem.Children},
		})
	}

	cli.mailSvc.SendMessages(messages...)
	cli.mailSvc.Wait()
	fmt.Printf("%d reminder(s) sent\n", len(messages))
	return nil
}
