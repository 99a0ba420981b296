// Package notifysvc delivers end-of-run notices (imports, archivals).
package notifysvc

import (
	"net/mail"

	"github.com/trezcool/registrar/core"
)

// LogNotifier writes notices to the logger, error notices at error level.
type LogNotifier struct {
	logger core.Logger
}

var _ core.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger core.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n LogNotifier) Notify(title, message, kind string) {
	fields := map[string]interface{}{"kind": kind, "notice": message}
	switch kind {
	case core.NoticeError:
		n.logger.Error(title, fields)
	case core.NoticeWarning:
		n.logger.Warn(title, fields)
	default:
		n.logger.Info(title, fields)
	}
}

// MailNotifier emails notices to a fixed address.
type MailNotifier struct {
	to      mail.Address
	mailSvc core.EmailService
}

var _ core.Notifier = (*MailNotifier)(nil)

func NewMailNotifier(to string, mailSvc core.EmailService) (*MailNotifier, error) {
	addr, err := mail.ParseAddress(to)
	if err != nil {
		return nil, err
	}
	return &MailNotifier{to: *addr, mailSvc: mailSvc}, nil
}

func (n MailNotifier) Notify(title, message, kind string) {
	n.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{n.to},
		Subject: "[" + kind + "] " + title,
		Body:    message,
	})
}

// Multi fans a notice out to every notifier.
type Multi []core.Notifier

func (m Multi) Notify(title, message, kind string) {
	for _, n := range m {
		n.Notify(title, message, kind)
	}
}

// New returns the log notifier, plus the mail notifier when `conf.NotifyEmail` is set.
func New(conf *core.Config, logger core.Logger, mailSvc core.EmailService) core.Notifier {
	notifiers := Multi{NewLogNotifier(logger)}
	if conf.NotifyEmail != "" {
		mn, err := NewMailNotifier(conf.NotifyEmail, mailSvc)
		if err != nil {
			logger.Warn("invalid notify email, mail notices disabled", err)
		} else {
			notifiers = append(notifiers, mn)
		}
	}
	return notifiers
}
