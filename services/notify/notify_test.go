package notifysvc

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/core"
	emailsvc "github.com/trezcool/registrar/services/email"
	logsvc "github.com/trezcool/registrar/services/logger"
)

func TestNew(t *testing.T) {
	std, hook := test.NewNullLogger()
	conf := core.NewTestConfig()
	logger := logsvc.NewRollbarLogger(std.WithField("component", "test"), conf)
	logger.Enable(false)
	mailSvc := emailsvc.NewConsoleServiceMock(conf)

	tests := []struct {
		name      string
		email     string
		kind      string
		wantLevel logrus.Level
		wantMails int
	}{
		{name: "log only", kind: core.NoticeSuccess, wantLevel: logrus.InfoLevel},
		{name: "warning", kind: core.NoticeWarning, wantLevel: logrus.WarnLevel},
		{name: "error with mail", email: "registrar@school.test", kind: core.NoticeError, wantLevel: logrus.ErrorLevel, wantMails: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook.Reset()
			mailSvc.Sent = nil
			conf.NotifyEmail = tt.email

			New(conf, logger, mailSvc).Notify("Section archived", "5 students archived", tt.kind)

			entry := hook.LastEntry()
			require.NotNil(t, entry)
			assert.Equal(t, tt.wantLevel, entry.Level)
			assert.Equal(t, "Section archived", entry.Message)
			assert.Equal(t, "5 students archived", entry.Data["notice"])

			msgs := mailSvc.Messages()
			require.Len(t, msgs, tt.wantMails)
			if tt.wantMails > 0 {
				assert.Equal(t, "["+tt.kind+"] Section archived", msgs[0].Subject)
			}
		})
	}
}
