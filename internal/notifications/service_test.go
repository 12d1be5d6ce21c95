package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/azure/follower-milestone-bot/internal/config"
	"github.com/azure/follower-milestone-bot/internal/models"
	"github.com/go-resty/resty/v2"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

// MockMailer is a mock implementation of mailSender
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) DialAndSend(msgs ...*gomail.Message) error {
	args := m.Called(msgs)
	return args.Error(0)
}

func TestFormatMilestoneMessage(t *testing.T) {
	message := FormatMilestoneMessage("gopher", models.PlatformTwitter, 1000, 1004)

	assert.Equal(t,
		"🎉 <b>Milestone Achieved!</b>\n\n"+
			"Profile: <b>@gopher</b> (twitter)\n"+
			"Reached: <b>1,004</b> followers\n"+
			"Milestone: <b>1,000</b> followers\n\n"+
			"Congratulations! 🚀",
		message)
}

func TestFormatMilestoneMessage_EscapesHandle(t *testing.T) {
	message := FormatMilestoneMessage("<script>", models.PlatformInstagram, 10, 12)
	assert.Contains(t, message, "@&lt;script&gt;")
	assert.NotContains(t, message, "<script>")
}

func TestTelegramChannel_MockMode(t *testing.T) {
	channel := NewTelegramChannel("")
	assert.True(t, channel.MockMode())
	assert.True(t, channel.Send(context.Background(), "12345", "hello"))
}

func TestTelegramChannel_Send(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected bool
	}{
		{
			name:     "Accepted",
			status:   http.StatusOK,
			body:     `{"ok":true,"result":{}}`,
			expected: true,
		},
		{
			name:     "Rejected by API",
			status:   http.StatusBadRequest,
			body:     `{"ok":false,"description":"Bad Request: chat not found"}`,
			expected: false,
		},
		{
			name:     "OK status but not ok",
			status:   http.StatusOK,
			body:     `{"ok":false}`,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload map[string]string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/botsecret/sendMessage", r.URL.Path)
				require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			channel := NewTelegramChannel("secret")
			channel.apiBaseURL = server.URL

			assert.Equal(t, tt.expected, channel.Send(context.Background(), "12345", "<b>hi</b>"))
			assert.Equal(t, "12345", payload["chat_id"])
			assert.Equal(t, "HTML", payload["parse_mode"])
			assert.Equal(t, "<b>hi</b>", payload["text"])
		})
	}
}

func TestTelegramChannel_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	hook := logtest.NewGlobal()
	defer hook.Reset()

	channel := NewTelegramChannel("123456:SECRET-TOKEN")
	channel.apiBaseURL = baseURL
	assert.False(t, channel.Send(context.Background(), "12345", "hi"))

	entries := hook.AllEntries()
	require.NotEmpty(t, entries)
	for _, entry := range entries {
		assert.NotContains(t, entry.Message, "SECRET-TOKEN")
	}
	assert.Contains(t, hook.LastEntry().Message, "chat 12345")
}

func TestService_SendRoutesEmail(t *testing.T) {
	mailer := &MockMailer{}
	mailer.On("DialAndSend", mock.Anything).Return(nil).Once()
	mailer.On("DialAndSend", mock.Anything).Return(errors.New("smtp down")).Once()

	service := NewService(&config.Config{SMTPUsername: "bot@example.com"})
	service.mailer = mailer

	assert.True(t, service.Send(context.Background(), "owner@example.com", "<b>hi</b>"))
	assert.False(t, service.Send(context.Background(), "owner@example.com", "<b>hi</b>"))
	mailer.AssertExpectations(t)
}

func TestService_SendEmailMockMode(t *testing.T) {
	service := NewService(&config.Config{})
	assert.True(t, service.Send(context.Background(), "owner@example.com", "hi"))
}

func TestService_SendRoutesTeams(t *testing.T) {
	var card TeamsMessage
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&card))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	service := NewService(&config.Config{})
	service.client = resty.NewWithClient(server.Client())

	assert.True(t, service.Send(context.Background(), server.URL, "line one\nline two"))
	assert.Equal(t, "MessageCard", card.Type)
	assert.Equal(t, "line one<br>line two", card.Text)
}

func TestService_SendTeamsFailure(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	service := NewService(&config.Config{})
	service.client = resty.NewWithClient(server.Client())

	assert.False(t, service.Send(context.Background(), server.URL, "hi"))
}

func TestService_SendRoutesTelegram(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	service := NewService(&config.Config{TelegramBotToken: "tok"})
	service.telegram.apiBaseURL = server.URL

	assert.True(t, service.Send(context.Background(), "12345", "hi"))
	assert.True(t, service.Send(context.Background(), "@my_channel", "hi"))
	assert.Equal(t, []string{"/bottok/sendMessage", "/bottok/sendMessage"}, paths)
}

func TestService_SendEmptyDestination(t *testing.T) {
	service := NewService(&config.Config{})
	assert.False(t, service.Send(context.Background(), "  ", "hi"))
}
