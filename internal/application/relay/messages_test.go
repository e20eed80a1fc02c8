package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/ticketwatch/internal/domain/ticket"
)

func builderTicket(t *testing.T, assignee, description string) *ticket.Ticket {
	t.Helper()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tk, err := ticket.NewTicket(42, 1, "バグ", "ログインできない", description, "佐藤", assignee, "Portal", "高", "未着手", created)
	require.NoError(t, err)
	return tk
}

func TestMessageBuilder_NewTicket(t *testing.T) {
	builder := NewMessageBuilder("https://redmine.example.com/", map[string]string{"山田太郎": "U123"})

	t.Run("mapped assignee gets mentioned", func(t *testing.T) {
		msg := builder.NewTicket(builderTicket(t, "山田太郎", "desc"))

		assert.Equal(t, "新しいチケットが作成されました。<@U123>", msg.Text)
		assert.Equal(t, "#A31E24", msg.Color)
		assert.Equal(t, "バグ #42: ログインできない", msg.Title)
		assert.Equal(t, "https://redmine.example.com/issues/42", msg.TitleLink, "trailing slash on the base URL must not double up")
		assert.Equal(t, "desc\n担当者: 山田太郎", msg.Footer)
	})

	t.Run("unmapped assignee gets no mention", func(t *testing.T) {
		msg := builder.NewTicket(builderTicket(t, "鈴木一郎", "desc"))

		assert.Equal(t, "新しいチケットが作成されました。", msg.Text)
		assert.Equal(t, "desc\n担当者: 鈴木一郎", msg.Footer)
	})

	t.Run("unassigned ticket is labeled", func(t *testing.T) {
		msg := builder.NewTicket(builderTicket(t, "", "desc"))

		assert.Equal(t, "新しいチケットが作成されました。", msg.Text)
		assert.Contains(t, msg.Footer, "担当者: 未割り当て")
	})

	t.Run("html is stripped from the description", func(t *testing.T) {
		msg := builder.NewTicket(builderTicket(t, "", `<p>手順は<a href="http://evil">こちら</a></p><script>alert(1)</script>`))

		assert.NotContains(t, msg.Footer, "<")
		assert.Contains(t, msg.Footer, "手順は")
		assert.NotContains(t, msg.Footer, "alert(1)")
	})
}

func TestMessageBuilder_FollowUp(t *testing.T) {
	builder := NewMessageBuilder("https://redmine.example.com", map[string]string{"山田太郎": "U123"})

	msg := builder.FollowUp(builderTicket(t, "山田太郎", "desc"))

	assert.Equal(t, "下記のチケットが未着手です。<@U123>", msg.Text)
	assert.Equal(t, "#FFCC01", msg.Color)
	assert.Equal(t, "バグ #42: ログインできない", msg.Title)
	assert.Equal(t, "https://redmine.example.com/issues/42", msg.TitleLink)
}

func TestMessageBuilder_NilMentionMap(t *testing.T) {
	builder := NewMessageBuilder("https://redmine.example.com", nil)

	msg := builder.NewTicket(builderTicket(t, "山田太郎", "desc"))

	assert.Equal(t, "新しいチケットが作成されました。", msg.Text)
}
