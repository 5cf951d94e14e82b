package reporter

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"go-lead-radar/internal/health"
	"go-lead-radar/internal/models"
	"go-lead-radar/internal/textutil"
)

const maxExcerpt = 300

// Sender is the part of tgbotapi.BotAPI the reporter uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramReporter struct {
	bot    Sender
	chatID int64
}

func NewTelegramReporter(token string, chatID int64) (*TelegramReporter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}

	//turn this on in case of debug
	//bot.Debug = true

	return NewTelegramReporterWithSender(bot, chatID), nil
}

func NewTelegramReporterWithSender(bot Sender, chatID int64) *TelegramReporter {
	return &TelegramReporter{bot: bot, chatID: chatID}
}

func (t *TelegramReporter) SendMessage(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := t.bot.Send(msg)
	return err
}

// NotifyOpportunity sends one high scoring post with a button to open it.
func (t *TelegramReporter) NotifyOpportunity(ctx context.Context, post models.Post, business models.Business, analysis models.Analysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, FormatOpportunity(post, business, analysis))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if post.URL != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("🔗 View Post", post.URL)),
		)
	}
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send opportunity: %w", err)
	}
	return nil
}

func (t *TelegramReporter) SendHealthReport(ctx context.Context, report health.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.SendMessage(FormatHealthReport(report)); err != nil {
		return fmt.Errorf("send health report: %w", err)
	}
	return nil
}

func FormatOpportunity(post models.Post, business models.Business, a models.Analysis) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔥 <b>%s</b> lead (%d/10)\n", html.EscapeString(business.Name), a.Score)
	title := post.Title
	if title == "" {
		title = excerpt(post.Body, 80)
	}
	fmt.Fprintf(&sb, "📰 %s\n", html.EscapeString(title))
	fmt.Fprintf(&sb, "🔖 %s", post.Source)
	if post.Community != "" {
		fmt.Fprintf(&sb, " · %s", html.EscapeString(post.Community))
	}
	sb.WriteString("\n")
	if post.Author != "" {
		fmt.Fprintf(&sb, "👤 %s\n", html.EscapeString(post.Author))
	}
	fmt.Fprintf(&sb, "🏷 %s · pain %d/10 · urgency %s\n", a.PostType, a.PainScore, a.Urgency)
	if a.CompetitorMentioned != nil {
		fmt.Fprintf(&sb, "🥊 Competitor: %s\n", html.EscapeString(*a.CompetitorMentioned))
	}
	fmt.Fprintf(&sb, "🤖 %s\n", html.EscapeString(a.Rationale))
	if a.SuggestedResponse != nil {
		fmt.Fprintf(&sb, "💬 <i>%s</i>\n", html.EscapeString(excerpt(*a.SuggestedResponse, maxExcerpt)))
	}
	if post.URL != "" {
		fmt.Fprintf(&sb, "<a href=\"%s\">Open</a>", html.EscapeString(post.URL))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func FormatHealthReport(r health.Report) string {
	var sb strings.Builder
	if r.Healthy {
		sb.WriteString("✅ <b>Lead Radar healthy</b>\n")
	} else {
		sb.WriteString("🚨 <b>Lead Radar needs attention</b>\n")
	}
	for _, j := range r.Jobs {
		icon := "✅"
		switch j.Status {
		case health.StatusUnavailable:
			icon = "⏸️"
		case health.StatusStale:
			icon = "🕰"
		case health.StatusFailing:
			icon = "❌"
		case health.StatusNeverRun:
			icon = "❔"
		}
		fmt.Fprintf(&sb, "%s %s: %s", icon, j.Job, j.Status)
		if j.LastSuccess != nil {
			fmt.Fprintf(&sb, " (last success %s)", j.LastSuccess.Format("2006-01-02 15:04"))
		}
		if j.LastError != "" && !j.Status.Healthy() {
			fmt.Fprintf(&sb, "\n    %s", html.EscapeString(excerpt(j.LastError, 120)))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func excerpt(s string, n int) string {
	return textutil.Shorten(strings.Join(strings.Fields(s), " "), n, "…")
}
