package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hlsgrab/models"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Notifier is told about every finished download.
type Notifier interface {
	Notify(ctx context.Context, outcome *models.DownloadOutcome) error
}

// TelegramNotifier posts download outcomes to a Telegram chat.
type TelegramNotifier struct {
	bot    *gotgbot.Bot
	chatID int64
}

func NewTelegramNotifier(token string, apiURL string, chatID int64) (*TelegramNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("bot token is not provided")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("chat id is not provided")
	}
	if apiURL == "" {
		apiURL = gotgbot.DefaultAPIURL
	}
	bot, err := gotgbot.NewBot(token, &gotgbot.BotOpts{
		// no getMe round trip at startup
		DisableTokenCheck: true,
		BotClient: &gotgbot.BaseBotClient{
			Client: http.Client{
				Transport: &http.Transport{
					// avoid using proxy for telegram
					Proxy: func(r *http.Request) (*url.URL, error) {
						return nil, nil
					},
				},
			},
			DefaultRequestOpts: &gotgbot.RequestOpts{
				Timeout: 30 * time.Second,
				APIURL:  apiURL,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return &TelegramNotifier{
		bot:    bot,
		chatID: chatID,
	}, nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, outcome *models.DownloadOutcome) error {
	_, err := n.bot.SendMessageWithContext(ctx, n.chatID, FormatOutcome(outcome), &gotgbot.SendMessageOpts{
		ParseMode: "HTML",
		LinkPreviewOptions: &gotgbot.LinkPreviewOptions{
			IsDisabled: true,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	zap.S().Debugf("[%s] notification sent to %d", outcome.ID, n.chatID)
	return nil
}

// FormatOutcome renders an outcome as a Telegram HTML message.
func FormatOutcome(outcome *models.DownloadOutcome) string {
	var sb strings.Builder
	if outcome.Completed() {
		switch {
		case outcome.Severe:
			sb.WriteString("<b>download completed, output is likely unusable</b>\n")
		case outcome.Warning:
			sb.WriteString("<b>download completed with missing segments</b>\n")
		default:
			sb.WriteString("<b>download completed</b>\n")
		}
		fmt.Fprintf(&sb, "file: <code>%s</code>\n", html.EscapeString(outcome.OutputPath))
		fmt.Fprintf(&sb, "size: %s\n", humanize.Bytes(uint64(max(outcome.BytesWritten, 0))))
		fmt.Fprintf(&sb, "segments: %d", outcome.TotalSegments)
		if outcome.FailedSegments > 0 {
			fmt.Fprintf(
				&sb, " (%d failed, %.1f%%)",
				outcome.FailedSegments, outcome.FailureRate*100,
			)
		}
		sb.WriteString("\n")
		if outcome.Resumed {
			sb.WriteString("resumed from a previous run\n")
		}
	} else {
		fmt.Fprintf(&sb, "<b>download failed</b> after %s\n", strings.ReplaceAll(string(outcome.FailedIn), "_", " "))
		fmt.Fprintf(&sb, "reason: %s\n", html.EscapeString(outcome.ReasonText))
	}
	fmt.Fprintf(&sb, "took: %s", outcome.Elapsed.Round(time.Second))
	return sb.String()
}
