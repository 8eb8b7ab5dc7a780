package telegram

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"

	"kangsantri/internal/providers"
)

// maxMessageRunes stays under Telegram's 4096 character limit.
const maxMessageRunes = 4000

// Notifier sends worker results back through the bot.
type Notifier struct {
	bot *gotgbot.Bot
}

func NewNotifier(bot *gotgbot.Bot) *Notifier {
	return &Notifier{bot: bot}
}

func (n *Notifier) SendText(ctx context.Context, chatID, replyTo int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		text = "Provider returned an empty response."
	}
	for i, chunk := range splitText(text, maxMessageRunes) {
		opts := &gotgbot.SendMessageOpts{}
		if i == 0 && replyTo > 0 {
			opts.ReplyParameters = &gotgbot.ReplyParameters{MessageId: replyTo, AllowSendingWithoutReply: true}
		}
		if _, err := n.bot.SendMessageWithContext(ctx, chatID, chunk, opts); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

// SendCode delivers generated code as an HTML document so it survives
// Telegram's message length limit untouched.
func (n *Notifier) SendCode(ctx context.Context, chatID, replyTo int64, name, code string) error {
	opts := &gotgbot.SendDocumentOpts{Caption: name}
	if replyTo > 0 {
		opts.ReplyParameters = &gotgbot.ReplyParameters{MessageId: replyTo, AllowSendingWithoutReply: true}
	}
	file := gotgbot.InputFileByReader(documentName(name), strings.NewReader(code))
	if _, err := n.bot.SendDocumentWithContext(ctx, chatID, file, opts); err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	return nil
}

func (n *Notifier) SendImages(ctx context.Context, chatID, replyTo int64, images []string) error {
	if len(images) == 0 {
		return n.SendText(ctx, chatID, replyTo, "No images were generated.")
	}
	for i, raw := range images {
		img, err := providers.ParseImage(raw)
		if err != nil {
			return fmt.Errorf("image %d: %w", i+1, err)
		}
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			return fmt.Errorf("image %d: decode: %w", i+1, err)
		}
		opts := &gotgbot.SendPhotoOpts{Caption: fmt.Sprintf("%d/%d", i+1, len(images))}
		if i == 0 && replyTo > 0 {
			opts.ReplyParameters = &gotgbot.ReplyParameters{MessageId: replyTo, AllowSendingWithoutReply: true}
		}
		name := fmt.Sprintf("image-%d.%s", i+1, imageExt(img.MIMEType))
		if _, err := n.bot.SendPhotoWithContext(ctx, chatID, gotgbot.InputFileByReader(name, bytes.NewReader(data)), opts); err != nil {
			return fmt.Errorf("send photo: %w", err)
		}
	}
	return nil
}

// splitText cuts text into chunks of at most limit runes, preferring line
// breaks in the second half of each chunk.
func splitText(text string, limit int) []string {
	r := []rune(text)
	if len(r) <= limit {
		return []string{text}
	}
	var out []string
	for len(r) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if r[i-1] == '\n' {
				cut = i
				break
			}
		}
		out = append(out, string(r[:cut]))
		r = r[cut:]
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}

func documentName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteRune(c)
		case c == ' ':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "project.html"
	}
	return b.String() + ".html"
}

func imageExt(mime string) string {
	switch mime {
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return "jpg"
	}
}
