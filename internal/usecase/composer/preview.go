package composer

import (
	"fmt"
	"html"
	"strings"

	"tg-control-bot/internal/domain"
)

const previewRuneLimit = 100

// FormatPreview формирует HTML-предпросмотр черновика: шапку с каналом и
// числом блоков, первые limit блоков по строке на блок и счётчик остальных.
func FormatPreview(channelTitle string, blocks []domain.ContentBlock, limit int) string {
	var b strings.Builder
	b.WriteString("📋 <b>Предпросмотр поста</b>\n\n")
	b.WriteString("<b>Канал:</b> " + html.EscapeString(channelTitle) + "\n")
	b.WriteString(fmt.Sprintf("<b>Блоков:</b> %d\n", len(blocks)))

	shown := blocks
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	if len(shown) > 0 {
		b.WriteString("\n")
	}
	for i, block := range shown {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, previewLine(block)))
	}
	if rest := len(blocks) - len(shown); rest > 0 {
		b.WriteString(fmt.Sprintf("\n... и ещё %d", rest))
	}
	return strings.TrimSpace(b.String())
}

func previewLine(block domain.ContentBlock) string {
	switch block.Kind {
	case domain.BlockPhoto:
		return "📷 Фото с подписью"
	case domain.BlockVideo:
		return "🎥 Видео с подписью"
	case domain.BlockDocument:
		return "📄 Документ с подписью"
	}
	text := []rune(strings.TrimSpace(block.Text))
	if len(text) > previewRuneLimit {
		return "📝 " + html.EscapeString(string(text[:previewRuneLimit])) + "..."
	}
	return "📝 " + html.EscapeString(string(text))
}
