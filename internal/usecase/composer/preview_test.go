package composer

import (
	"strings"
	"testing"

	"tg-control-bot/internal/domain"
)

func TestFormatPreviewLabelsMedia(t *testing.T) {
	blocks := []domain.ContentBlock{
		{Kind: domain.BlockText, Text: "анонс"},
		{Kind: domain.BlockPhoto, MediaRef: "file1", Text: "подпись"},
		{Kind: domain.BlockVideo, MediaRef: "file2"},
		{Kind: domain.BlockDocument, MediaRef: "file3"},
	}
	preview := FormatPreview("Новости", blocks, 10)

	for _, line := range []string{
		"1. 📝 анонс",
		"2. 📷 Фото с подписью",
		"3. 🎥 Видео с подписью",
		"4. 📄 Документ с подписью",
	} {
		if !strings.Contains(preview, line) {
			t.Fatalf("ожидали строку %q в предпросмотре:\n%s", line, preview)
		}
	}
	if strings.Contains(preview, "ещё") {
		t.Fatalf("без остатка не должно быть счётчика:\n%s", preview)
	}
}

func TestFormatPreviewCountsRemainder(t *testing.T) {
	var blocks []domain.ContentBlock
	for i := 0; i < 5; i++ {
		blocks = append(blocks, domain.ContentBlock{Kind: domain.BlockText, Text: "блок"})
	}
	preview := FormatPreview("Новости", blocks, 3)

	if !strings.Contains(preview, "<b>Блоков:</b> 5") {
		t.Fatalf("ожидали общее число блоков:\n%s", preview)
	}
	if strings.Contains(preview, "4. ") {
		t.Fatalf("показываться должны только первые 3 блока:\n%s", preview)
	}
	if !strings.Contains(preview, "... и ещё 2") {
		t.Fatalf("ожидали счётчик остатка:\n%s", preview)
	}
}

func TestFormatPreviewTruncatesLongText(t *testing.T) {
	long := strings.Repeat("ы", 150)
	preview := FormatPreview("Новости", []domain.ContentBlock{{Kind: domain.BlockText, Text: long}}, 3)

	if !strings.Contains(preview, strings.Repeat("ы", 100)+"...") {
		t.Fatalf("ожидали первые 100 рун с многоточием:\n%s", preview)
	}
	if strings.Contains(preview, strings.Repeat("ы", 101)) {
		t.Fatalf("текст длиннее 100 рун не должен попадать в предпросмотр")
	}
}

func TestFormatPreviewEscapesHTML(t *testing.T) {
	preview := FormatPreview("<script>", []domain.ContentBlock{{Kind: domain.BlockText, Text: "a < b"}}, 3)

	if !strings.Contains(preview, "&lt;script&gt;") {
		t.Fatalf("название канала должно экранироваться:\n%s", preview)
	}
	if !strings.Contains(preview, "a &lt; b") {
		t.Fatalf("текст блока должен экранироваться:\n%s", preview)
	}
}
