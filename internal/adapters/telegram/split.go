package telegram

import "strings"

const messageLimit = 4096

// SplitMessage разбивает текст на части, укладывающиеся в лимит сообщения
// Telegram. Разрез идёт по границам строк, чтобы не рвать разметку, и только
// при их отсутствии по жёсткому лимиту.
func SplitMessage(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	rest := []rune(trimmed)
	if len(rest) <= messageLimit {
		return []string{trimmed}
	}

	var parts []string
	for len(rest) > 0 {
		cut := len(rest)
		if cut > messageLimit {
			cut = messageLimit
			for i := cut; i > 0; i-- {
				if rest[i-1] == '\n' {
					cut = i
					break
				}
			}
		}
		if chunk := strings.Trim(string(rest[:cut]), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}
		rest = rest[cut:]
		for len(rest) > 0 && rest[0] == '\n' {
			rest = rest[1:]
		}
	}
	if len(parts) == 0 {
		return []string{trimmed}
	}
	return parts
}
