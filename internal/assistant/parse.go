package assistant

import "strings"

// parseCorrection разбирает ответ модели на анализ, исправленный код и объяснение.
// Кодом считается первый fenced-блок; текст вокруг блоков идёт в объяснение.
func parseCorrection(content string) Correction {
	correction := Correction{Analysis: content}

	parts := strings.Split(content, "```")
	if len(parts) < 3 {
		// Код-блока нет — весь ответ трактуем как объяснение.
		correction.Explanation = strings.TrimSpace(content)
		return correction
	}

	correction.CorrectedCode = stripLanguageLine(parts[1])

	var prose []string
	for i := 0; i < len(parts); i += 2 {
		if text := strings.TrimSpace(parts[i]); text != "" {
			prose = append(prose, text)
		}
	}
	correction.Explanation = strings.Join(prose, "\n\n")

	return correction
}

// stripLanguageLine убирает идентификатор языка с первой строки код-блока.
func stripLanguageLine(block string) string {
	block = strings.Trim(block, "\n")
	first, rest, found := strings.Cut(block, "\n")
	if !found {
		return block
	}
	first = strings.TrimSpace(first)
	if first != "" && !strings.ContainsAny(first, " \t({=;") {
		return rest
	}
	return block
}

// stripCodeFence убирает обрамляющие markdown-фенсы вокруг целого файла.
func stripCodeFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}

	lines := strings.Split(content, "\n")
	if strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
