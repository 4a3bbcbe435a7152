package executor

import "strings"

// errorIndicators are substrings that suggest the delegate produced an
// error dump instead of a useful result. Checked case-insensitively.
var errorIndicators = []string{
	"error:",
	"traceback",
	"exception",
	"falhou",
	"não foi possível",
	"couldn't",
	"failed to",
}

// verifyOutput applies cheap structural checks to a delegate result.
// It returns false with a human-readable reason when the result is
// unusable; it never calls back into a model.
func verifyOutput(result string) (bool, string) {
	trimmed := strings.TrimSpace(result)
	if trimmed == "" {
		return false, "Resultado vazio"
	}

	lower := strings.ToLower(trimmed)
	count := 0
	for _, indicator := range errorIndicators {
		count += strings.Count(lower, indicator)
	}
	if count >= 3 {
		return false, "Resultado contém múltiplos erros"
	}

	if len(trimmed) < 20 {
		return false, "Resultado muito curto para ser útil"
	}

	return true, ""
}
