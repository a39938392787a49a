package translate

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"text2sparql/internal/logging"
	"text2sparql/internal/providers"
	"text2sparql/internal/util"

	"go.uber.org/zap"
)

const (
	systemMessage = "You are a translator for any given language into English."
	userPrompt    = "You are a professional translator. " +
		"If the question is already in English, simply return it unchanged. " +
		"If it is not in English, translate it into English. " +
		"Only output the English sentence without any additional explanation.\n\nQuestion:\n"
	maxTokens = 500
)

// englishStopwords holds function words that are rare as whole words in the
// other languages questions arrive in ("in", "a", "do", "was" are not).
var englishStopwords = map[string]struct{}{
	"the": {}, "of": {}, "is": {}, "are": {}, "were": {}, "who": {}, "what": {}, "which": {},
	"when": {}, "where": {}, "how": {}, "many": {}, "much": {}, "does": {}, "did": {}, "and": {},
	"for": {}, "by": {}, "with": {}, "has": {}, "have": {}, "give": {}, "that": {}, "from": {},
	"this": {}, "there": {}, "whose": {}, "their": {},
}

const minStopwordHits = 2

// LooksEnglish is a cheap guess: only ASCII letters and at least two distinct
// English function words.
func LooksEnglish(q string) bool {
	hits := map[string]struct{}{}
	for _, w := range strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	}) {
		for _, r := range w {
			if r > unicode.MaxASCII {
				return false
			}
		}
		if _, ok := englishStopwords[w]; ok {
			hits[w] = struct{}{}
		}
	}
	return len(hits) >= minStopwordHits
}

// Translator normalizes questions to English with one LLM call when the
// question does not already look English.
type Translator struct {
	llm   providers.LLMProvider
	model string
	log   *zap.Logger
}

func New(llm providers.LLMProvider, model string, log *zap.Logger) *Translator {
	return &Translator{llm: llm, model: model, log: logging.OrNop(log)}
}

func (t *Translator) Translate(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", util.ErrEmptyQuestion
	}
	if LooksEnglish(question) {
		return question, nil
	}
	resp, _, err := t.llm.Generate(ctx, providers.GenerateRequest{
		Operation:   providers.OpTranslate,
		System:      systemMessage,
		Prompt:      userPrompt + question,
		Model:       t.model,
		MaxTokens:   maxTokens,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", util.ErrTranslation, err)
	}
	out := strings.TrimSpace(resp.Text)
	if out == "" {
		return "", fmt.Errorf("%w: empty translation", util.ErrTranslation)
	}
	t.log.Debug("question translated", zap.String("original", question), zap.String("english", out))
	return out, nil
}
