// Package script normalizes raw script text into narration-ready sentences.
package script

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	defaultMinWords = 5
	defaultMaxWords = 20

	// maxSentences bounds the narration count so one runaway script cannot
	// queue thousands of synthesis calls.
	maxSentences = 500
)

// llmTokens are artifacts some LLMs leave in generated scripts; the TTS
// engine would read them aloud.
var llmTokens = []string{
	"<eos>", "[EOS]", "</s>", "<s>", "[/s]",
	"(EOS)", "<EOS>", "<end>", "[END]", "(Pause)",
	"<pause>", "[pause]",
}

var conjunctionSplit = regexp.MustCompile(`(?i)\s+(and|but|or|yet|so)\s+`)

// Processor splits raw script text into sentences, merges fragments below
// MinWords, and splits run-ons above MaxWords at natural breaking points.
type Processor struct {
	MinWords int
	MaxWords int
}

func NewProcessor() *Processor {
	return &Processor{MinWords: defaultMinWords, MaxWords: defaultMaxWords}
}

// Process returns the normalized sentence list for a raw script.
func (p *Processor) Process(raw string) []string {
	text := normalizeDanda(raw)
	text = strings.Join(strings.Fields(text), " ")

	sentences := splitSentences(text)
	sentences = p.mergeShort(sentences)
	sentences = p.splitLong(sentences)

	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		if cleaned := cleanForTTS(strings.TrimSpace(s)); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	if len(out) > maxSentences {
		out = out[:maxSentences]
	}
	return out
}

// normalizeDanda replaces English periods with the Hindi danda when the
// text contains Devanagari characters, so sentence splitting treats both
// scripts the same way.
func normalizeDanda(text string) string {
	if !ContainsDevanagari(text) {
		return text
	}
	return strings.ReplaceAll(text, ".", "।")
}

// ContainsDevanagari reports whether any rune falls in the Devanagari
// Unicode block (U+0900 to U+097F).
func ContainsDevanagari(text string) bool {
	for _, r := range text {
		if r >= 0x0900 && r <= 0x097F {
			return true
		}
	}
	return false
}

func isTerminator(r rune) bool {
	return r == '.' || r == '?' || r == '!' || r == '।'
}

// splitSentences breaks text after sentence-ending punctuation followed by
// whitespace. Abbreviations like "Mr." and initialisms like "U.S." do not
// end a sentence.
func splitSentences(text string) []string {
	runes := []rune(text)
	var sentences []string
	start := 0

	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		if i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if runes[i] == '.' && isAbbreviationDot(runes, i) {
			continue
		}

		sentences = append(sentences, string(runes[start:i+1]))
		// Skip the whitespace run after the terminator.
		i++
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			i++
		}
		start = i
		i--
	}

	if start < len(runes) {
		if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
			sentences = append(sentences, tail)
		}
	}
	return sentences
}

// isAbbreviationDot checks the context before a period for the two shapes
// that should not split: an initialism letter ("U.S.", "e.g.") and a short
// capitalized abbreviation ("Mr.", "Dr.").
func isAbbreviationDot(runes []rune, i int) bool {
	// letter '.' letter '.' — the dot at i closes an initialism pair.
	if i >= 3 && unicode.IsLetter(runes[i-1]) && runes[i-2] == '.' && unicode.IsLetter(runes[i-3]) {
		return true
	}
	// Capital + lowercase + '.' — e.g. "Mr.", "St.".
	if i >= 2 && unicode.IsUpper(runes[i-2]) && unicode.IsLower(runes[i-1]) {
		// Only treat as abbreviation when the token is exactly two letters.
		if i-3 < 0 || !unicode.IsLetter(runes[i-3]) {
			return true
		}
	}
	return false
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// mergeShort combines sentences under MinWords with their neighbors so no
// narration clip is a lone fragment.
func (p *Processor) mergeShort(sentences []string) []string {
	if len(sentences) == 0 {
		return nil
	}

	var merged []string
	buffer := ""

	for _, sentence := range sentences {
		if buffer != "" {
			buffer = buffer + " " + sentence
			if wordCount(buffer) >= p.MinWords {
				merged = append(merged, buffer)
				buffer = ""
			}
			continue
		}
		if wordCount(sentence) < p.MinWords {
			buffer = sentence
			continue
		}
		merged = append(merged, sentence)
	}

	if buffer != "" {
		if len(merged) > 0 {
			merged[len(merged)-1] = merged[len(merged)-1] + " " + buffer
		} else {
			merged = append(merged, buffer)
		}
	}
	return merged
}

// splitLong breaks sentences over MaxWords at commas, then semicolons,
// then coordinating conjunctions. Sentences with no natural break point
// pass through unchanged.
func (p *Processor) splitLong(sentences []string) []string {
	var result []string

	for _, sentence := range sentences {
		if wordCount(sentence) <= p.MaxWords {
			result = append(result, sentence)
			continue
		}

		parts := p.splitAtDelimiter(sentence, ",")
		if len(parts) == 0 || p.maxPartWords(parts) > p.MaxWords {
			parts = p.splitAtDelimiter(sentence, ";")
		}
		if len(parts) == 0 || p.maxPartWords(parts) > p.MaxWords {
			parts = p.splitAtConjunctions(sentence)
		}

		if len(parts) > 0 {
			result = append(result, parts...)
		} else {
			result = append(result, sentence)
		}
	}
	return result
}

func (p *Processor) maxPartWords(parts []string) int {
	max := 0
	for _, part := range parts {
		if n := wordCount(part); n > max {
			max = n
		}
	}
	return max
}

func (p *Processor) splitAtDelimiter(text, delimiter string) []string {
	parts := strings.Split(text, delimiter)

	var valid []string
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if wordCount(part) >= p.MinWords || i == len(parts)-1 {
			if i < len(parts)-1 {
				part = part + delimiter
			}
			valid = append(valid, part)
		}
	}

	if len(valid) > 1 && p.maxPartWords(valid) <= p.MaxWords {
		return valid
	}
	return nil
}

func (p *Processor) splitAtConjunctions(text string) []string {
	parts := conjunctionSplit.Split(text, -1)
	conjunctions := conjunctionSplit.FindAllStringSubmatch(text, -1)
	if len(parts) < 2 {
		return nil
	}

	// Reattach each conjunction to the clause that follows it.
	result := []string{strings.TrimSpace(parts[0])}
	for i := 1; i < len(parts); i++ {
		clause := strings.TrimSpace(parts[i])
		if i-1 < len(conjunctions) {
			clause = conjunctions[i-1][1] + " " + clause
		}
		result = append(result, clause)
	}

	for _, part := range result {
		n := wordCount(part)
		if n < p.MinWords || n > p.MaxWords {
			return nil
		}
	}
	return result
}

// cleanForTTS strips LLM artifacts and trailing sentence punctuation; the
// TTS engine supplies its own pauses between sentences.
func cleanForTTS(text string) string {
	for _, token := range llmTokens {
		text = strings.ReplaceAll(text, token, "")
	}
	text = strings.TrimRight(text, ".?!।")
	return strings.Join(strings.Fields(text), " ")
}
