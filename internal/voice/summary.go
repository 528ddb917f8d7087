package voice

import (
	"strings"
	"sync"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
	log "github.com/sirupsen/logrus"
)

var (
	tokenizerOnce sync.Once
	tokenizer     *sentences.DefaultSentenceTokenizer
)

func sentenceTokenizer() *sentences.DefaultSentenceTokenizer {
	tokenizerOnce.Do(func() {
		t, err := english.NewSentenceTokenizer(nil)
		if err != nil {
			log.Warnf("Failed to load sentence tokenizer, falling back to line splitting: %v", err)
			return
		}
		tokenizer = t
	})
	return tokenizer
}

// SummarizeTranscript returns the first n sentences of a transcript. It is
// used when the provider did not produce its own summary.
func SummarizeTranscript(transcript string, n int) string {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" || n <= 0 {
		return ""
	}
	// Speaker labels sit on their own lines; fold them into one paragraph.
	flat := strings.Join(strings.Fields(transcript), " ")

	var parts []string
	if t := sentenceTokenizer(); t != nil {
		for _, s := range t.Tokenize(flat) {
			if text := strings.TrimSpace(s.Text); text != "" {
				parts = append(parts, text)
			}
		}
	} else {
		for _, line := range strings.Split(transcript, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				parts = append(parts, line)
			}
		}
	}
	if len(parts) > n {
		parts = parts[:n]
	}
	return strings.Join(parts, " ")
}
