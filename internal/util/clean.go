package util

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
)

const maxBinaryCheckBytes = 512

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Typographic characters that editors insert into prompt files. Prompts are
// sent as plain text, so they are folded to ASCII.
var charReplacer = strings.NewReplacer(
	"\u2018", "'", "\u2019", "'", "\u201C", "\"", "\u201D", "\"",
	"\u2013", "-", "\u2014", "--", "\u2026", "...", "\u00a0", " ",
	"\u0091", "'", "\u0092", "'", "\u0093", "\"", "\u0094", "\"",
	"\u0096", "-", "\u0097", "--",
)

// IsLikelyBinary reports whether the first bytes of data contain a NUL.
func IsLikelyBinary(data []byte) bool {
	if len(data) > maxBinaryCheckBytes {
		data = data[:maxBinaryCheckBytes]
	}
	return bytes.IndexByte(data, 0) >= 0
}

// CleanText turns raw file bytes into prompt text: the BOM is dropped,
// invalid UTF-8 is replaced and typographic punctuation is folded to ASCII.
// src names the input in log lines and errors.
func CleanText(data []byte, src string) (string, error) {
	if IsLikelyBinary(data) {
		return "", fmt.Errorf("%s looks like a binary file", src)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	if !utf8.Valid(data) {
		log.Warnf("%s is not valid UTF-8, replacing invalid characters", src)
		data = bytes.ToValidUTF8(data, []byte(string(utf8.RuneError)))
	}

	return strings.TrimSpace(charReplacer.Replace(string(data))), nil
}
