package main

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestDeriveName(t *testing.T) {
	assert.Equal(t, "Untitled App", deriveName("   "))
	assert.Equal(t, "a todo list", deriveName("a todo list"))
	assert.Equal(t, "build me a pomodoro timer", deriveName("build me a pomodoro timer with sound"))
}

func TestDeriveNameTruncatesOnRuneBoundary(t *testing.T) {
	// 5 words of multi-byte runes, long enough to hit the length cap.
	prompt := strings.Repeat("日本語のアプリケーション ", 5)
	name := deriveName(prompt)

	assert.True(t, utf8.ValidString(name), "truncation must not split a rune")
	assert.LessOrEqual(t, len([]rune(name)), 48)
}
