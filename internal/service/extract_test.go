package service_test

import (
	"strings"
	"testing"

	"epic-engine/internal/service"

	"github.com/stretchr/testify/assert"
)

func TestExtractRecap(t *testing.T) {
	t.Run("Splits body and trailing recap block", func(t *testing.T) {
		text := "The chapter prose goes here.\n\nRECAP: Harry discovered the hidden door. A new thread opened."

		body, recap, ok := service.ExtractRecap(text)

		assert.True(t, ok)
		assert.Equal(t, "The chapter prose goes here.", body)
		assert.Equal(t, "Harry discovered the hidden door. A new thread opened.", recap)
	})

	t.Run("Uses the last marker when the prose mentions one", func(t *testing.T) {
		text := "She wrote RECAP: on the board.\n\nMore prose.\n\nRECAP: The lesson ended."

		body, recap, ok := service.ExtractRecap(text)

		assert.True(t, ok)
		assert.Equal(t, "The lesson ended.", recap)
		assert.True(t, strings.Contains(body, "More prose."))
	})

	t.Run("Missing marker returns original text", func(t *testing.T) {
		text := "A chapter that forgot its recap."

		body, recap, ok := service.ExtractRecap(text)

		assert.False(t, ok)
		assert.Equal(t, text, body)
		assert.Empty(t, recap)
	})

	t.Run("Empty recap after marker is not ok", func(t *testing.T) {
		text := "Prose.\n\nRECAP:   "

		body, _, ok := service.ExtractRecap(text)

		assert.False(t, ok)
		assert.Equal(t, text, body)
	})

	t.Run("Marker with no body is not ok", func(t *testing.T) {
		text := "RECAP: Only a recap, no chapter."

		_, _, ok := service.ExtractRecap(text)

		assert.False(t, ok)
	})
}

func TestExtractTitle(t *testing.T) {
	t.Run("First line that looks like a heading wins", func(t *testing.T) {
		content := "Chapter 12: The Hidden Door\n\nThe prose begins."

		title := service.ExtractTitle(content, 12, "Redemption")

		assert.Equal(t, "Chapter 12: The Hidden Door", title)
	})

	t.Run("Plain first line falls back to synthesized title", func(t *testing.T) {
		content := "The rain had not stopped for three days.\n\nMore prose."

		title := service.ExtractTitle(content, 37, "Redemption")

		assert.Equal(t, "Chapter 37: Redemption Continues", title)
	})

	t.Run("Overlong heading falls back", func(t *testing.T) {
		content := "Chapter heading " + strings.Repeat("x", 120) + "\nprose"

		title := service.ExtractTitle(content, 5, "War")

		assert.Equal(t, "Chapter 5: War Continues", title)
	})
}

func TestExtractPlotPoints(t *testing.T) {
	t.Run("Picks keyword sentences in order, capped at three", func(t *testing.T) {
		content := "Harry discovered the map. They walked for hours. " +
			"Hermione revealed her plan. Ron decided to stay behind. " +
			"Later, Ginny realized the truth. Snape confronted them all."

		points := service.ExtractPlotPoints(content)

		assert.Len(t, points, 3)
		assert.Equal(t, "Harry discovered the map", points[0])
		assert.Equal(t, "Hermione revealed her plan", points[1])
		assert.Equal(t, "Ron decided to stay behind", points[2])
	})

	t.Run("No keywords means no points", func(t *testing.T) {
		points := service.ExtractPlotPoints("They ate breakfast. It rained.")

		assert.Empty(t, points)
	})
}

func TestExtractCharacters(t *testing.T) {
	cast := []string{"Harry Potter", "Hermione Granger", "Ron Weasley"}

	t.Run("Matches case-insensitively and keeps cast order", func(t *testing.T) {
		content := "RON WEASLEY grinned while harry potter checked the map."

		mentioned := service.ExtractCharacters(content, cast)

		assert.Equal(t, []string{"Harry Potter", "Ron Weasley"}, mentioned)
	})

	t.Run("Unmentioned cast stays out", func(t *testing.T) {
		mentioned := service.ExtractCharacters("An empty corridor.", cast)

		assert.Empty(t, mentioned)
	})

	t.Run("Empty cast names are skipped", func(t *testing.T) {
		mentioned := service.ExtractCharacters("anything", []string{"", "Harry Potter"})

		assert.Empty(t, mentioned)
	})
}

func TestCountWords(t *testing.T) {
	assert.Equal(t, 0, service.CountWords(""))
	assert.Equal(t, 0, service.CountWords("   \n\t"))
	assert.Equal(t, 4, service.CountWords("one two  three\nfour"))
}
