package notifier

import (
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "notifyrelay/internal/transport"
)

func joinBodies(pages []Page) string {
	var b strings.Builder
	for _, p := range pages {
		b.WriteString(p.Body)
	}
	return b.String()
}

func TestPaginateReconstructs(t *testing.T) {
	amend := kit.Amendment{"host": "db1"}
	msgs := []string{
		"",
		"short",
		strings.Repeat("a", 7000),
		strings.Repeat("é漢字", 1234),
	}
	for _, msg := range msgs {
		for _, size := range []int{60, 100, 3000} {
			pages, err := Paginate(msg, size, amend, "@oncall")
			require.NoError(t, err)
			assert.Equal(t, msg, joinBodies(pages))
			for i, p := range pages {
				assert.Equal(t, i+1, p.Index)
				assert.LessOrEqual(t, len([]rune(p.Body)), size)
				if i > 0 {
					assert.Empty(t, p.Emergency)
					assert.Nil(t, p.Amend)
				}
			}
		}
	}
}

func TestPaginateSizes(t *testing.T) {
	msg := strings.Repeat("x", 7000)
	pages, err := Paginate(msg, 3000, nil, "")
	require.NoError(t, err)

	reserved := Reserved(nil, "")
	assert.Equal(t, len("\nemergency_msg: \namend: {}"), reserved)
	require.Len(t, pages, 3)
	assert.Len(t, pages[0].Body, 3000-reserved)
	assert.Len(t, pages[1].Body, 3000)
	assert.Len(t, pages[2].Body, 7000-(3000-reserved)-3000)
}

func TestPaginateEmptyRemainderIsOnePage(t *testing.T) {
	pages, err := Paginate("hello", 100, nil, "")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "hello", pages[0].Body)

	pages, err = Paginate("", 100, kit.Amendment{"a": 1}, "E")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "", pages[0].Body)
	assert.Equal(t, "E", pages[0].Emergency)
}

func TestPaginateMaxSizeTooLow(t *testing.T) {
	_, err := Paginate("anything", 10, kit.Amendment{"k": "v"}, "emergency")
	require.ErrorIs(t, err, ErrConfiguration)

	reserved := Reserved(nil, "")
	pages, err := Paginate("abc", reserved, nil, "")
	require.NoError(t, err, "zero-length first page is allowed")
	assert.Equal(t, "", pages[0].Body)
	assert.Equal(t, "abc", joinBodies(pages))
}

func TestPageText(t *testing.T) {
	assert.Equal(t, "body\n#2\n", Page{Index: 2, Body: "body"}.Text())
	assert.Equal(t, "body\nemergency_msg: @bob\n#1\n", Page{Index: 1, Body: "body", Emergency: "@bob"}.Text())

	p := Page{Index: 1, Body: "b", Amend: kit.Amendment{"z": 1, "a": "x"}}
	assert.Equal(t, "message: b\n#1\n amend: {a: x, z: 1}", p.FallbackText())
	assert.Equal(t, "message: b\n#3\n amend: {}", Page{Index: 3, Body: "b"}.FallbackText())
}

func TestFallbackTextFitsTelegram(t *testing.T) {
	pages, err := Paginate(strings.Repeat("\U0001F525", 5000), DefaultMaxPageSize, kit.Amendment{"host": "web1"}, "")
	require.NoError(t, err)

	for _, p := range pages {
		text := p.FallbackText()
		units := len(utf16.Encode([]rune(text)))
		assert.LessOrEqual(t, units, FallbackMaxUnits, "page %d", p.Index)
		assert.True(t, strings.HasPrefix(text, "message: \U0001F525"))
	}
	// "message: " is 9 units and each emoji is 2, so the cut lands one short.
	assert.Equal(t, FallbackMaxUnits-1, len(utf16.Encode([]rune(pages[0].FallbackText()))))
}

func TestFallbackTextShortUnchanged(t *testing.T) {
	p := Page{Index: 1, Body: "héllo"}
	assert.Equal(t, "message: héllo\n#1\n amend: {}", p.FallbackText())
}
