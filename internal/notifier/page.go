package notifier

import (
	"fmt"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	kit "notifyrelay/internal/transport"
)

// Page is one bounded-size chunk of a message. Only page 1 carries the
// emergency annotation and the amendment.
type Page struct {
	Index     int
	Body      string
	Emergency string
	Amend     kit.Amendment
}

// Text renders the page for the wire.
func (p Page) Text() string {
	n := strconv.Itoa(p.Index)
	if p.Emergency == "" {
		return p.Body + "\n#" + n + "\n"
	}
	return p.Body + "\nemergency_msg: " + p.Emergency + "\n#" + n + "\n"
}

// FallbackMaxUnits is Telegram's message limit, counted in UTF-16 code units.
const FallbackMaxUnits = 4096

// FallbackText is the plain-text form sent through the fallback channel,
// cut to FallbackMaxUnits.
func (p Page) FallbackText() string {
	return clipUTF16("message: "+p.Text()+" amend: "+p.Amend.Render(), FallbackMaxUnits)
}

// clipUTF16 cuts s at a rune boundary so it spans at most n UTF-16 units.
func clipUTF16(s string, n int) string {
	units := 0
	for i, r := range s {
		units += utf16.RuneLen(r)
		if units > n {
			return s[:i]
		}
	}
	return s
}

// Reserved is the number of characters page 1 keeps free for its metadata.
func Reserved(amend kit.Amendment, emergency string) int {
	return utf8.RuneCountInString("\nemergency_msg: " + emergency + "\namend: " + amend.Render())
}

// Paginate splits message into pages of at most maxSize characters. Page 1
// holds maxSize-Reserved characters; later pages hold maxSize each.
// Concatenating the bodies yields message.
func Paginate(message string, maxSize int, amend kit.Amendment, emergency string) ([]Page, error) {
	reserved := Reserved(amend, emergency)
	first := maxSize - reserved
	if first < 0 {
		return nil, fmt.Errorf("%w: max page size %d is below the %d characters reserved for metadata", ErrConfiguration, maxSize, reserved)
	}

	runes := []rune(message)
	if first > len(runes) {
		first = len(runes)
	}
	pages := []Page{{Index: 1, Body: string(runes[:first]), Emergency: emergency, Amend: amend}}

	rest := runes[first:]
	for i := 0; i < len(rest); i += maxSize {
		end := min(i+maxSize, len(rest))
		pages = append(pages, Page{Index: len(pages) + 1, Body: string(rest[i:end])})
	}
	return pages, nil
}
