package chat

import (
	"net/http"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	"github.com/zhouzirui/z-chat/backend/pkg/apperr"
)

const (
	minUsernameBytes = 3
	maxUsernameBytes = 16
	maxTextRunes     = 4096
	maxEmoticonRunes = 8
)

var groupNamePattern = regexp.MustCompile(`^[a-zA-Z0-9 ]{1,32}$`)

// validateUsername bounds the length in bytes and rejects control characters;
// spaces and punctuation are allowed.
func validateUsername(name string) error {
	if len(name) < minUsernameBytes || len(name) > maxUsernameBytes {
		return apperr.Invalid("username must be %d-%d bytes long", minUsernameBytes, maxUsernameBytes)
	}
	if !utf8.ValidString(name) || strings.TrimSpace(name) == "" {
		return apperr.Invalid("username must be printable text")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return apperr.Invalid("username must not contain control characters")
		}
	}
	return nil
}

func validateGroupName(name string) error {
	if !groupNamePattern.MatchString(name) || strings.TrimSpace(name) == "" {
		return apperr.Invalid("group name must be 1-32 letters, digits or spaces")
	}
	return nil
}

func validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperr.Invalid("text message cannot be empty")
	}
	if utf8.RuneCountInString(text) > maxTextRunes {
		return apperr.Invalid("text message exceeds %d characters", maxTextRunes)
	}
	return nil
}

func validatePhoto(photo []byte, limit int64) error {
	if len(photo) == 0 {
		return apperr.Invalid("photo cannot be empty")
	}
	if int64(len(photo)) > limit {
		return apperr.Invalid("photo exceeds %s", humanize.Bytes(uint64(limit)))
	}
	if ct := http.DetectContentType(photo); !strings.HasPrefix(ct, "image/") {
		return apperr.Invalid("photo must be an image, got %s", ct)
	}
	return nil
}

var emojiRanges = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x2600, Hi: 0x27BF, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1F300, Hi: 0x1F5FF, Stride: 1},
		{Lo: 0x1F600, Hi: 0x1F64F, Stride: 1},
		{Lo: 0x1F680, Hi: 0x1F6FF, Stride: 1},
		{Lo: 0x1F700, Hi: 0x1F77F, Stride: 1},
		{Lo: 0x1F900, Hi: 0x1F9FF, Stride: 1},
		{Lo: 0x1FA70, Hi: 0x1FAFF, Stride: 1},
	},
}

// validateEmoticon accepts short strings that start with an emoji code point,
// leaving room for modifiers and joiners after it.
func validateEmoticon(emoticon string) error {
	n := utf8.RuneCountInString(emoticon)
	if n == 0 || n > maxEmoticonRunes {
		return apperr.Invalid("emoticon must be 1-%d characters", maxEmoticonRunes)
	}
	r, _ := utf8.DecodeRuneInString(emoticon)
	if !unicode.Is(emojiRanges, r) {
		return apperr.Invalid("emoticon must start with an emoji")
	}
	return nil
}

// ParseSortOrder validates a sort query value, applying fallback when empty.
func ParseSortOrder(raw string, fallback chat.SortOrder) (chat.SortOrder, error) {
	switch chat.SortOrder(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return fallback, nil
	case chat.SortAsc:
		return chat.SortAsc, nil
	case chat.SortDesc:
		return chat.SortDesc, nil
	default:
		return "", apperr.Invalid("sort must be 'asc' or 'desc'")
	}
}
