package str

import (
	"strings"
	"unicode"
	"unsafe"
)

func StrAsBytes(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func BytesAsStr(b []byte) string {
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// 首字母大写
func UpperFirst(str string) string {
	if len(str) == 0 {
		return ""
	}
	return strings.ToUpper(str[:1]) + str[1:]
}

// 首字母小写
func LowerFirst(str string) string {
	if len(str) == 0 {
		return ""
	}
	return strings.ToLower(str[:1]) + str[1:]
}

// CamelCase joins the '_'/'-' separated words of str, capitalizing each word.
// "created_at" => "CreatedAt"
func CamelCase(str string) string {
	parts := strings.FieldsFunc(str, func(r rune) bool {
		return r == '_' || r == '-'
	})
	b := strings.Builder{}
	for _, p := range parts {
		b.WriteString(UpperFirst(p))
	}
	return b.String()
}

// KebabCase lowers str, inserting '-' before each interior upper-case rune.
// "UserAccounts" => "user-accounts"
func KebabCase(str string) string {
	b := strings.Builder{}
	b.Grow(len(str) + 4)
	for i, r := range str {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if r == '_' {
			b.WriteByte('-')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
