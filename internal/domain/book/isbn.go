package book

import (
	"regexp"
	"strings"
)

var nonISBNChars = regexp.MustCompile(`[^0-9X]`)

// SanitizeISBN 清洗ISBN为规范形式
// 978-0-545-01022-1 → 9780545010221
// 0-545-01022-X → 054501022X（ISBN-10的校验位允许是X，且只能在末位）
func SanitizeISBN(raw string) string {
	s := nonISBNChars.ReplaceAllString(strings.ToUpper(raw), "")
	if i := strings.IndexByte(s, 'X'); i >= 0 {
		if i != len(s)-1 || len(s) != 10 {
			s = strings.ReplaceAll(s, "X", "")
		}
	}
	return s
}

// ISBNPrefix ISBN-13的前11位，用于作品簇查找
// 清洗后不是恰好13位数字时返回false
func ISBNPrefix(isbn13 string) (string, bool) {
	s := SanitizeISBN(isbn13)
	if len(s) != 13 || strings.ContainsRune(s, 'X') {
		return "", false
	}
	return s[:11], true
}
