package book

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugLen = 80

// FoldText NFD分解后去掉组合符号再转小写：Gödel → godel
func FoldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Slugify 由标题和第一作者生成slug基础串
// 只保留字母数字，其余连续字符折叠为一个连字符
func Slugify(title string, authors []string) string {
	src := title
	if len(authors) > 0 && strings.TrimSpace(authors[0]) != "" {
		src += " " + authors[0]
	}

	var b strings.Builder
	dash := false
	for _, r := range FoldText(src) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")

	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
		// 截断可能落在多字节字符中间
		for len(slug) > 0 && !utf8.ValidString(slug) {
			slug = slug[:len(slug)-1]
		}
		slug = strings.TrimRight(slug, "-")
	}
	if slug == "" {
		slug = "book"
	}
	return slug
}

// SlugCandidate 第n个候选：n<=1时为base，否则为base-n
func SlugCandidate(base string, n int) string {
	if n <= 1 {
		return base
	}
	return base + "-" + strconv.Itoa(n)
}
