package book

import (
	"hash/fnv"
	"strings"
)

// 锁原语要求非负的int64
const lockKeyMask uint64 = 0x7fffffffffffffff

// LockKeyString 加锁依据的标识串：ISBN13 > ISBN10 > source:externalId
func LockKeyString(isbn13, isbn10, source, externalID string) (string, bool) {
	if s := SanitizeISBN(isbn13); s != "" {
		return "ISBN13:" + s, true
	}
	if s := SanitizeISBN(isbn10); s != "" {
		return "ISBN10:" + s, true
	}
	if id := strings.TrimSpace(externalID); id != "" && source != "" {
		return source + ":" + id, true
	}
	return "", false
}

// DeriveLockKey 计算同一逻辑图书的串行化键（FNV-1a 64位，掩码为非负）
// 跨进程确定：相同标识（含连字符等格式差异）总是得到相同的键
// 没有任何标识时返回false，调用方只能走无锁路径
func DeriveLockKey(isbn13, isbn10, source, externalID string) (int64, bool) {
	s, ok := LockKeyString(isbn13, isbn10, source, externalID)
	if !ok {
		return 0, false
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64() & lockKeyMask), true
}
