// Package utils provides small helpers for decoding HTTP query parameters.
package utils

import "strconv"

// AtoiDefault parses s as a base-10 integer and returns def when s is empty
// or not a valid integer. The input is not trimmed.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// PageWindow normalizes raw page and page_size query values into a valid
// 1-based pagination window. Missing or non-numeric values fall back to
// page 1 and defSize, and the size is bounded to [1, maxSize].
func PageWindow(pageRaw, sizeRaw string, defSize, maxSize int) (page, size int) {
	page = AtoiDefault(pageRaw, 1)
	if page < 1 {
		page = 1
	}
	size = AtoiDefault(sizeRaw, defSize)
	if size < 1 {
		size = 1
	}
	if size > maxSize {
		size = maxSize
	}
	return page, size
}
