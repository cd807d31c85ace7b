package sheetops

import (
	"fmt"
	"strings"
)

// ColToName renders a 0-based column index as an Excel column letter:
// 0 is "A", 25 is "Z", 26 is "AA", 702 is "AAA".
func ColToName(col int) string {
	result := ""
	for n := col + 1; n > 0; n /= 26 {
		n--
		result = string(rune('A'+n%26)) + result
	}
	return result
}

// NameToCol parses an Excel column letter back into a 0-based index.
// Case and surrounding whitespace are ignored.
func NameToCol(name string) (int, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return 0, fmt.Errorf("empty column name")
	}
	col := 0
	for _, ch := range name {
		if ch < 'A' || ch > 'Z' {
			return 0, fmt.Errorf("invalid column name: %q", name)
		}
		col = col*26 + int(ch-'A') + 1
	}
	return col - 1, nil
}

const forbiddenSheetChars = `/\:*?[]`

// SafeSheetName makes a string usable as an xlsx sheet name: characters
// Excel forbids become underscores and the result is cut to Excel's
// 31-character limit.
func SafeSheetName(name string) string {
	runes := []rune(name)
	for i, r := range runes {
		if strings.ContainsRune(forbiddenSheetChars, r) {
			runes[i] = '_'
		}
	}
	if len(runes) > 31 {
		runes = runes[:31]
	}
	return string(runes)
}
