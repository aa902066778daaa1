package parbend

import (
	"fmt"
	"regexp"
)

// SanitizeJsonArrayLineBreaks collapses indented numeric arrays emitted
// by json.MarshalIndent onto single lines, so coefficient and solution
// vectors stay readable in instance files.
func SanitizeJsonArrayLineBreaks(json string) string {
	res := fmt.Sprintf("%s", json)
	var numbers = regexp.MustCompile(`\s*(-?[0-9.eE+]+),\s+(-?[0-9.eE+]+)(,)?`)
	var brackets = regexp.MustCompile(`\[((-?[0-9.eE+]+,)+-?[0-9.eE+]+)\s+\](,?)(\s+)`)
	for numbers.MatchString(res) {
		res = numbers.ReplaceAllString(res, "$1,$2$3")
	}
	for brackets.MatchString(res) {
		res = brackets.ReplaceAllString(res, "[$1]$3$4")
	}
	return res
}
