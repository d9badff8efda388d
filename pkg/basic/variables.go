package basic

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var varNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedWords may not be used as variable names.
var reservedWords = map[string]bool{
	"PRINT": true,
	"LET":   true,
	"INPUT": true,
	"GOTO":  true,
	"IF":    true,
	"THEN":  true,
	"END":   true,
	"REM":   true,
	"MOD":   true,
}

// IsValidVarName checks the identifier grammar and rejects reserved words.
func IsValidVarName(name string) bool {
	return varNamePattern.MatchString(name) && !reservedWords[name]
}

// Variables maps variable names to integer values.
type Variables map[string]int

// Lookup returns the value bound to name.
func (v Variables) Lookup(name string) (int, bool) {
	val, ok := v[name]
	return val, ok
}

// Names returns the bound names in ascending order.
func (v Variables) Names() []string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render lists one "name = value" per line, sorted by name.
func (v Variables) Render() string {
	var sb strings.Builder
	for _, name := range v.Names() {
		fmt.Fprintf(&sb, "%s = %d\n", name, v[name])
	}
	return sb.String()
}
