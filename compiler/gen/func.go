package gen

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	acronymsMu sync.RWMutex
	acronyms   = map[string]struct{}{
		"ACL": {}, "API": {}, "ASCII": {}, "CPU": {}, "CSS": {}, "DNS": {},
		"EOF": {}, "GUID": {}, "HTML": {}, "HTTP": {}, "HTTPS": {}, "ID": {},
		"IP": {}, "JSON": {}, "LHS": {}, "QPS": {}, "RAM": {}, "RHS": {},
		"RPC": {}, "SLA": {}, "SMTP": {}, "SQL": {}, "SSH": {}, "TCP": {},
		"TLS": {}, "TTL": {}, "UDP": {}, "UI": {}, "UID": {}, "URI": {},
		"URL": {}, "UTF8": {}, "UUID": {}, "VM": {}, "XML": {}, "XMPP": {},
		"XSRF": {}, "XSS": {},
	}
)

// AddAcronym adds an acronym kept upper case in generated identifiers.
func AddAcronym(word string) {
	acronymsMu.Lock()
	acronyms[strings.ToUpper(word)] = struct{}{}
	acronymsMu.Unlock()
}

func isAcronym(word string) bool {
	acronymsMu.RLock()
	_, ok := acronyms[word]
	acronymsMu.RUnlock()
	return ok
}

func isSeparator(r rune) bool {
	return r == '_' || r == '-' || r == '.' || unicode.IsSpace(r)
}

// snake converts the given identifier to snake case.
//
//	Username => username
//	FullName => full_name
//	HTTPCode => http_code
func snake(s string) string {
	var (
		j int
		b strings.Builder
	)
	for i := 0; i < len(s); i++ {
		r := rune(s[i])
		// Put '_' before an upper case letter that starts a word: after a
		// lower case letter, or before a lower case letter when it ends an
		// acronym.
		if i > 0 && i < len(s)-1 && unicode.IsUpper(r) {
			if unicode.IsLower(rune(s[i-1])) ||
				j != i-1 && unicode.IsLower(rune(s[i+1])) && unicode.IsLetter(rune(s[i-1])) {
				j = i
				b.WriteString("_")
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func pascalWords(words []string) string {
	title := cases.Title(language.Und, cases.NoLower)
	for i, w := range words {
		upper := strings.ToUpper(w)
		if isAcronym(upper) {
			words[i] = upper
		} else {
			words[i] = title.String(w)
		}
	}
	return strings.Join(words, "")
}

// pascal converts the given name into a PascalCase.
//
//	user_info  => UserInfo
//	full_name  => FullName
//	user_id    => UserID
//	full-admin => FullAdmin
func pascal(s string) string {
	return pascalWords(strings.FieldsFunc(s, isSeparator))
}

// camel converts the given name into a camelCase.
//
//	user_info => userInfo
//	user_id   => userID
//	http_code => httpCode
func camel(s string) string {
	words := strings.FieldsFunc(s, isSeparator)
	if len(words) == 0 {
		return ""
	}
	first := strings.ToLower(words[0])
	return first + pascalWords(words[1:])
}

// pkgName returns the package name of an entity subpackage.
func pkgName(entity string) string {
	return strings.ReplaceAll(snake(entity), "_", "")
}
