package host

import "net/url"

// LanguageParam is the page query parameter forwarded to the guest.
const LanguageParam = "lang"

// ArgumentsFromQuery derives the guest's startup arguments from the page
// query: lang=<v> becomes --language <v>. No parameter, no arguments.
func ArgumentsFromQuery(q url.Values) []string {
	if !q.Has(LanguageParam) {
		return []string{}
	}
	return []string{"--language", q.Get(LanguageParam)}
}
