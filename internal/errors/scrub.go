package errors

import "regexp"

type scrubRule struct {
	re   *regexp.Regexp
	repl string
}

// scrubRules remove credentials and identifiers before anything leaves the
// process. Order matters: query strings go before key=value pairs.
var scrubRules = []scrubRule{
	{regexp.MustCompile(`((?:https?|tcp|ssl|mqtts?|wss?)://[^?\s]+)\?\S*`), "$1?[REDACTED]"},
	{regexp.MustCompile(`((?:https?|tcp|ssl|mqtts?|wss?)://)[^@/\s]+@`), "$1[CREDENTIALS_REDACTED]@"},
	{regexp.MustCompile(`(?i)(api[_-]?key|token|password|secret)[=:]\S+`), "$1=[REDACTED]"},
	{regexp.MustCompile(`(?i)(client[_-]?id|user[_-]?id)[=:]\S+`), "$1=[ID_REDACTED]"},
	{regexp.MustCompile(`[0-9a-fA-F]{32,}`), "[HEX_REDACTED]"},
}

func scrub(message string) string {
	for _, r := range scrubRules {
		message = r.re.ReplaceAllString(message, r.repl)
	}
	return message
}
