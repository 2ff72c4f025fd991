package application

import (
	"regexp"
	"strings"
)

// minSecretCapture is the shortest token captured after a key label. Secrets
// longer than this are accepted even when they do not look canonical.
const minSecretCapture = 30

var (
	colonNormalizer = strings.NewReplacer("：", ":", "﹕", ":", "︓", ":")

	secretPattern   = regexp.MustCompile(`(?i)(?:密钥|Key|API\s*Key):\s*([a-zA-Z0-9\-:]{30,})`)
	accountPattern  = regexp.MustCompile(`(?i)(?:账户|Account|Email):\s*([a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,})`)
	passwordPattern = regexp.MustCompile(`(?i)(?:密码|Password):\s*(.+)`)

	// canonicalSecret is a UUID with an optional free-tier ":fx" suffix.
	canonicalSecret = regexp.MustCompile(`(?i)^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}(:fx)?$`)
)

// ParsedKey is one credential block extracted from pasted text.
type ParsedKey struct {
	Secret   string
	Email    string
	Password string
}

// ParseResult is the output of ParseImport before it is merged into state.
type ParseResult struct {
	// Occurrences counts every labelled secret found, valid or not.
	Occurrences int
	Candidates  []ParsedKey
	// Rejected lists captured secrets that failed validation.
	Rejected []string
}

// ParseImport extracts credential blocks from loosely formatted text. Each key
// label starts a chunk that runs up to the next key label, so account and
// password fields are only ever attributed to the key that precedes them.
func ParseImport(text string) ParseResult {
	text = colonNormalizer.Replace(text)

	matches := secretPattern.FindAllStringSubmatchIndex(text, -1)
	result := ParseResult{Occurrences: len(matches)}

	for i, m := range matches {
		start := m[0]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		chunk := text[start:end]
		secret := strings.TrimSpace(text[m[2]:m[3]])

		if !acceptSecret(secret) {
			result.Rejected = append(result.Rejected, secret)
			continue
		}

		parsed := ParsedKey{Secret: secret}
		if am := accountPattern.FindStringSubmatch(chunk); am != nil {
			parsed.Email = strings.TrimSpace(am[1])
		}
		if pm := passwordPattern.FindStringSubmatch(chunk); pm != nil {
			parsed.Password = strings.TrimSpace(pm[1])
		}
		result.Candidates = append(result.Candidates, parsed)
	}

	return result
}

// acceptSecret admits canonical keys and anything longer than the capture
// minimum.
func acceptSecret(secret string) bool {
	return canonicalSecret.MatchString(secret) || len(secret) > minSecretCapture
}
