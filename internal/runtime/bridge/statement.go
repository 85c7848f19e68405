package bridge

import (
	"strings"
	"unicode"
)

// adminKeywords lead statements that change schema, attach other databases
// or reconfigure the connection.
var adminKeywords = map[string]bool{
	"ATTACH":  true,
	"DETACH":  true,
	"PRAGMA":  true,
	"VACUUM":  true,
	"REINDEX": true,
	"ANALYZE": true,
	"CREATE":  true,
	"DROP":    true,
	"ALTER":   true,
}

// checkStatement rejects empty input, dot-commands and administrative
// statements anywhere in a multi-statement string.
func checkStatement(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return invalid("statement is empty")
	}
	if strings.ContainsRune(trimmed, 0) {
		return invalid("statement contains NUL")
	}

	stmts := splitStatements(trimmed)
	if len(stmts) == 0 {
		return invalid("statement is empty")
	}
	for _, stmt := range stmts {
		if strings.HasPrefix(stmt, ".") {
			return errorf(ErrAdminStatement, "dot-command %q", firstWord(stmt))
		}
		kw := strings.ToUpper(firstWord(stmt))
		if adminKeywords[kw] {
			return errorf(ErrAdminStatement, "%s", kw)
		}
	}
	return nil
}

// splitStatements splits on top-level semicolons and strips comments.
// Quoted strings and identifiers are kept intact.
func splitStatements(sql string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote rune
	)
	runes := []rune(sql)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if quote != 0 {
			cur.WriteRune(r)
			if r == quote {
				// doubled quote is an escape
				if i+1 < len(runes) && runes[i+1] == quote && quote != ']' {
					cur.WriteRune(runes[i+1])
					i++
					continue
				}
				quote = 0
			}
			continue
		}

		switch {
		case r == '\'' || r == '"' || r == '`':
			quote = r
			cur.WriteRune(r)
		case r == '[':
			quote = ']'
			cur.WriteRune(r)
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			cur.WriteRune(' ')
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i < len(runes) && !(runes[i] == '*' && i+1 < len(runes) && runes[i+1] == '/') {
				i++
			}
			i++
			cur.WriteRune(' ')
		case r == ';':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

func firstWord(stmt string) string {
	end := strings.IndexFunc(stmt, func(r rune) bool {
		return unicode.IsSpace(r) || r == '(' || r == ';'
	})
	if end < 0 {
		return stmt
	}
	return stmt[:end]
}
