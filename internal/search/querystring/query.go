// Package querystring parses the small query-string language accepted by the
// wallet search endpoint.
//
//	big wallet          either term (default operator OR)
//	+big -closed        big required, closed prohibited
//	big AND wallet      both required
//	big NOT closed      closed prohibited
//	big OR wallet       same as big wallet
//	name:savings        term scoped to a field
//	sav*                prefix match
//	"family savings"    every token of the phrase required
//	*                   every document
package querystring

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidQuery is wrapped by every parse error.
var ErrInvalidQuery = errors.New("invalid query")

// Occur says how a clause participates in matching.
type Occur int

const (
	Should Occur = iota
	Must
	MustNot
)

func (o Occur) String() string {
	switch o {
	case Must:
		return "MUST"
	case MustNot:
		return "MUST_NOT"
	default:
		return "SHOULD"
	}
}

// Term is a single token, optionally matched as a prefix.
type Term struct {
	Text   string
	Prefix bool
}

// Clause matches a document when every one of its terms matches in Field
// (or in any field when Field is empty).
type Clause struct {
	Occur    Occur
	Field    string
	Terms    []Term
	MatchAll bool
}

// Query is a parsed query string.
type Query struct {
	Clauses []Clause
}

// MatchesEverything reports whether the query selects all documents, which is
// the case for a blank query or a lone unscoped "*".
func (q Query) MatchesEverything() bool {
	if len(q.Clauses) == 0 {
		return true
	}
	for _, c := range q.Clauses {
		if !c.MatchAll || c.Occur == MustNot || c.Field != "" {
			return false
		}
	}
	return true
}

// Fields returns the distinct field names referenced by the query.
func (q Query) Fields() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range q.Clauses {
		if c.Field == "" {
			continue
		}
		if _, ok := seen[c.Field]; ok {
			continue
		}
		seen[c.Field] = struct{}{}
		out = append(out, c.Field)
	}
	return out
}

// Parse parses raw into a Query. The operators AND, OR and NOT are only
// recognised in upper case; in any other case they are plain terms.
func Parse(raw string) (Query, error) {
	var q Query
	chunks, err := split(raw)
	if err != nil {
		return Query{}, err
	}

	var (
		and, not bool
		op       string
	)
	for _, chunk := range chunks {
		switch chunk {
		case "AND", "OR":
			if len(q.Clauses) == 0 || op != "" {
				return Query{}, fmt.Errorf("%w: misplaced %s", ErrInvalidQuery, chunk)
			}
			if chunk == "AND" {
				and = true
				if last := &q.Clauses[len(q.Clauses)-1]; last.Occur == Should {
					last.Occur = Must
				}
			}
			op = chunk
			continue
		case "NOT":
			if not {
				return Query{}, fmt.Errorf("%w: misplaced NOT", ErrInvalidQuery)
			}
			not = true
			op = chunk
			continue
		}

		c, ok, err := parseClause(chunk)
		if err != nil {
			return Query{}, err
		}
		if !ok {
			continue
		}
		switch {
		case not:
			c.Occur = MustNot
		case and && c.Occur == Should:
			c.Occur = Must
		}
		and, not, op = false, false, ""
		q.Clauses = append(q.Clauses, c)
	}
	if op != "" {
		return Query{}, fmt.Errorf("%w: dangling %s", ErrInvalidQuery, op)
	}
	return q, nil
}

// split breaks raw on whitespace that is not inside double quotes.
func split(raw string) ([]string, error) {
	var (
		chunks  []string
		current strings.Builder
		quoted  bool
	)
	for _, r := range raw {
		switch {
		case r == '"':
			quoted = !quoted
			current.WriteRune(r)
		case !quoted && (r == ' ' || r == '\t' || r == '\n' || r == '\r'):
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if quoted {
		return nil, fmt.Errorf("%w: unterminated phrase", ErrInvalidQuery)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks, nil
}

func parseClause(chunk string) (Clause, bool, error) {
	c := Clause{Occur: Should}

	switch chunk[0] {
	case '+':
		c.Occur = Must
		chunk = chunk[1:]
	case '-':
		c.Occur = MustNot
		chunk = chunk[1:]
	}
	if chunk == "" {
		return Clause{}, false, fmt.Errorf("%w: dangling operator", ErrInvalidQuery)
	}

	if field, value, ok := strings.Cut(chunk, ":"); ok && isFieldName(field) {
		if value == "" {
			return Clause{}, false, fmt.Errorf("%w: field %q has no value", ErrInvalidQuery, field)
		}
		c.Field = strings.ToLower(field)
		chunk = value
	}

	if chunk == "*" {
		c.MatchAll = true
		return c, true, nil
	}

	phrase := len(chunk) >= 2 && chunk[0] == '"' && chunk[len(chunk)-1] == '"'
	if phrase {
		chunk = chunk[1 : len(chunk)-1]
	}

	prefix := !phrase && strings.HasSuffix(chunk, "*")
	if prefix {
		chunk = strings.TrimRight(chunk, "*")
	}

	tokens := Tokenize(chunk)
	if len(tokens) == 0 {
		// Pure punctuation contributes nothing, as it would after analysis.
		return Clause{}, false, nil
	}
	for i, tok := range tokens {
		c.Terms = append(c.Terms, Term{Text: tok, Prefix: prefix && i == len(tokens)-1})
	}
	return c, true, nil
}

func isFieldName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return false
		}
	}
	return true
}
