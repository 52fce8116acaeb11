package search

import "strings"

// Document returns the normalized text of the candidate's own fields (name,
// set, number and year) joined by spaces. Aliases are not part of it; they
// only match as a whole phrase.
func (c Candidate) Document() string {
	return Normalize(strings.Join([]string{c.Name, c.SetName, c.Number, c.Year}, " "))
}

// MatchTokens reports whether every token is found in the candidate's
// document. Purely numeric tokens also match the number field by exact value
// or as the leading part of "number/total" (token 4 matches 4/102 and 4,
// but not 40/102).
func MatchTokens(c Candidate, tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	doc := c.Document()
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if strings.Contains(doc, tok) {
			continue
		}
		if isNumeric(tok) && NumberMatches(c.Number, tok) {
			continue
		}
		return false
	}
	return true
}

// NumberMatches reports whether a numeric token identifies the card number.
// Leading zeros are ignored on both sides.
func NumberMatches(number, token string) bool {
	number = strings.TrimSpace(strings.ToLower(number))
	if number == "" || !isNumeric(token) {
		return false
	}
	head, _, _ := strings.Cut(number, "/")
	return trimZeros(head) == trimZeros(token)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func trimZeros(s string) string {
	t := strings.TrimLeft(s, "0")
	if t == "" && s != "" {
		return "0"
	}
	return t
}
