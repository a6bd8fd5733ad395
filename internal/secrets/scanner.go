package secrets

import (
	"math"
	"strings"
)

// Match is the first detector hit in a piece of text
type Match struct {
	Detector string
	Value    string
}

// Scanner finds the first matching detector in text
type Scanner struct {
	set *DetectorSet
}

// NewScanner creates a scanner over set
func NewScanner(set *DetectorSet) *Scanner {
	return &Scanner{set: set}
}

// Scan returns the leftmost match of the first detector, in set order, that
// matches anywhere in text. Later detectors are not consulted.
func (s *Scanner) Scan(text string) (Match, bool) {
	if text == "" {
		return Match{}, false
	}
	lower := strings.ToLower(text)
	for _, d := range s.set.detectors {
		if value, ok := d.find(text, lower, nil); ok {
			return Match{Detector: d.Name, Value: value}, true
		}
	}
	return Match{}, false
}

// ScanTemplate is Scan over a launch-template version. Each detector is tried
// on the serialized document, where object keys never count as hits, and then
// on the decoded user-data as plain text.
func (s *Scanner) ScanTemplate(doc TemplateDocument) (Match, bool) {
	lowerDoc := strings.ToLower(doc.Document)
	lowerUserData := strings.ToLower(doc.UserData)
	for _, d := range s.set.detectors {
		if doc.Document != "" {
			if value, ok := d.find(doc.Document, lowerDoc, doc.IsKey); ok {
				return Match{Detector: d.Name, Value: value}, true
			}
		}
		if doc.UserData != "" {
			if value, ok := d.find(doc.UserData, lowerUserData, nil); ok {
				return Match{Detector: d.Name, Value: value}, true
			}
		}
	}
	return Match{}, false
}

// find returns the leftmost hit of d in text that survives its entropy and
// allowlist checks. lower is text in lower case.
func (d Detector) find(text, lower string, ignore func(string) bool) (string, bool) {
	if !d.hasKeyword(lower) {
		return "", false
	}
	for _, loc := range d.Pattern.FindAllStringSubmatchIndex(text, -1) {
		// Empty matches carry no secret
		if loc[1] <= loc[0] {
			continue
		}
		match := text[loc[0]:loc[1]]
		if ignore != nil && ignore(match) {
			continue
		}
		secret := d.secret(text, loc)
		if d.Entropy > 0 && shannonEntropy(secret) <= d.Entropy {
			continue
		}
		if d.allowed(text, loc, match, secret) {
			continue
		}
		return match, true
	}
	return "", false
}

func (d Detector) hasKeyword(lower string) bool {
	if len(d.Keywords) == 0 {
		return true
	}
	for _, k := range d.Keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// secret extracts the credential part of a match from its submatch indexes
func (d Detector) secret(text string, loc []int) string {
	groups := len(loc)/2 - 1
	if d.SecretGroup > 0 {
		if d.SecretGroup <= groups && loc[2*d.SecretGroup] >= 0 {
			return text[loc[2*d.SecretGroup]:loc[2*d.SecretGroup+1]]
		}
		return text[loc[0]:loc[1]]
	}
	for g := 1; g <= groups; g++ {
		if start, end := loc[2*g], loc[2*g+1]; start >= 0 && end > start {
			return text[start:end]
		}
	}
	return text[loc[0]:loc[1]]
}

func (d Detector) allowed(text string, loc []int, match, secret string) bool {
	lowerSecret := strings.ToLower(secret)
	for _, a := range d.Allowlists {
		target := secret
		switch a.Target {
		case "match":
			target = match
		case "line":
			target = lineAt(text, loc[0], loc[1])
		}
		for _, re := range a.Regexes {
			if re.MatchString(target) {
				return true
			}
		}
		for _, w := range a.StopWords {
			if strings.Contains(lowerSecret, w) {
				return true
			}
		}
	}
	return false
}

// lineAt returns the full line(s) of text covering [start, end)
func lineAt(text string, start, end int) string {
	from := strings.LastIndexByte(text[:start], '\n') + 1
	to := strings.IndexByte(text[end:], '\n')
	if to < 0 {
		return text[from:]
	}
	return text[from : end+to]
}

func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := make(map[rune]int)
	total := 0
	for _, r := range s {
		counts[r]++
		total++
	}
	var entropy float64
	for _, c := range counts {
		freq := float64(c) / float64(total)
		entropy -= freq * math.Log2(freq)
	}
	return entropy
}
