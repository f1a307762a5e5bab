package inventory

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/hyperengineering/stockroom/internal/types"
)

// minDerivedTokenLen is the minimum rune count of a name token that may
// become a derived group.
const minDerivedTokenLen = 3

// Classification is the outcome of classifying a product name.
type Classification struct {
	Group types.Group
	// Derived is true when Group does not exist yet and must be created.
	// A derived group has no ID.
	Derived bool
}

// Classifier resolves the group of a product.
type Classifier interface {
	Classify(name string, groups []types.Group) Classification
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(name string, groups []types.Group) Classification

func (f ClassifierFunc) Classify(name string, groups []types.Group) Classification {
	return f(name, groups)
}

// KeywordClassifier matches, in order: a group whose name equals the product
// name, the first group with a keyword contained in the product name, a
// group named after the first alphabetic token of the product name (derived
// when absent), and finally the default group. groups must be in creation
// order.
var KeywordClassifier = ClassifierFunc(classify)

func classify(name string, groups []types.Group) Classification {
	normName := Normalize(name)

	for _, g := range groups {
		if normName != "" && Normalize(g.Name) == normName {
			return Classification{Group: g}
		}
	}

	for _, g := range groups {
		for _, kw := range g.Keywords {
			nk := Normalize(kw)
			if nk != "" && strings.Contains(normName, nk) {
				return Classification{Group: g}
			}
		}
	}

	if token := firstAlphaToken(name); token != "" {
		normToken := Normalize(token)
		for _, g := range groups {
			if Normalize(g.Name) == normToken {
				return Classification{Group: g}
			}
		}
		return Classification{
			Group: types.Group{
				Name:     cases.Title(language.Und).String(token),
				Keywords: []string{},
			},
			Derived: true,
		}
	}

	for _, g := range groups {
		if g.ID == types.DefaultGroupID {
			return Classification{Group: g}
		}
	}
	return Classification{Group: types.Group{ID: types.DefaultGroupID, Name: types.DefaultGroupName}}
}

// Normalize case-folds s, strips diacritics, replaces punctuation and symbols
// with spaces and collapses whitespace.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	folded := cases.Fold().String(stripped)

	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, folded)
	return strings.Join(strings.Fields(mapped), " ")
}

// firstAlphaToken returns the first word of name made only of letters and
// at least minDerivedTokenLen runes long. Words such as "500g" are skipped.
func firstAlphaToken(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.Is(unicode.Mn, r)
	})
	for _, w := range words {
		if utf8.RuneCountInString(w) < minDerivedTokenLen {
			continue
		}
		if strings.IndexFunc(w, unicode.IsDigit) >= 0 {
			continue
		}
		return w
	}
	return ""
}
