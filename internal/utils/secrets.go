package utils

import (
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// HashSecret bcrypt-hashes an already normalized credential.
func HashSecret(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(b), err
}

// CheckSecret reports whether secret matches hash. An empty hash never matches.
func CheckSecret(hash, secret string) bool {
	if hash == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// NormalizeCardLast4 returns the last four digits of s, or "" when s has fewer.
func NormalizeCardLast4(s string) string {
	d := digitsOnly(s)
	if len(d) < 4 {
		return ""
	}
	return d[len(d)-4:]
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var streetWords = map[string]string{
	"street": "st", "avenue": "ave", "av": "ave", "road": "rd", "drive": "dr",
	"boulevard": "blvd", "lane": "ln", "court": "ct", "place": "pl",
	"terrace": "ter", "parkway": "pkwy", "highway": "hwy", "circle": "cir",
	"apartment": "apt", "suite": "ste", "unit": "apt",
	"north": "n", "south": "s", "east": "e", "west": "w",
	"northeast": "ne", "northwest": "nw", "southeast": "se", "southwest": "sw",
}

var stateCodes = map[string]string{
	"alabama": "al", "alaska": "ak", "arizona": "az", "arkansas": "ar", "california": "ca",
	"colorado": "co", "connecticut": "ct", "delaware": "de", "florida": "fl", "georgia": "ga",
	"hawaii": "hi", "idaho": "id", "illinois": "il", "indiana": "in", "iowa": "ia",
	"kansas": "ks", "kentucky": "ky", "louisiana": "la", "maine": "me", "maryland": "md",
	"massachusetts": "ma", "michigan": "mi", "minnesota": "mn", "mississippi": "ms", "missouri": "mo",
	"montana": "mt", "nebraska": "ne", "nevada": "nv", "new hampshire": "nh", "new jersey": "nj",
	"new mexico": "nm", "new york": "ny", "north carolina": "nc", "north dakota": "nd", "ohio": "oh",
	"oklahoma": "ok", "oregon": "or", "pennsylvania": "pa", "rhode island": "ri", "south carolina": "sc",
	"south dakota": "sd", "tennessee": "tn", "texas": "tx", "utah": "ut", "vermont": "vt",
	"virginia": "va", "washington": "wa", "west virginia": "wv", "wisconsin": "wi", "wyoming": "wy",
	"district of columbia": "dc",
}

// NormalizeAddress folds an address into the canonical form credentials are
// hashed in: lower case, no punctuation, common abbreviations, two-letter
// state, five-digit zip.
func NormalizeAddress(street, city, state, zip string) string {
	st := words(street)
	for i, w := range st {
		if abbr, ok := streetWords[w]; ok {
			st[i] = abbr
		}
	}

	stateKey := strings.Join(words(state), " ")
	if code, ok := stateCodes[stateKey]; ok {
		stateKey = code
	}

	z := digitsOnly(zip)
	if len(z) > 5 {
		z = z[:5]
	}

	return strings.Join([]string{
		strings.Join(st, " "),
		strings.Join(words(city), " "),
		stateKey,
		z,
	}, "|")
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
