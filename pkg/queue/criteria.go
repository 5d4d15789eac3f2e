package queue

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

var (
	ErrInvalidUser     = errors.New("invalid user id")
	ErrInvalidCriteria = errors.New("invalid search criteria")
)

// Gender a user declares about themselves.
type Gender uint8

const (
	GenderUnspecified Gender = iota
	GenderMale
	GenderFemale
)

func ParseGender(s string) (Gender, error) {
	switch strings.ToLower(s) {
	case "", "unspecified":
		return GenderUnspecified, nil
	case "male":
		return GenderMale, nil
	case "female":
		return GenderFemale, nil
	}
	return GenderUnspecified, fmt.Errorf("%w: gender[%v]", ErrInvalidCriteria, s)
}

func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "male"
	case GenderFemale:
		return "female"
	}
	return "unspecified"
}

func (g Gender) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

func (g *Gender) UnmarshalText(text []byte) error {
	parsed, err := ParseGender(string(text))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// GenderFilter is the gender a searcher wants to meet. The zero value is
// unset and rejected by validation, so "any" is always an explicit choice.
type GenderFilter uint8

const (
	GenderFilterUnset GenderFilter = iota
	GenderFilterAny
	GenderFilterMale
	GenderFilterFemale
)

func ParseGenderFilter(s string) (GenderFilter, error) {
	switch strings.ToLower(s) {
	case "any", "all":
		return GenderFilterAny, nil
	case "male":
		return GenderFilterMale, nil
	case "female":
		return GenderFilterFemale, nil
	}
	return GenderFilterUnset, fmt.Errorf("%w: genderFilter[%v]", ErrInvalidCriteria, s)
}

func (f GenderFilter) String() string {
	switch f {
	case GenderFilterAny:
		return "any"
	case GenderFilterMale:
		return "male"
	case GenderFilterFemale:
		return "female"
	}
	return ""
}

func (f GenderFilter) Accepts(g Gender) bool {
	switch f {
	case GenderFilterAny:
		return true
	case GenderFilterMale:
		return g == GenderMale
	case GenderFilterFemale:
		return g == GenderFemale
	}
	return false
}

func (f GenderFilter) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *GenderFilter) UnmarshalText(text []byte) error {
	parsed, err := ParseGenderFilter(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// CountryFilter is either any country or exactly one ISO 3166 country.
// The zero value is unset and rejected by validation.
type CountryFilter struct {
	Any     bool
	Country string
}

const anyCountry = "any"

func AnyCountry() CountryFilter {
	return CountryFilter{Any: true}
}

func OnlyCountry(code string) CountryFilter {
	return CountryFilter{Country: code}
}

func ParseCountryFilter(s string) (CountryFilter, error) {
	switch strings.ToLower(s) {
	case anyCountry, "all":
		return AnyCountry(), nil
	case "":
		return CountryFilter{}, fmt.Errorf("%w: empty countryFilter", ErrInvalidCriteria)
	}

	code, err := normalizeCountry(s)
	if err != nil {
		return CountryFilter{}, err
	}
	return OnlyCountry(code), nil
}

func (f CountryFilter) IsSet() bool {
	return f.Any || f.Country != ""
}

func (f CountryFilter) Accepts(country string) bool {
	return f.Any || (f.Country != "" && f.Country == country)
}

func (f CountryFilter) String() string {
	if f.Any {
		return anyCountry
	}
	return f.Country
}

func (f CountryFilter) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *CountryFilter) UnmarshalText(text []byte) error {
	parsed, err := ParseCountryFilter(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Criteria is what a searcher asks of the counterpart.
type Criteria struct {
	// BCP 47 tag. Two searchers must share the base language, so "en-US"
	// meets "en-GB".
	Language string        `json:"language"`
	Gender   GenderFilter  `json:"genderFilter"`
	Country  CountryFilter `json:"countryFilter"`
}

// Profile is what a searcher declares about themselves. The counterpart's
// filters are evaluated against it.
type Profile struct {
	Gender  Gender `json:"gender"`
	Country string `json:"country,omitempty"`
}

// Normalize validates the criteria and returns them in canonical form.
func (c Criteria) Normalize() (Criteria, error) {
	// Language has no "any" variant. These would otherwise parse as the
	// ISO 639-3 code of a real language.
	switch strings.ToLower(c.Language) {
	case "any", "all":
		return Criteria{}, fmt.Errorf("%w: language[%v] must be a language", ErrInvalidCriteria, c.Language)
	}

	tag, err := language.Parse(c.Language)
	if err != nil || tag == language.Und {
		return Criteria{}, fmt.Errorf("%w: language[%v]", ErrInvalidCriteria, c.Language)
	}
	c.Language = tag.String()

	switch c.Gender {
	case GenderFilterAny, GenderFilterMale, GenderFilterFemale:
	default:
		return Criteria{}, fmt.Errorf("%w: genderFilter[%v]", ErrInvalidCriteria, c.Gender)
	}

	switch {
	case c.Country.Any && c.Country.Country != "":
		return Criteria{}, fmt.Errorf("%w: countryFilter is both any and %v", ErrInvalidCriteria, c.Country.Country)
	case c.Country.Any:
	case c.Country.Country == "":
		return Criteria{}, fmt.Errorf("%w: countryFilter unset", ErrInvalidCriteria)
	default:
		code, err := normalizeCountry(c.Country.Country)
		if err != nil {
			return Criteria{}, err
		}
		c.Country.Country = code
	}

	return c, nil
}

func (p Profile) Normalize() (Profile, error) {
	switch p.Gender {
	case GenderUnspecified, GenderMale, GenderFemale:
	default:
		return Profile{}, fmt.Errorf("%w: gender[%v]", ErrInvalidCriteria, p.Gender)
	}

	if p.Country != "" {
		code, err := normalizeCountry(p.Country)
		if err != nil {
			return Profile{}, err
		}
		p.Country = code
	}
	return p, nil
}

func normalizeCountry(code string) (string, error) {
	region, err := language.ParseRegion(code)
	if err != nil || !region.IsCountry() {
		return "", fmt.Errorf("%w: country[%v]", ErrInvalidCriteria, code)
	}
	return region.String(), nil
}

func sameBaseLanguage(a, b string) bool {
	if a == b {
		return true
	}
	baseA, _ := language.Make(a).Base()
	baseB, _ := language.Make(b).Base()
	return baseA == baseB
}

// Compatible reports whether two tickets may be matched. It is symmetric:
// each side's filters must accept the other side's profile.
func Compatible(a, b *Ticket) bool {
	return a.UserId != b.UserId &&
		sameBaseLanguage(a.Criteria.Language, b.Criteria.Language) &&
		a.Criteria.Gender.Accepts(b.Profile.Gender) &&
		b.Criteria.Gender.Accepts(a.Profile.Gender) &&
		a.Criteria.Country.Accepts(b.Profile.Country) &&
		b.Criteria.Country.Accepts(a.Profile.Country)
}
