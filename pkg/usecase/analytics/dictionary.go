package analytics

import (
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDictionary is returned when a keyword dictionary fails validation
var ErrInvalidDictionary = goerr.New("invalid keyword dictionary")

// Keyword maps a trigger substring to the label recorded when it matches
type Keyword struct {
	Keyword string `yaml:"keyword"`
	Label   string `yaml:"label"`
}

// FlagKeywords holds the trigger substrings of each one-way flag
type FlagKeywords struct {
	MeetingRequested    []string `yaml:"meeting_requested"`
	PricingDiscussed    []string `yaml:"pricing_discussed"`
	ContactInfoProvided []string `yaml:"contact_info_provided"`
	DemoRequested       []string `yaml:"demo_requested"`
}

// Dictionary is the keyword taxonomy behind every turn detector. All matching
// is case-insensitive substring matching; keywords are lowercased on load.
type Dictionary struct {
	Topics             []Keyword    `yaml:"topics"`
	PainPoints         []Keyword    `yaml:"pain_points"`
	BuyingSignals      []string     `yaml:"buying_signals"`
	EngagementKeywords []string     `yaml:"engagement_keywords"`
	QuestionPrefixes   []string     `yaml:"question_prefixes"`
	TechnicalTriggers  []string     `yaml:"technical_triggers"`
	BusinessTriggers   []string     `yaml:"business_triggers"`
	Flags              FlagKeywords `yaml:"flags"`
}

// DefaultDictionary returns the built-in taxonomy
func DefaultDictionary() *Dictionary {
	return &Dictionary{
		Topics: []Keyword{
			{Keyword: "partnership", Label: "Partnership"},
			{Keyword: "demo", Label: "Demo"},
			{Keyword: "api", Label: "API"},
			{Keyword: "integration", Label: "Integration"},
			{Keyword: "integrate", Label: "Integration"},
			{Keyword: "pricing", Label: "Pricing"},
			{Keyword: "price", Label: "Pricing"},
			{Keyword: "security", Label: "Security"},
			{Keyword: "onboarding", Label: "Onboarding"},
			{Keyword: "support", Label: "Support"},
			{Keyword: "trial", Label: "Trial"},
			{Keyword: "analytics", Label: "Analytics"},
		},
		PainPoints: []Keyword{
			{Keyword: "expensive", Label: "Cost concerns"},
			{Keyword: "budget", Label: "Cost concerns"},
			{Keyword: "bug", Label: "Bugs/issues"},
			{Keyword: "broken", Label: "Bugs/issues"},
			{Keyword: "slow", Label: "Performance"},
			{Keyword: "complicated", Label: "Complexity"},
			{Keyword: "difficult", Label: "Complexity"},
			{Keyword: "manual", Label: "Manual work"},
			{Keyword: "scale", Label: "Scalability"},
			{Keyword: "downtime", Label: "Reliability"},
		},
		BuyingSignals: []string{
			"interested", "pricing", "trial", "demo", "schedule", "meeting", "contact", "sign up",
		},
		EngagementKeywords: []string{"demo", "schedule", "meeting", "trial", "pricing"},
		QuestionPrefixes:   []string{"how ", "what "},
		TechnicalTriggers:  []string{"how", "integrate"},
		BusinessTriggers:   []string{"business", "roi"},
		Flags: FlagKeywords{
			MeetingRequested:    []string{"meeting", "schedule"},
			PricingDiscussed:    []string{"pricing", "price", "cost"},
			ContactInfoProvided: []string{"@", "phone", "email", "call me"},
			DemoRequested:       []string{"demo"},
		},
	}
}

// LoadDictionary reads a YAML dictionary. Sections missing from the file keep
// the built-in defaults.
func LoadDictionary(path string) (*Dictionary, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read dictionary file", goerr.V("file", path))
	}

	dict := DefaultDictionary()
	var loaded Dictionary
	if err := yaml.Unmarshal(content, &loaded); err != nil {
		return nil, goerr.Wrap(ErrInvalidDictionary, "failed to parse dictionary YAML",
			goerr.V("file", path),
			goerr.V("cause", err.Error()))
	}
	dict.merge(&loaded)

	if err := dict.Validate(); err != nil {
		return nil, goerr.Wrap(err, "dictionary validation failed", goerr.V("file", path))
	}
	dict.normalize()

	return dict, nil
}

func (d *Dictionary) merge(src *Dictionary) {
	if src.Topics != nil {
		d.Topics = src.Topics
	}
	if src.PainPoints != nil {
		d.PainPoints = src.PainPoints
	}
	if src.BuyingSignals != nil {
		d.BuyingSignals = src.BuyingSignals
	}
	if src.EngagementKeywords != nil {
		d.EngagementKeywords = src.EngagementKeywords
	}
	if src.QuestionPrefixes != nil {
		d.QuestionPrefixes = src.QuestionPrefixes
	}
	if src.TechnicalTriggers != nil {
		d.TechnicalTriggers = src.TechnicalTriggers
	}
	if src.BusinessTriggers != nil {
		d.BusinessTriggers = src.BusinessTriggers
	}
	if src.Flags.MeetingRequested != nil {
		d.Flags.MeetingRequested = src.Flags.MeetingRequested
	}
	if src.Flags.PricingDiscussed != nil {
		d.Flags.PricingDiscussed = src.Flags.PricingDiscussed
	}
	if src.Flags.ContactInfoProvided != nil {
		d.Flags.ContactInfoProvided = src.Flags.ContactInfoProvided
	}
	if src.Flags.DemoRequested != nil {
		d.Flags.DemoRequested = src.Flags.DemoRequested
	}
}

// Validate rejects blank keywords and labels. A blank keyword would match
// every message.
func (d *Dictionary) Validate() error {
	for _, section := range []struct {
		name     string
		keywords []Keyword
	}{
		{"topics", d.Topics},
		{"pain_points", d.PainPoints},
	} {
		for i, kw := range section.keywords {
			if strings.TrimSpace(kw.Keyword) == "" {
				return goerr.Wrap(ErrInvalidDictionary, "keyword is empty",
					goerr.V("section", section.name), goerr.V("index", i))
			}
			if strings.TrimSpace(kw.Label) == "" {
				return goerr.Wrap(ErrInvalidDictionary, "label is empty",
					goerr.V("section", section.name), goerr.V("keyword", kw.Keyword))
			}
		}
	}

	for name, words := range map[string][]string{
		"buying_signals":              d.BuyingSignals,
		"engagement_keywords":         d.EngagementKeywords,
		"question_prefixes":           d.QuestionPrefixes,
		"technical_triggers":          d.TechnicalTriggers,
		"business_triggers":           d.BusinessTriggers,
		"flags.meeting_requested":     d.Flags.MeetingRequested,
		"flags.pricing_discussed":     d.Flags.PricingDiscussed,
		"flags.contact_info_provided": d.Flags.ContactInfoProvided,
		"flags.demo_requested":        d.Flags.DemoRequested,
	} {
		for i, w := range words {
			if strings.TrimSpace(w) == "" {
				return goerr.Wrap(ErrInvalidDictionary, "keyword is empty",
					goerr.V("section", name), goerr.V("index", i))
			}
		}
	}

	return nil
}

// normalize lowercases keywords. Surrounding spaces are kept since prefixes
// such as "how " depend on them.
func (d *Dictionary) normalize() {
	for i := range d.Topics {
		d.Topics[i].Keyword = strings.ToLower(d.Topics[i].Keyword)
	}
	for i := range d.PainPoints {
		d.PainPoints[i].Keyword = strings.ToLower(d.PainPoints[i].Keyword)
	}
	for _, words := range [][]string{
		d.BuyingSignals,
		d.EngagementKeywords,
		d.QuestionPrefixes,
		d.TechnicalTriggers,
		d.BusinessTriggers,
		d.Flags.MeetingRequested,
		d.Flags.PricingDiscussed,
		d.Flags.ContactInfoProvided,
		d.Flags.DemoRequested,
	} {
		for i := range words {
			words[i] = strings.ToLower(words[i])
		}
	}
}
