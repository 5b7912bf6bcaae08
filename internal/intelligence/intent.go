package intelligence

import "regexp"

// Intent is a coarse classification of what the user is asking for.
type Intent string

const (
	IntentGreeting    Intent = "greeting"
	IntentServiceInfo Intent = "service_info"
	IntentContact     Intent = "contact"
	IntentJoin        Intent = "join"
	IntentPricing     Intent = "pricing"
	IntentPolicies    Intent = "policies"
	IntentUnknown     Intent = "unknown"
)

// Intents lists every known intent, escalation-eligible unknown included.
var Intents = []Intent{
	IntentGreeting,
	IntentServiceInfo,
	IntentContact,
	IntentJoin,
	IntentPricing,
	IntentPolicies,
	IntentUnknown,
}

// intentOrder fixes the classification precedence: first match wins.
var intentOrder = []Intent{
	IntentGreeting,
	IntentServiceInfo,
	IntentContact,
	IntentJoin,
	IntentPricing,
	IntentPolicies,
}

var intentKeywords = map[Intent][]*regexp.Regexp{
	IntentGreeting: {
		regexp.MustCompile(`(?i)\bhello\b`),
		regexp.MustCompile(`(?i)\bhi\b`),
		regexp.MustCompile(`(?i)\bhey\b`),
		regexp.MustCompile(`(?i)\bhol[ai]\b`),
	},
	IntentServiceInfo: {
		regexp.MustCompile(`(?i)business operations`),
		regexp.MustCompile(`(?i)contact center`),
		regexp.MustCompile(`(?i)it support`),
		regexp.MustCompile(`(?i)professional services`),
	},
	IntentContact: {
		regexp.MustCompile(`(?i)contact`),
		regexp.MustCompile(`(?i)reach`),
		regexp.MustCompile(`(?i)support`),
		regexp.MustCompile(`(?i)telefono`),
		regexp.MustCompile(`(?i)llamar`),
		regexp.MustCompile(`(?i)email`),
	},
	IntentJoin: {
		regexp.MustCompile(`(?i)join`),
		regexp.MustCompile(`(?i)apply`),
		regexp.MustCompile(`(?i)careers`),
		regexp.MustCompile(`(?i)trabajar`),
	},
	IntentPricing: {
		regexp.MustCompile(`(?i)price`),
		regexp.MustCompile(`(?i)cost`),
		regexp.MustCompile(`(?i)tarifa`),
		regexp.MustCompile(`(?i)pricing`),
	},
	IntentPolicies: {
		regexp.MustCompile(`(?i)security`),
		regexp.MustCompile(`(?i)compliance`),
		regexp.MustCompile(`(?i)policy`),
		regexp.MustCompile(`(?i)gdpr`),
		regexp.MustCompile(`(?i)pci`),
	},
}

// Classify returns the first matching intent in precedence order, or
// IntentUnknown.
func Classify(text string) Intent {
	for _, intent := range intentOrder {
		for _, pattern := range intentKeywords[intent] {
			if pattern.MatchString(text) {
				return intent
			}
		}
	}
	return IntentUnknown
}
