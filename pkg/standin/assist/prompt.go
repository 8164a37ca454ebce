// Package assist – prompt.go builds the system turn that seeds every new
// transcript. The sender's phone country code picks the region mentioned in
// the prompt so the model answers in a language the sender likely speaks.
package assist

import (
	"fmt"
	"strings"
)

// DefaultInstructions is the base persona used when the config leaves
// instructions empty.
const DefaultInstructions = "You are a personal assistant answering WhatsApp messages " +
	"on behalf of the owner of this number while they are away. Be brief, polite and " +
	"helpful. Let the sender know the owner is currently unavailable and will get back " +
	"to them. Never pretend to be the owner."

// callingCodes maps phone calling-code prefixes to a region name. Longest
// prefix wins. Deliberately coarse; unknown prefixes fall back to "English".
var callingCodes = map[string]string{
	"1":   "the United States",
	"7":   "Russia",
	"20":  "Egypt",
	"27":  "South Africa",
	"30":  "Greece",
	"31":  "the Netherlands",
	"32":  "Belgium",
	"33":  "France",
	"34":  "Spain",
	"36":  "Hungary",
	"39":  "Italy",
	"40":  "Romania",
	"41":  "Switzerland",
	"43":  "Austria",
	"44":  "the United Kingdom",
	"45":  "Denmark",
	"46":  "Sweden",
	"47":  "Norway",
	"48":  "Poland",
	"49":  "Germany",
	"51":  "Peru",
	"52":  "Mexico",
	"54":  "Argentina",
	"55":  "Brazil",
	"56":  "Chile",
	"57":  "Colombia",
	"58":  "Venezuela",
	"60":  "Malaysia",
	"61":  "Australia",
	"62":  "Indonesia",
	"63":  "the Philippines",
	"64":  "New Zealand",
	"65":  "Singapore",
	"66":  "Thailand",
	"81":  "Japan",
	"82":  "South Korea",
	"84":  "Vietnam",
	"86":  "China",
	"90":  "Turkey",
	"91":  "India",
	"92":  "Pakistan",
	"93":  "Afghanistan",
	"94":  "Sri Lanka",
	"98":  "Iran",
	"212": "Morocco",
	"213": "Algeria",
	"216": "Tunisia",
	"234": "Nigeria",
	"254": "Kenya",
	"351": "Portugal",
	"352": "Luxembourg",
	"353": "Ireland",
	"358": "Finland",
	"380": "Ukraine",
	"420": "Czechia",
	"880": "Bangladesh",
	"886": "Taiwan",
	"966": "Saudi Arabia",
	"971": "the United Arab Emirates",
	"972": "Israel",
	"977": "Nepal",
}

// RegionForSender derives a region name from a sender identifier such as
// "5511999999999@s.whatsapp.net" or a bare phone number. Returns "English"
// when no calling code matches.
func RegionForSender(sender string) string {
	digits := senderDigits(sender)
	// Try the longest prefixes first; calling codes are 1-3 digits.
	for n := 3; n >= 1; n-- {
		if len(digits) < n {
			continue
		}
		if region, ok := callingCodes[digits[:n]]; ok {
			return region
		}
	}
	return "English"
}

// senderDigits strips the JID server suffix and every non-digit character.
func senderDigits(sender string) string {
	if i := strings.IndexByte(sender, '@'); i >= 0 {
		sender = sender[:i]
	}
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, sender)
}

// BuildSystemPrompt combines the configured instructions with a language
// hint derived from the sender's number.
func BuildSystemPrompt(instructions, sender string) string {
	if instructions == "" {
		instructions = DefaultInstructions
	}

	region := RegionForSender(sender)
	if region == "English" {
		return instructions + " Reply in English unless the sender writes in another language."
	}
	return fmt.Sprintf("%s The sender's number is from %s; reply in the language commonly spoken there unless they write in another one.", instructions, region)
}
