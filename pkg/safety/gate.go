// Package safety holds the deterministic pre-model gate for advice-seeking messages
package safety

import "regexp"

var (
	hebrewScript = regexp.MustCompile(`[\x{0590}-\x{05FF}]`)
	hebrewAdvice = regexp.MustCompile(`(מה\s*(כדאי|מומלץ)\s*לקחת|מה\s*לקחת|כאב|כאבים|בחזה|תסמינים|כואב)`)
)

// HebrewRefusal declines medical advice and redirects to a licensed professional without prescribing an action.
const HebrewRefusal = "אני לא יכול/ה לתת ייעוץ רפואי או להמליץ מבחינה רפואית.\n" +
	"פנה/י לאיש מקצוע רפואי או לרופא/ה לקבלת הנחיה מתאימה."

type Refusal struct {
	Language string
	Text     string
}

// Evaluate reports whether text must be answered with a fixed refusal instead of the model.
func Evaluate(text string) (Refusal, bool) {
	if hebrewScript.MatchString(text) && hebrewAdvice.MatchString(text) {
		return Refusal{Language: "he", Text: HebrewRefusal}, true
	}
	return Refusal{}, false
}
