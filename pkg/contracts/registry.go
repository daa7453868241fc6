package contracts

import "slices"

const (
	InventoryCheck          = "inventory_check"
	InventoryFindEquivalent = "inventory_find_equivalent"
	PrescriptionVerify      = "prescription_verify"
	InteractionCheck        = "interaction_check"
)

type Contract struct {
	Name        string
	Description string
	Input       Shape
}

var languageField = Field{
	Name:        "language",
	Kind:        KindString,
	Description: "Language of the conversation.",
	Enum:        []string{string(LanguageHebrew), string(LanguageEnglish)},
	Default:     string(LanguageHebrew),
}

var registry = []Contract{
	{
		Name:        InventoryCheck,
		Description: "Search medications by brand or generic name and return matching items with stock quantity.",
		Input: Shape{Fields: []Field{
			{Name: "query", Kind: KindString, Required: true, NonEmpty: true, Description: "Brand or generic name, optionally with strength and form."},
			languageField,
		}},
	},
	{
		Name: InventoryFindEquivalent,
		Description: "Given a medication ID, find identical-equivalent options (same active ingredients, form, strength) " +
			"and return disclosure + stock quantities.",
		Input: Shape{Fields: []Field{
			{Name: "med_id", Kind: KindString, Required: true, NonEmpty: true, Description: "Medication ID, e.g. MED001."},
			languageField,
			{Name: "require_same_strength", Kind: KindBool, Default: true},
			{Name: "require_same_form", Kind: KindBool, Default: true},
		}},
	},
	{
		Name:        PrescriptionVerify,
		Description: "Verify whether a medication requires a prescription and whether a patient has a valid prescription on file.",
		Input: Shape{Fields: []Field{
			{Name: "patient_id", Kind: KindString, Required: true, NonEmpty: true, Description: "Patient ID, e.g. P001."},
			{Name: "med_id", Kind: KindString, Required: true, NonEmpty: true, Description: "Medication ID, e.g. MED003."},
			{Name: "intent", Kind: KindString, Required: true, Enum: []string{string(IntentNew), string(IntentRefill)}},
			languageField,
		}},
	},
	{
		Name:        InteractionCheck,
		Description: "Check interaction rules among a set of medication IDs and return overall interaction level and pair details.",
		Input: Shape{Fields: []Field{
			{Name: "med_ids", Kind: KindStringList, Required: true, NonEmpty: true, MinItems: 1, Description: "Medication IDs to check together."},
			languageField,
		}},
	},
}

// Registry returns every contract in declaration order.
func Registry() []Contract {
	return slices.Clone(registry)
}

func Lookup(name string) (Contract, bool) {
	for _, c := range registry {
		if c.Name == name {
			return c, true
		}
	}
	return Contract{}, false
}
