package contracts

import (
	"fmt"
	"time"
)

type checker struct {
	problems []string
}

func (c *checker) expect(cond bool, format string, args ...any) {
	if !cond {
		c.problems = append(c.problems, fmt.Sprintf(format, args...))
	}
}

func (c *checker) err() error {
	if len(c.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: c.problems}
}

func (c *checker) envelope(e Envelope, hasFields bool) {
	if e.OK {
		c.expect(e.Error == nil, "ok outcome carries an error")
		return
	}
	if e.Error == nil {
		c.problems = append(c.problems, "failed outcome has no error")
		return
	}
	c.expect(e.Error.Code.Valid(), "unknown error code %q", e.Error.Code)
	c.expect(e.Error.Message != "", "error message is empty")
	c.expect(!hasFields, "failed outcome carries tool fields")
}

func (c *checker) medication(path string, m StockedMedication) {
	c.expect(m.MedID != "", "%s.med_id is empty", path)
	c.expect(m.BrandName != "", "%s.brand_name is empty", path)
	c.expect(m.GenericName != "", "%s.generic_name is empty", path)
	c.expect(len(m.ActiveIngredients) > 0, "%s.active_ingredients is empty", path)
	c.expect(m.QtyOnHand >= 0, "%s.qty_on_hand is negative", path)
}

// CheckEnvelope validates outcomes that carry no tool fields.
func CheckEnvelope(e Envelope) error {
	var c checker
	c.envelope(e, false)
	return c.err()
}

func CheckInventoryCheck(o InventoryCheckOutput) error {
	var c checker
	c.envelope(o.Envelope, len(o.Matches) > 0 || o.Notes != "")
	if o.OK {
		c.expect(len(o.Matches) > 0, "ok outcome has no matches")
		for i, m := range o.Matches {
			c.medication(fmt.Sprintf("matches[%d]", i), m)
		}
	}
	return c.err()
}

func CheckInventoryFindEquivalent(o InventoryFindEquivalentOutput) error {
	var c checker
	c.envelope(o.Envelope, o.Requested != nil || len(o.Equivalents) > 0 || o.Notes != "")
	if !o.OK {
		return c.err()
	}
	c.expect(o.Requested != nil, "ok outcome has no requested medication")
	c.expect(len(o.Equivalents) > 0, "ok outcome has no equivalents")
	if o.Requested != nil {
		c.medication("requested", *o.Requested)
	}
	for i, eq := range o.Equivalents {
		path := fmt.Sprintf("equivalents[%d]", i)
		c.medication(path, eq.StockedMedication)
		c.expect(eq.Disclosure.SameActiveIngredients, "%s differs in active ingredients", path)
		c.expect(len(eq.Disclosure.PossibleDifferences) > 0, "%s.disclosure.possible_differences is empty", path)
		if o.Requested != nil {
			c.expect(eq.MedID != o.Requested.MedID, "%s repeats the requested medication", path)
		}
	}
	return c.err()
}

func CheckPrescriptionVerify(o PrescriptionVerifyOutput) error {
	var c checker
	hasFields := o.RxRequired != nil || o.PatientFound != nil || o.HasValidRx != nil || o.RxStatus != "" ||
		o.ExpiresAt != "" || o.RefillsRemaining != nil || o.NextStep != "" || o.Notes != ""
	c.envelope(o.Envelope, hasFields)
	if !o.OK {
		return c.err()
	}
	c.expect(o.RxRequired != nil, "rx_required is missing")
	c.expect(o.NextStep.Valid(), "invalid next_step %q", o.NextStep)
	if o.RxStatus != "" {
		c.expect(o.RxStatus.Valid(), "invalid rx_status %q", o.RxStatus)
	}
	if o.ExpiresAt != "" {
		_, err := time.Parse(time.DateOnly, o.ExpiresAt)
		c.expect(err == nil, "expires_at %q is not a YYYY-MM-DD date", o.ExpiresAt)
	}
	if o.RefillsRemaining != nil {
		c.expect(*o.RefillsRemaining >= 0, "refills_remaining is negative")
	}
	if o.RxRequired != nil && !*o.RxRequired {
		c.expect(o.NextStep == StepAllowRefillRequest, "no prescription needed but next_step is %q", o.NextStep)
	}
	if o.HasValidRx != nil && *o.HasValidRx {
		c.expect(o.NextStep == StepAllowRefillRequest, "valid prescription but next_step is %q", o.NextStep)
	}
	return c.err()
}

func CheckInteractionCheck(o InteractionCheckOutput) error {
	var c checker
	c.envelope(o.Envelope, o.InteractionLevel != "" || len(o.Pairs) > 0 || o.Notes != "")
	if !o.OK {
		return c.err()
	}
	c.expect(o.InteractionLevel.Valid(), "invalid interaction_level %q", o.InteractionLevel)
	highest := LevelNone
	for i, p := range o.Pairs {
		c.expect(p.MedIDA != "" && p.MedIDB != "", "pairs[%d] has an empty med_id", i)
		c.expect(p.Level.Valid(), "pairs[%d] has invalid level %q", i, p.Level)
		if p.Level.Rank() > highest.Rank() {
			highest = p.Level
		}
	}
	c.expect(o.InteractionLevel == highest, "interaction_level %q does not match highest pair level %q", o.InteractionLevel, highest)
	return c.err()
}
