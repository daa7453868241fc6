package pharmacy

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type seedMedication struct {
	id, brand, generic string
	ingredients        []string
	form, strength     string
	rxRequired         bool
	instructions       string
	sideEffects        []string
	warnings           []string
}

const (
	otcInstructions = "Informational only. Follow the product label or a licensed professional's directions."
	otcWarning      = "Informational only. See label for warnings and contraindications."
)

var seedPatients = [][3]string{
	{"P001", "גולדה מאיר", "he"},
	{"P002", "Rosalind Franklin", "en"},
	{"P003", "חנה סנש", "he"},
	{"P004", "Marie Curie", "en"},
	{"P005", "לאה גולדברג", "he"},
	{"P006", "Rosa Parks", "en"},
	{"P007", "עדה יונת", "he"},
	{"P008", "Amelia Earhart", "en"},
	{"P009", "נעמי שמר", "he"},
	{"P010", "Henrietta Lacks", "en"},
}

var seedMedications = []seedMedication{
	{"MED001", "PainAway", "Ibuprofen", []string{"ibuprofen"}, "tablet", "200 mg", false, otcInstructions, []string{"nausea", "heartburn"}, []string{otcWarning}},
	{"MED002", "IbuTabs", "Ibuprofen", []string{"ibuprofen"}, "tablet", "200 mg", false, otcInstructions, []string{"nausea", "heartburn"}, []string{otcWarning}},
	{"MED003", "Cholesto", "Atorvastatin", []string{"atorvastatin"}, "tablet", "20 mg", true,
		"Prescription only. Use exactly as written on the prescription label.", []string{"muscle aches"},
		[]string{"Prescription medication. Consult a licensed professional for questions."}},
	{"MED004", "AcidEase", "Omeprazole", []string{"omeprazole"}, "capsule", "20 mg", false, otcInstructions, []string{"headache"}, []string{otcWarning}},
	{"MED005", "AllerFree", "Loratadine", []string{"loratadine"}, "tablet", "10 mg", false, otcInstructions, []string{"drowsiness"}, []string{otcWarning}},
}

type seedStock struct {
	medID     string
	qty       int
	threshold int
	bin       string
}

var seedInventory = []seedStock{
	{"MED001", 0, 5, "A1-01"},
	{"MED002", 25, 5, "A1-02"},
	{"MED003", 10, 2, "B2-01"},
	{"MED004", 18, 3, "C1-03"},
	{"MED005", 30, 5, "C1-04"},
}

// Seed replaces all data with the demo data set. Prescription dates are relative to today.
func (s *Store) Seed(ctx context.Context, today time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"interaction_rules", "prescriptions", "inventory", "medications", "patients"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, p := range seedPatients {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO patients(patient_id, display_name, language_preference) VALUES (?, ?, ?)`,
			p[0], p[1], p[2]); err != nil {
			return fmt.Errorf("insert patient %s: %w", p[0], err)
		}
	}

	for _, m := range seedMedications {
		ingredients, _ := json.Marshal(m.ingredients)
		sideEffects, _ := json.Marshal(m.sideEffects)
		warnings, _ := json.Marshal(m.warnings)
		rx := 0
		if m.rxRequired {
			rx = 1
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO medications(
				med_id, brand_name, generic_name, active_ingredients, form, strength,
				rx_required, standard_instructions, common_side_effects, warnings
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.id, m.brand, m.generic, string(ingredients), m.form, m.strength,
			rx, m.instructions, string(sideEffects), string(warnings)); err != nil {
			return fmt.Errorf("insert medication %s: %w", m.id, err)
		}
	}

	for _, st := range seedInventory {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO inventory(med_id, qty_on_hand, reorder_threshold, location_bin) VALUES (?, ?, ?, ?)`,
			st.medID, st.qty, st.threshold, st.bin); err != nil {
			return fmt.Errorf("insert inventory %s: %w", st.medID, err)
		}
	}

	lastFilled := today.UTC().AddDate(0, 0, -30).Truncate(time.Second).Format(time.RFC3339)
	prescriptions := []struct {
		id, patient, med, status string
		expires                  time.Time
		refills                  int
		lastFilled               any
	}{
		{"RX0001", "P001", "MED003", "active", today.AddDate(0, 0, 180), 2, lastFilled},
		{"RX0002", "P002", "MED003", "expired", today.AddDate(0, 0, -10), 0, nil},
	}
	for _, rx := range prescriptions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO prescriptions(
				rx_id, patient_id, med_id, status, expires_at, refills_remaining, directions, last_filled_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rx.id, rx.patient, rx.med, rx.status, rx.expires.Format(time.DateOnly), rx.refills,
			"Take as directed on the prescription label.", rx.lastFilled); err != nil {
			return fmt.Errorf("insert prescription %s: %w", rx.id, err)
		}
	}

	rules := []struct{ id, a, b, level, message string }{
		{"INT0001", "MED001", "MED003", "avoid",
			"Synthetic demo warning: these two items are flagged as 'do not take together'. Consult a pharmacist/clinician."},
		{"INT0002", "MED004", "MED005", "caution",
			"Synthetic demo warning: interaction flagged as 'caution'. Consult a pharmacist/clinician."},
	}
	for _, r := range rules {
		a, b := orderedPair(r.a, r.b)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO interaction_rules(rule_id, med_id_a, med_id_b, level, message, source) VALUES (?, ?, ?, ?, ?, ?)`,
			r.id, a, b, r.level, r.message, "synthetic_demo"); err != nil {
			return fmt.Errorf("insert interaction rule %s: %w", r.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Info("pharmacy data seeded", "patients", len(seedPatients), "medications", len(seedMedications))
	return nil
}

func orderedPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

type Stats struct {
	Patients         int `json:"patients"`
	Medications      int `json:"medications"`
	Inventory        int `json:"inventory"`
	Prescriptions    int `json:"prescriptions"`
	InteractionRules int `json:"interaction_rules"`
	// Stock of the out-of-stock and in-stock ibuprofen brands used by the demo flows.
	PainAwayQty int `json:"painaway_qty"`
	IbuTabsQty  int `json:"ibutabs_qty"`
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		counts := []struct {
			table string
			dst   *int
		}{
			{"patients", &st.Patients},
			{"medications", &st.Medications},
			{"inventory", &st.Inventory},
			{"prescriptions", &st.Prescriptions},
			{"interaction_rules", &st.InteractionRules},
		}
		for _, c := range counts {
			if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+c.table).Scan(c.dst); err != nil {
				return fmt.Errorf("count %s: %w", c.table, err)
			}
		}
		for id, dst := range map[string]*int{"MED001": &st.PainAwayQty, "MED002": &st.IbuTabsQty} {
			if err := conn.QueryRowContext(ctx, `SELECT qty_on_hand FROM inventory WHERE med_id = ?`, id).Scan(dst); err != nil {
				return fmt.Errorf("stock of %s: %w", id, err)
			}
		}
		return nil
	})
	return st, err
}

// Check verifies the invariants the demo conversations rely on.
func (st Stats) Check() error {
	switch {
	case st.Patients == 0 || st.Medications == 0 || st.Inventory == 0:
		return fmt.Errorf("seed incomplete: %+v", st)
	case st.Inventory != st.Medications:
		return fmt.Errorf("inventory rows (%d) do not match medications (%d)", st.Inventory, st.Medications)
	case st.PainAwayQty != 0:
		return fmt.Errorf("MED001 must be out of stock, has %d", st.PainAwayQty)
	case st.IbuTabsQty <= 0:
		return fmt.Errorf("MED002 must be in stock, has %d", st.IbuTabsQty)
	}
	return nil
}
