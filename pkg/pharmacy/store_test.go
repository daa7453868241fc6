package pharmacy

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sealor/pharmacy-agent/pkg/contracts"
	"github.com/sealor/pharmacy-agent/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newSeededStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	s, err := Open(ctx, filepath.Join(t.TempDir(), "pharmacy.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Seed(ctx, today))
	s.Now = func() time.Time { return today }
	return s
}

func medIDs(meds []contracts.StockedMedication) []string {
	var ids []string
	for _, m := range meds {
		ids = append(ids, m.MedID)
	}
	return ids
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "  ", logging.Discard())
	assert.EqualError(t, err, "missing db path")
}

func TestSeedIsRepeatable(t *testing.T) {
	s := newSeededStore(t)
	require.NoError(t, s.Seed(context.Background(), today))

	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{
		Patients: 10, Medications: 5, Inventory: 5, Prescriptions: 2, InteractionRules: 2,
		PainAwayQty: 0, IbuTabsQty: 25,
	}, st)
	assert.NoError(t, st.Check())
}

func TestStatsCheck(t *testing.T) {
	st := Stats{Patients: 1, Medications: 2, Inventory: 2, IbuTabsQty: 1, PainAwayQty: 3}
	assert.EqualError(t, st.Check(), "MED001 must be out of stock, has 3")
}

func TestInventoryCheck(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	out, err := s.InventoryCheck(ctx, contracts.InventoryCheckInput{Query: "ibuprofen", Language: contracts.LanguageEnglish})
	require.NoError(t, err)
	require.True(t, out.OK)
	assert.Equal(t, []string{"MED002", "MED001"}, medIDs(out.Matches), "in-stock items first")
	assert.NoError(t, contracts.CheckInventoryCheck(out))

	out, err = s.InventoryCheck(ctx, contracts.InventoryCheckInput{Query: "PainAway 200 mg tablets!"})
	require.NoError(t, err)
	require.True(t, out.OK)
	require.Len(t, out.Matches, 1)
	assert.Equal(t, "PainAway", out.Matches[0].BrandName)
	assert.Equal(t, 0, out.Matches[0].QtyOnHand)
	assert.Equal(t, []string{"ibuprofen"}, out.Matches[0].ActiveIngredients)

	out, err = s.InventoryCheck(ctx, contracts.InventoryCheckInput{Query: "AllerFree"})
	require.NoError(t, err)
	require.True(t, out.OK)
	assert.Equal(t, 30, out.Matches[0].QtyOnHand)
	assert.False(t, out.Matches[0].RxRequired)
}

func TestInventoryCheckFailures(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	out, err := s.InventoryCheck(ctx, contracts.InventoryCheckInput{Query: "?!"})
	require.NoError(t, err)
	assert.False(t, out.OK)
	assert.Equal(t, contracts.ErrInvalidQuery, out.Error.Code)

	out, err = s.InventoryCheck(ctx, contracts.InventoryCheckInput{Query: "Aspirin 100 mg"})
	require.NoError(t, err)
	assert.False(t, out.OK)
	assert.Equal(t, contracts.ErrMedNotFound, out.Error.Code)
	assert.NoError(t, contracts.CheckInventoryCheck(out))

	out, err = s.InventoryCheck(ctx, contracts.InventoryCheckInput{Query: "_"})
	require.NoError(t, err)
	require.False(t, out.OK, "LIKE wildcards are matched literally")
	assert.Equal(t, contracts.ErrMedNotFound, out.Error.Code)
}

func TestSearchTokens(t *testing.T) {
	assert.Equal(t, []string{"painaway"}, searchTokens("PainAway 200 mg tablets"))
	assert.Equal(t, []string{"cholesto"}, searchTokens("Cholesto 20mg"))
	assert.Empty(t, searchTokens("200 mg x"))
}

func TestInventoryFindEquivalent(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	out, err := s.InventoryFindEquivalent(ctx, contracts.InventoryFindEquivalentInput{
		MedID: "MED001", RequireSameForm: true, RequireSameStrength: true,
	})
	require.NoError(t, err)
	require.True(t, out.OK)
	require.NotNil(t, out.Requested)
	assert.Equal(t, "MED001", out.Requested.MedID)
	require.Len(t, out.Equivalents, 1)

	eq := out.Equivalents[0]
	assert.Equal(t, "MED002", eq.MedID)
	assert.Equal(t, 25, eq.QtyOnHand)
	assert.Equal(t, contracts.EquivalentDisclosure{
		SameActiveIngredients: true, SameStrength: true, SameForm: true,
		PossibleDifferences: []string{"price", "inactive ingredients", "packaging"},
	}, eq.Disclosure)
	assert.NoError(t, contracts.CheckInventoryFindEquivalent(out))

	out, err = s.InventoryFindEquivalent(ctx, contracts.InventoryFindEquivalentInput{MedID: "MED005"})
	require.NoError(t, err)
	assert.Equal(t, contracts.ErrNoEquivalentsFound, out.Error.Code)
	assert.Nil(t, out.Requested)

	out, err = s.InventoryFindEquivalent(ctx, contracts.InventoryFindEquivalentInput{MedID: "MED999"})
	require.NoError(t, err)
	assert.Equal(t, contracts.ErrMedNotFound, out.Error.Code)
}

func TestPrescriptionVerify(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		in       contracts.PrescriptionVerifyInput
		code     contracts.ErrorCode
		valid    *bool
		next     contracts.NextStep
		rxStatus contracts.RxStatus
		rxNeeded bool
	}{
		{name: "active refill", in: contracts.PrescriptionVerifyInput{PatientID: "P001", MedID: "MED003", Intent: contracts.IntentRefill},
			valid: ptr(true), next: contracts.StepAllowRefillRequest, rxStatus: contracts.RxActive, rxNeeded: true},
		{name: "expired", in: contracts.PrescriptionVerifyInput{PatientID: "P002", MedID: "MED003", Intent: contracts.IntentRefill},
			valid: ptr(false), next: contracts.StepCannotProceed, rxStatus: contracts.RxExpired, rxNeeded: true},
		{name: "no prescription new", in: contracts.PrescriptionVerifyInput{PatientID: "P003", MedID: "MED003", Intent: contracts.IntentNew},
			valid: ptr(false), next: contracts.StepRequestRxDetails, rxNeeded: true},
		{name: "no prescription refill", in: contracts.PrescriptionVerifyInput{PatientID: "P003", MedID: "MED003", Intent: contracts.IntentRefill},
			valid: ptr(false), next: contracts.StepCannotProceed, rxNeeded: true},
		{name: "otc", in: contracts.PrescriptionVerifyInput{PatientID: "P999", MedID: "MED002", Intent: contracts.IntentNew},
			next: contracts.StepAllowRefillRequest},
		{name: "unknown medication", in: contracts.PrescriptionVerifyInput{PatientID: "P001", MedID: "MED404", Intent: contracts.IntentNew},
			code: contracts.ErrMedNotFound},
		{name: "unknown patient", in: contracts.PrescriptionVerifyInput{PatientID: "P404", MedID: "MED003", Intent: contracts.IntentNew},
			code: contracts.ErrPatientNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := s.PrescriptionVerify(ctx, tt.in)
			require.NoError(t, err)
			require.NoError(t, contracts.CheckPrescriptionVerify(out))

			if tt.code != "" {
				require.False(t, out.OK)
				assert.Equal(t, tt.code, out.Error.Code)
				return
			}
			require.True(t, out.OK)
			assert.Equal(t, tt.next, out.NextStep)
			assert.Equal(t, tt.valid, out.HasValidRx)
			assert.Equal(t, tt.rxStatus, out.RxStatus)
			require.NotNil(t, out.RxRequired)
			assert.Equal(t, tt.rxNeeded, *out.RxRequired)
		})
	}
}

func TestPrescriptionExpiresRelativeToClock(t *testing.T) {
	s := newSeededStore(t)
	s.Now = func() time.Time { return today.AddDate(1, 0, 0) }

	out, err := s.PrescriptionVerify(context.Background(), contracts.PrescriptionVerifyInput{
		PatientID: "P001", MedID: "MED003", Intent: contracts.IntentNew,
	})
	require.NoError(t, err)
	assert.Equal(t, ptr(false), out.HasValidRx)
	assert.Equal(t, "2026-08-28", out.ExpiresAt)
	assert.Equal(t, contracts.StepCannotProceed, out.NextStep)
}

func TestInteractionCheck(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	out, err := s.InteractionCheck(ctx, contracts.InteractionCheckInput{MedIDs: []string{"MED003", "MED001", "MED001"}, Language: contracts.LanguageEnglish})
	require.NoError(t, err)
	require.True(t, out.OK)
	assert.Equal(t, contracts.LevelAvoid, out.InteractionLevel)
	require.Len(t, out.Pairs, 1)
	assert.Equal(t, "MED001", out.Pairs[0].MedIDA)
	assert.Equal(t, "MED003", out.Pairs[0].MedIDB)
	assert.Equal(t, "These medications cannot be taken together. Consult a pharmacist or clinician.", out.Notes)
	assert.NoError(t, contracts.CheckInteractionCheck(out))

	out, err = s.InteractionCheck(ctx, contracts.InteractionCheckInput{MedIDs: []string{"MED004", "MED005", "MED002"}, Language: contracts.LanguageHebrew})
	require.NoError(t, err)
	assert.Equal(t, contracts.LevelCaution, out.InteractionLevel)
	assert.Empty(t, out.Notes)

	out, err = s.InteractionCheck(ctx, contracts.InteractionCheckInput{MedIDs: []string{"MED002"}})
	require.NoError(t, err)
	assert.Equal(t, contracts.LevelNone, out.InteractionLevel)
	assert.Empty(t, out.Pairs)

	out, err = s.InteractionCheck(ctx, contracts.InteractionCheckInput{MedIDs: []string{"MED009", "MED001", "MED007"}})
	require.NoError(t, err)
	require.False(t, out.OK)
	assert.Equal(t, contracts.ErrUnknownMedID, out.Error.Code)
	assert.Equal(t, "Unknown med_id(s): MED007, MED009", out.Error.Message)
}

func TestLookupsFailOnCancelledContext(t *testing.T) {
	s := newSeededStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.InventoryCheck(ctx, contracts.InventoryCheckInput{Query: "AllerFree"})
	assert.Error(t, err)
}
