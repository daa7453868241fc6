package contracts

type Medication struct {
	MedID             string   `json:"med_id"`
	BrandName         string   `json:"brand_name"`
	GenericName       string   `json:"generic_name"`
	ActiveIngredients []string `json:"active_ingredients"`
	Form              string   `json:"form"`
	Strength          string   `json:"strength"`
	RxRequired        bool     `json:"rx_required"`
}

type StockedMedication struct {
	Medication
	QtyOnHand int `json:"qty_on_hand"`
}

type InventoryCheckInput struct {
	Query    string   `json:"query"`
	Language Language `json:"language"`
}

type InventoryCheckOutput struct {
	Envelope
	Matches []StockedMedication `json:"matches,omitempty"`
	Notes   string              `json:"notes,omitempty"`
}

type EquivalentDisclosure struct {
	SameActiveIngredients bool     `json:"same_active_ingredients"`
	SameStrength          bool     `json:"same_strength"`
	SameForm              bool     `json:"same_form"`
	PossibleDifferences   []string `json:"possible_differences"`
}

type EquivalentOption struct {
	StockedMedication
	Disclosure EquivalentDisclosure `json:"disclosure"`
}

type InventoryFindEquivalentInput struct {
	MedID               string   `json:"med_id"`
	Language            Language `json:"language"`
	RequireSameStrength bool     `json:"require_same_strength"`
	RequireSameForm     bool     `json:"require_same_form"`
}

type InventoryFindEquivalentOutput struct {
	Envelope
	Requested   *StockedMedication `json:"requested,omitempty"`
	Equivalents []EquivalentOption `json:"equivalents,omitempty"`
	Notes       string             `json:"notes,omitempty"`
}

type PrescriptionVerifyInput struct {
	PatientID string   `json:"patient_id"`
	MedID     string   `json:"med_id"`
	Intent    Intent   `json:"intent"`
	Language  Language `json:"language"`
}

type PrescriptionVerifyOutput struct {
	Envelope
	RxRequired       *bool    `json:"rx_required,omitempty"`
	PatientFound     *bool    `json:"patient_found,omitempty"`
	HasValidRx       *bool    `json:"has_valid_rx,omitempty"`
	RxStatus         RxStatus `json:"rx_status,omitempty"`
	ExpiresAt        string   `json:"expires_at,omitempty"`
	RefillsRemaining *int     `json:"refills_remaining,omitempty"`
	NextStep         NextStep `json:"next_step,omitempty"`
	Notes            string   `json:"notes,omitempty"`
}

type InteractionPair struct {
	MedIDA  string           `json:"med_id_a"`
	MedIDB  string           `json:"med_id_b"`
	Level   InteractionLevel `json:"level"`
	Message string           `json:"message"`
}

type InteractionCheckInput struct {
	MedIDs   []string `json:"med_ids"`
	Language Language `json:"language"`
}

type InteractionCheckOutput struct {
	Envelope
	InteractionLevel InteractionLevel  `json:"interaction_level,omitempty"`
	Pairs            []InteractionPair `json:"pairs"`
	Notes            string            `json:"notes,omitempty"`
}
