package pharmacy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/sealor/pharmacy-agent/pkg/contracts"
)

var (
	punctuation   = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s/.-]`)
	whitespace    = regexp.MustCompile(`\s+`)
	strengthToken = regexp.MustCompile(`^\d+(\.\d+)?(mg|mcg|g|ml)$`)
	digitsOnly    = regexp.MustCompile(`^\d+$`)
	likeEscaper   = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
)

var stopwords = map[string]struct{}{
	"mg": {}, "g": {}, "mcg": {}, "ml": {},
	"tablet": {}, "tablets": {}, "tab": {}, "tabs": {},
	"capsule": {}, "capsules": {}, "cap": {}, "caps": {},
	"syrup": {}, "solution": {}, "suspension": {},
	"cream": {}, "ointment": {}, "gel": {}, "drops": {},
	"oral": {}, "po": {},
}

const stockedColumns = `m.med_id, m.brand_name, m.generic_name, m.active_ingredients,
	m.form, m.strength, m.rx_required, i.qty_on_hand`

func normalizeQuery(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	q = punctuation.ReplaceAllString(q, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(q, " "))
}

// searchTokens strips units, forms, bare numbers and strengths from a query.
func searchTokens(q string) []string {
	var tokens []string
	for _, t := range strings.Fields(normalizeQuery(q)) {
		if _, stop := stopwords[t]; stop {
			continue
		}
		if digitsOnly.MatchString(t) || strengthToken.MatchString(t) || utf8.RuneCountInString(t) < 2 {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}

func likeContains(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStocked(row rowScanner) (contracts.StockedMedication, error) {
	var m contracts.StockedMedication
	var ingredients string
	var rx int64
	if err := row.Scan(&m.MedID, &m.BrandName, &m.GenericName, &ingredients, &m.Form, &m.Strength, &rx, &m.QtyOnHand); err != nil {
		return m, err
	}
	if err := json.Unmarshal([]byte(ingredients), &m.ActiveIngredients); err != nil {
		return m, fmt.Errorf("active_ingredients of %s: %w", m.MedID, err)
	}
	m.RxRequired = rx != 0
	return m, nil
}

func queryStocked(ctx context.Context, conn *sql.Conn, query string, args ...any) ([]contracts.StockedMedication, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meds []contracts.StockedMedication
	for rows.Next() {
		m, err := scanStocked(rows)
		if err != nil {
			return nil, err
		}
		meds = append(meds, m)
	}
	return meds, rows.Err()
}

// InventoryCheck searches medications by brand or generic name.
// A whole-query match is tried first, then every remaining search token must match.
func (s *Store) InventoryCheck(ctx context.Context, in contracts.InventoryCheckInput) (contracts.InventoryCheckOutput, error) {
	q := normalizeQuery(in.Query)
	if q == "" {
		return contracts.InventoryCheckOutput{Envelope: contracts.Failure(contracts.ErrInvalidQuery, "Query must be non-empty.")}, nil
	}

	var matches []contracts.StockedMedication
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		var err error
		like := likeContains(q)
		matches, err = queryStocked(ctx, conn, `
			SELECT `+stockedColumns+`
			FROM medications m
			JOIN inventory i ON i.med_id = m.med_id
			WHERE lower(m.brand_name) LIKE ? ESCAPE '\' OR lower(m.generic_name) LIKE ? ESCAPE '\'
			ORDER BY (i.qty_on_hand > 0) DESC, m.brand_name ASC`, like, like)
		if err != nil || len(matches) > 0 {
			return err
		}

		tokens := searchTokens(in.Query)
		if len(tokens) == 0 {
			return nil
		}
		s.logger.Debug("inventory fallback search", "query", q, "tokens", tokens)

		clauses := make([]string, 0, len(tokens))
		args := make([]any, 0, 2*len(tokens))
		for _, t := range tokens {
			clauses = append(clauses, `(lower(m.brand_name) LIKE ? ESCAPE '\' OR lower(m.generic_name) LIKE ? ESCAPE '\')`)
			args = append(args, likeContains(t), likeContains(t))
		}
		matches, err = queryStocked(ctx, conn, `
			SELECT `+stockedColumns+`
			FROM medications m
			JOIN inventory i ON i.med_id = m.med_id
			WHERE `+strings.Join(clauses, " AND ")+`
			ORDER BY (i.qty_on_hand > 0) DESC, m.brand_name ASC`, args...)
		return err
	})
	if err != nil {
		return contracts.InventoryCheckOutput{}, fmt.Errorf("inventory search: %w", err)
	}

	if len(matches) == 0 {
		return contracts.InventoryCheckOutput{Envelope: contracts.Failure(contracts.ErrMedNotFound, "No medication matched the query.")}, nil
	}
	return contracts.InventoryCheckOutput{Envelope: contracts.Success(), Matches: matches}, nil
}

// InventoryFindEquivalent lists medications with the identical active ingredients as the requested one.
func (s *Store) InventoryFindEquivalent(ctx context.Context, in contracts.InventoryFindEquivalentInput) (contracts.InventoryFindEquivalentOutput, error) {
	var requested *contracts.StockedMedication
	var candidates []contracts.StockedMedication

	err := s.withConn(ctx, func(conn *sql.Conn) error {
		var ingredients string
		row := conn.QueryRowContext(ctx, `SELECT active_ingredients FROM medications WHERE med_id = ?`, in.MedID)
		err := row.Scan(&ingredients)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		found, err := queryStocked(ctx, conn, `
			SELECT `+stockedColumns+`
			FROM medications m
			JOIN inventory i ON i.med_id = m.med_id
			WHERE m.med_id = ?`, in.MedID)
		if err != nil || len(found) == 0 {
			return err
		}
		requested = &found[0]

		clauses := []string{"m.active_ingredients = ?", "m.med_id != ?"}
		args := []any{ingredients, in.MedID}
		if in.RequireSameForm {
			clauses = append(clauses, "m.form = ?")
			args = append(args, requested.Form)
		}
		if in.RequireSameStrength {
			clauses = append(clauses, "m.strength = ?")
			args = append(args, requested.Strength)
		}
		candidates, err = queryStocked(ctx, conn, `
			SELECT `+stockedColumns+`
			FROM medications m
			JOIN inventory i ON i.med_id = m.med_id
			WHERE `+strings.Join(clauses, " AND ")+`
			ORDER BY i.qty_on_hand DESC, m.brand_name ASC`, args...)
		return err
	})
	if err != nil {
		return contracts.InventoryFindEquivalentOutput{}, fmt.Errorf("equivalent search: %w", err)
	}

	if requested == nil {
		return contracts.InventoryFindEquivalentOutput{Envelope: contracts.Failure(contracts.ErrMedNotFound, "Requested med_id not found.")}, nil
	}
	if len(candidates) == 0 {
		return contracts.InventoryFindEquivalentOutput{Envelope: contracts.Failure(contracts.ErrNoEquivalentsFound, "No identical-equivalent options found.")}, nil
	}

	equivalents := make([]contracts.EquivalentOption, 0, len(candidates))
	for _, c := range candidates {
		equivalents = append(equivalents, contracts.EquivalentOption{
			StockedMedication: c,
			Disclosure: contracts.EquivalentDisclosure{
				SameActiveIngredients: true,
				SameStrength:          c.Strength == requested.Strength,
				SameForm:              c.Form == requested.Form,
				PossibleDifferences:   slices.Clone(contracts.PossibleDifferences),
			},
		})
	}
	return contracts.InventoryFindEquivalentOutput{
		Envelope:    contracts.Success(),
		Requested:   requested,
		Equivalents: equivalents,
	}, nil
}
