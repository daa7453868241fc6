package pharmacy

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/sealor/pharmacy-agent/pkg/contracts"
)

// InteractionCheck reports every rule between the given medications and the most severe level among them.
func (s *Store) InteractionCheck(ctx context.Context, in contracts.InteractionCheckInput) (contracts.InteractionCheckOutput, error) {
	var ids []string
	for _, id := range in.MedIDs {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	var missing []string
	var pairs []contracts.InteractionPair
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `SELECT med_id FROM medications WHERE med_id IN (`+placeholders+`)`, args...)
		if err != nil {
			return err
		}
		found := map[string]bool{}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			found[id] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, id := range ids {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return nil
		}

		rules, err := conn.QueryContext(ctx, `
			SELECT med_id_a, med_id_b, level, message
			FROM interaction_rules
			WHERE med_id_a IN (`+placeholders+`) AND med_id_b IN (`+placeholders+`)
			ORDER BY rule_id`, append(slices.Clone(args), args...)...)
		if err != nil {
			return err
		}
		defer rules.Close()

		seen := map[[2]string]bool{}
		for rules.Next() {
			var p contracts.InteractionPair
			if err := rules.Scan(&p.MedIDA, &p.MedIDB, &p.Level, &p.Message); err != nil {
				return err
			}
			a, b := orderedPair(p.MedIDA, p.MedIDB)
			if seen[[2]string{a, b}] {
				continue
			}
			seen[[2]string{a, b}] = true
			pairs = append(pairs, p)
		}
		return rules.Err()
	})
	if err != nil {
		return contracts.InteractionCheckOutput{}, fmt.Errorf("interaction lookup: %w", err)
	}

	if len(missing) > 0 {
		slices.Sort(missing)
		return contracts.InteractionCheckOutput{
			Envelope: contracts.Failure(contracts.ErrUnknownMedID, "Unknown med_id(s): "+strings.Join(missing, ", ")),
		}, nil
	}

	if pairs == nil {
		pairs = []contracts.InteractionPair{}
	}
	level := contracts.LevelNone
	for _, p := range pairs {
		if p.Level.Rank() > level.Rank() {
			level = p.Level
		}
	}
	out := contracts.InteractionCheckOutput{Envelope: contracts.Success(), InteractionLevel: level, Pairs: pairs}
	if level == contracts.LevelAvoid {
		out.Notes = contracts.AvoidNotice(in.Language)
	}
	return out, nil
}
