// Package campaign shapes the synchronous campaign endpoints' records into
// flat rows: campaign listings and campaign-level spend reports.
package campaign

import (
	"encoding/json"
	"fmt"

	"searchads-tap/internal/domain"
)

// moneyFields are {currency, amount} objects split into two columns.
var moneyFields = []string{"budgetAmount", "dailyBudgetAmount"}

// Flatten returns a copy of a campaign record with money objects split into
// <field>_currency / <field>_amount and list fields serialised to JSON text.
func Flatten(rec domain.Record) (domain.Record, error) {
	out := copyRecord(rec)

	for _, f := range moneyFields {
		v, ok := out[f]
		delete(out, f)
		out[f+"_currency"] = nil
		out[f+"_amount"] = nil
		if !ok || v == nil {
			continue
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil, domain.ErrValidation("campaign field %s: expected object, got %T", f, v)
		}
		out[f+"_currency"] = m["currency"]
		out[f+"_amount"] = m["amount"]
	}

	if err := serialize(out, domain.CampaignSerializedFields); err != nil {
		return nil, err
	}
	return out, nil
}

// ExtendedSpendRows expands each campaign report row into one row per
// granularity entry, stamped with the row's metadata.campaignId.
func ExtendedSpendRows(rows []domain.Record) ([]domain.Record, error) {
	var out []domain.Record
	for i, row := range rows {
		meta, _ := row["metadata"].(map[string]any)
		if meta == nil {
			return nil, domain.ErrValidation("report row %d: missing metadata", i)
		}
		campaignID, ok := meta["campaignId"]
		if !ok {
			return nil, domain.ErrValidation("report row %d: metadata has no campaignId", i)
		}

		granularity, _ := row["granularity"].([]any)
		for _, g := range granularity {
			entry, ok := g.(map[string]any)
			if !ok {
				return nil, domain.ErrValidation("report row %d: granularity entry is %T", i, g)
			}
			ext := copyRecord(entry)
			ext["campaignId"] = campaignID
			out = append(out, ext)
		}
	}
	return out, nil
}

// FlattenSpendRow serialises the money objects of an extended spend row to
// JSON text.
func FlattenSpendRow(rec domain.Record) (domain.Record, error) {
	out := copyRecord(rec)
	if err := serialize(out, domain.SpendRowSerializedFields); err != nil {
		return nil, err
	}
	return out, nil
}

func serialize(rec domain.Record, fields []string) error {
	for _, f := range fields {
		v, ok := rec[f]
		if !ok || v == nil {
			rec[f] = nil
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("serialise %s: %w", f, err)
		}
		rec[f] = string(b)
	}
	return nil
}

func copyRecord(rec domain.Record) domain.Record {
	out := make(domain.Record, len(rec)+4)
	for k, v := range rec {
		out[k] = v
	}
	return out
}
