package profile

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/painelportos/ingest/internal/domain"
	"github.com/painelportos/ingest/internal/engine"
)

func init() {
	registerProcesses()
}

// processRow carries the process candidate plus the raw situation text,
// resolved against the situation lookup at persist time.
type processRow struct {
	Process   domain.Process
	Situation string
}

// situationSynonyms maps common workbook spellings to the canonical
// situation names the panel manages. Matching is by normalized substring,
// first fragment wins; anything not matched keeps its own upper-cased
// spelling.
var situationSynonyms = []struct {
	fragment  string
	canonical string
}{
	{"pedido revisao de projeto em fase de obra - rpfo", "OUTROS"},
	{"interferencia total", "INTERFERÊNCIA TOTAL"},
	{"em execucao", "EM EXECUÇÃO"},
	{"concluido", "CONCLUÍDO"},
	{"licenciado", "LICENCIADO"},
	{"em analise", "EM ANÁLISE"},
}

func canonicalSituation(raw string) string {
	key := engine.NormalizeKey(raw)
	if key == "" {
		return ""
	}
	for _, syn := range situationSynonyms {
		if strings.Contains(key, syn.fragment) {
			return syn.canonical
		}
	}
	return strings.ToUpper(engine.CleanCell(raw))
}

func registerProcesses() {
	engine.Register(&engine.Profile{
		Key:    "processes",
		Label:  "Processos e Metas",
		Layout: engine.LayoutYearSheets,
		Tables: []engine.TableSpec{
			{
				Kind:  "processos",
				Label: "Processos",
				Fields: []engine.FieldSpec{
					{Name: "numero_processo", Type: engine.FieldText, Required: true,
						Aliases: []string{"nº processo", "no processo", "numero processo", "número do processo"}},
					{Name: "data_protocolo", Type: engine.FieldDate,
						Aliases: []string{"data do protocolo", "data protocolo"}},
					{Name: "licenca", Type: engine.FieldText,
						Aliases: []string{"licença"}},
					{Name: "situacao_geral", Type: engine.FieldText,
						Aliases: []string{"situação geral", "situação"}},
					{Name: "tipo_intervencao", Type: engine.FieldText,
						Aliases: []string{"tipo intervenção", "tipo de intervenção"}},
					{Name: "financeiro_planejado", Type: engine.FieldDecimal, NonNegative: true,
						Aliases: []string{"financeiro planejado", "financeiro planejado r$"}},
					{Name: "financeiro_executado", Type: engine.FieldDecimal, NonNegative: true,
						Aliases: []string{"financeiro executado", "financeiro executado r$"}},
					{Name: "km_planejado", Type: engine.FieldDecimal, NonNegative: true,
						Aliases: []string{"km planejado"}},
					{Name: "km_executado", Type: engine.FieldDecimal, NonNegative: true,
						Aliases: []string{"km executado"}},
					{Name: "extensao_km", Type: engine.FieldDecimal, NonNegative: true,
						Aliases: []string{"extensão km", "extensão (km)"}},
				},
				Build: buildProcessRow,
			},
		},
		Order: []engine.EntityKind{engine.KindProcess, engine.KindGoal, engine.KindIndicator},
		Persist: map[engine.EntityKind]engine.PersistFunc{
			engine.KindProcess:   persistProcess,
			engine.KindGoal:      persistGoal,
			engine.KindIndicator: persistIndicator,
		},
		// No auto-creatable lookups: situations must pre-exist, unknown
		// ones reject the row.
	})
}

// buildProcessRow turns one year-sheet row into up to three candidates:
// the process, the (process, year) goal and, when the row carries an
// intervention type, the goal's indicator.
func buildProcessRow(row *engine.Row, tableCtx map[string]string) ([]*engine.Candidate, error) {
	year, err := strconv.Atoi(tableCtx["year"])
	if err != nil {
		return nil, fmt.Errorf("sheet year %q: %w", tableCtx["year"], err)
	}

	number := row.Str("numero_processo")
	procKey := "process|" + engine.NormalizeKey(number)

	cands := []*engine.Candidate{{
		Kind: engine.KindProcess,
		Key:  procKey,
		Entity: &processRow{
			Process: domain.Process{
				Number:       number,
				ProtocolDate: row.DatePtr("data_protocolo"),
				License:      row.Str("licenca"),
			},
			Situation: row.Str("situacao_geral"),
		},
	}}

	goalKey := fmt.Sprintf("%s|%d", procKey, year)
	cands = append(cands, &engine.Candidate{
		Kind:      engine.KindGoal,
		Key:       goalKey,
		ParentKey: procKey,
		Entity:    &domain.Goal{Year: year},
	})

	if row.Has("tipo_intervencao") {
		kind := row.Str("tipo_intervencao")
		cands = append(cands, &engine.Candidate{
			Kind:      engine.KindIndicator,
			Key:       goalKey + "|" + engine.NormalizeKey(kind),
			ParentKey: goalKey,
			Entity: &domain.Indicator{
				InterventionType:  kind,
				FinancialPlanned:  row.Dec("financeiro_planejado"),
				FinancialExecuted: row.Dec("financeiro_executado"),
				KmPlanned:         row.Dec("km_planejado"),
				KmExecuted:        row.Dec("km_executado"),
				ExtensionKm:       row.Dec("extensao_km"),
			},
		})
	}

	return cands, nil
}

// processCols and indicatorCols translate workbook fields into the store
// columns they feed; columns the workbook did not carry stay untouched on
// re-import.
var processCols = map[string]string{
	"data_protocolo": "protocol_date",
	"licenca":        "license",
	"situacao_geral": "situation_id",
}

var indicatorCols = map[string]string{
	"financeiro_planejado": "financial_planned",
	"financeiro_executado": "financial_executed",
	"km_planejado":         "km_planned",
	"km_executado":         "km_executed",
	"extensao_km":          "extension_km",
}

func persistProcess(ctx context.Context, tx engine.Tx, run *engine.RunState, cand *engine.Candidate) (engine.Outcome, error) {
	pr := cand.Entity.(*processRow)

	if situation := canonicalSituation(pr.Situation); situation != "" {
		id, err := run.Resolver.Resolve(ctx, tx, domain.LookupSituation, situation, "")
		if err != nil {
			return 0, err
		}
		pr.Process.SituationID = &id
	}

	id, created, err := tx.UpsertProcess(ctx, &pr.Process, colsFor(cand, processCols))
	if err != nil {
		return 0, err
	}
	run.IDs[cand.Key] = id
	return engine.OutcomeOf(created), nil
}

func persistGoal(ctx context.Context, tx engine.Tx, run *engine.RunState, cand *engine.Candidate) (engine.Outcome, error) {
	goal := cand.Entity.(*domain.Goal)

	processID, ok := run.IDs[cand.ParentKey]
	if !ok {
		return 0, engine.OrphanRowError(cand.ParentKey)
	}
	goal.ProcessID = processID

	id, created, err := tx.UpsertGoal(ctx, goal)
	if err != nil {
		return 0, err
	}
	run.IDs[cand.Key] = id
	return engine.OutcomeOf(created), nil
}

func persistIndicator(ctx context.Context, tx engine.Tx, run *engine.RunState, cand *engine.Candidate) (engine.Outcome, error) {
	ind := cand.Entity.(*domain.Indicator)

	goalID, ok := run.IDs[cand.ParentKey]
	if !ok {
		return 0, engine.OrphanRowError(cand.ParentKey)
	}
	ind.GoalID = goalID

	id, created, err := tx.UpsertIndicator(ctx, ind, colsFor(cand, indicatorCols))
	if err != nil {
		return 0, err
	}
	run.IDs[cand.Key] = id
	return engine.OutcomeOf(created), nil
}
