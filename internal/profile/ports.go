package profile

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/painelportos/ingest/internal/domain"
	"github.com/painelportos/ingest/internal/engine"
)

func init() {
	registerPorts()
}

// concessionRow carries the concession candidate plus the raw zone
// reference, resolved against the port-zone lookup at persist time.
type concessionRow struct {
	Concession domain.Concession
	Zone       string
	UF         string
}

// serviceRow carries the service candidate plus its reference texts and
// whether the workbook stated an explicit capex amount.
type serviceRow struct {
	Service     domain.Service
	Object      string
	ServiceType string
	HasAmount   bool
}

// trackingRow carries the tracking candidate plus the texts needed to
// locate its service and build the risk association.
type trackingRow struct {
	Tracking    domain.TrackingRecord
	Object      string
	ServiceName string
	RiskType    string
	RiskDesc    string
}

func concessionKey(object string) string {
	return "concession|" + engine.NormalizeKey(object)
}

func serviceKey(object, name string) string {
	return "service|" + engine.NormalizeKey(object) + "|" + engine.NormalizeKey(name)
}

func registerPorts() {
	engine.Register(&engine.Profile{
		Key:    "ports",
		Label:  "Contratos Portuários",
		Layout: engine.LayoutNamedTables,
		Tables: []engine.TableSpec{
			{
				Kind:         "cadastro",
				Label:        "Cadastro de Concessões",
				SheetAliases: []string{"cadastro", "concessões", "concessoes"},
				Fields: []engine.FieldSpec{
					{Name: "zona_portuaria", Type: engine.FieldText, Required: true,
						Aliases: []string{"zona portuária"}},
					{Name: "uf", Type: engine.FieldText, Required: true},
					{Name: "objeto_concessao", Type: engine.FieldText, Required: true,
						Aliases: []string{"obj de concessão", "objeto de concessão", "obj. de concessão"}},
					{Name: "tipo", Type: engine.FieldEnum,
						EnumValues: []string{"Concessão", "Arrendamento", "Autorização"}},
					{Name: "capex_total", Type: engine.FieldDecimal, Required: true, NonNegative: true,
						Aliases: []string{"capex total", "capex total r$"}},
					{Name: "data_assinatura", Type: engine.FieldDate,
						Aliases: []string{"data de assinatura do contrato", "data de assinatura", "data assinatura"}},
					{Name: "descricao", Type: engine.FieldText,
						Aliases: []string{"descrição"}},
					{Name: "coord_e", Type: engine.FieldDecimal,
						Aliases: []string{"coordenada e utm", "coordenada e"}},
					{Name: "coord_s", Type: engine.FieldDecimal,
						Aliases: []string{"coordenada s utm", "coordenada s"}},
					{Name: "fuso", Type: engine.FieldInt},
				},
				Build: buildConcessionRow,
			},
			{
				Kind:         "servicos",
				Label:        "Serviços",
				SheetAliases: []string{"serviços", "servicos"},
				Fields: []engine.FieldSpec{
					{Name: "objeto_concessao", Type: engine.FieldText, Required: true,
						Aliases: []string{"obj de concessão", "objeto de concessão", "obj. de concessão"}},
					{Name: "tipo_servico", Type: engine.FieldText, Required: true,
						Aliases: []string{"tipo de serviço"}},
					{Name: "fase", Type: engine.FieldText, Required: true},
					{Name: "servico", Type: engine.FieldText, Required: true,
						Aliases: []string{"serviço"}},
					{Name: "descricao_servico", Type: engine.FieldText,
						Aliases: []string{"descrição do serviço", "descrição"}},
					{Name: "prazo_inicio_anos", Type: engine.FieldInt,
						Aliases: []string{"prazo início anos", "prazo início"}},
					{Name: "data_inicio", Type: engine.FieldDate,
						Aliases: []string{"data de início", "data início"}},
					{Name: "prazo_final_anos", Type: engine.FieldInt,
						Aliases: []string{"prazo final anos", "prazo final"}},
					{Name: "data_final", Type: engine.FieldDate},
					{Name: "fonte_prazo", Type: engine.FieldText,
						Aliases: []string{"fonte prazo"}},
					{Name: "percentual_capex", Type: engine.FieldPercent, Required: true,
						Aliases: []string{"% de capex para o serviço", "% capex", "percentual capex"}},
					{Name: "capex_servico", Type: engine.FieldDecimal, NonNegative: true,
						Aliases: []string{"capex do serviço"}},
					{Name: "fonte_percentual", Type: engine.FieldText,
						Aliases: []string{"fonte % do capex", "fonte do percentual"}},
				},
				Check: engine.CheckDateOrder("data_inicio", "data_final"),
				Build: buildServiceRow,
			},
			{
				Kind:         "acompanhamento",
				Label:        "Acompanhamento",
				SheetAliases: []string{"acompanhamento"},
				Fields: []engine.FieldSpec{
					{Name: "objeto_concessao", Type: engine.FieldText, Required: true,
						Aliases: []string{"obj de concessão", "objeto de concessão", "obj. de concessão"}},
					{Name: "servico", Type: engine.FieldText, Required: true,
						Aliases: []string{"serviço"}},
					{Name: "percentual_executado", Type: engine.FieldPercent, Required: true,
						Aliases: []string{"% executada", "% executado", "percentual executado"}},
					{Name: "capex_reajustado", Type: engine.FieldDecimal, NonNegative: true,
						Aliases: []string{"capex reaj", "capex reajustado"}},
					{Name: "valor_executado", Type: engine.FieldDecimal, NonNegative: true},
					{Name: "data_atualizacao", Type: engine.FieldDate, Required: true,
						Aliases: []string{"data da atualização", "data atualização"}},
					{Name: "responsavel", Type: engine.FieldText, Required: true,
						Aliases: []string{"responsável"}},
					{Name: "cargo", Type: engine.FieldText},
					{Name: "setor", Type: engine.FieldText},
					{Name: "riscos_tipo", Type: engine.FieldText,
						Aliases: []string{"riscos relacionados tipo", "riscos tipo"}},
					{Name: "riscos_descricao", Type: engine.FieldText,
						Aliases: []string{"riscos relacionados descrição", "riscos descrição"}},
				},
				Build: buildTrackingRow,
			},
		},
		Order: []engine.EntityKind{engine.KindConcession, engine.KindService, engine.KindTracking},
		Persist: map[engine.EntityKind]engine.PersistFunc{
			engine.KindConcession: persistConcession,
			engine.KindService:    persistService,
			engine.KindTracking:   persistTracking,
		},
		AutoCreate: map[domain.LookupKind]bool{
			domain.LookupPortZone:    true,
			domain.LookupServiceType: true,
			domain.LookupRiskType:    true,
		},
	})
}

func buildConcessionRow(row *engine.Row, _ map[string]string) ([]*engine.Candidate, error) {
	object := row.Str("objeto_concessao")

	typ := domain.ConcessionType(row.Str("tipo"))
	if typ == "" {
		typ = domain.TypeConcession
	}

	return []*engine.Candidate{{
		Kind: engine.KindConcession,
		Key:  concessionKey(object),
		Entity: &concessionRow{
			Concession: domain.Concession{
				ConcessionObject: object,
				Type:             typ,
				CapexTotal:       row.Dec("capex_total"),
				SigningDate:      row.DatePtr("data_assinatura"),
				Description:      row.Str("descricao"),
				CoordE:           row.DecPtr("coord_e"),
				CoordS:           row.DecPtr("coord_s"),
				UTMZone:          row.IntPtr("fuso"),
			},
			Zone: row.Str("zona_portuaria"),
			UF:   row.Str("uf"),
		},
	}}, nil
}

func buildServiceRow(row *engine.Row, _ map[string]string) ([]*engine.Candidate, error) {
	object := row.Str("objeto_concessao")
	name := row.Str("servico")

	return []*engine.Candidate{{
		Kind:      engine.KindService,
		Key:       serviceKey(object, name),
		ParentKey: concessionKey(object),
		Entity: &serviceRow{
			Service: domain.Service{
				Phase:          row.Str("fase"),
				Name:           name,
				Description:    row.Str("descricao_servico"),
				StartLeadYears: row.IntPtr("prazo_inicio_anos"),
				StartDate:      row.DatePtr("data_inicio"),
				EndLeadYears:   row.IntPtr("prazo_final_anos"),
				EndDate:        row.DatePtr("data_final"),
				LeadSource:     row.Str("fonte_prazo"),
				CapexPercent:   row.Dec("percentual_capex"),
				CapexAmount:    row.Dec("capex_servico"),
				PercentSource:  row.Str("fonte_percentual"),
			},
			Object:      object,
			ServiceType: row.Str("tipo_servico"),
			HasAmount:   row.Has("capex_servico"),
		},
	}}, nil
}

func buildTrackingRow(row *engine.Row, _ map[string]string) ([]*engine.Candidate, error) {
	object := row.Str("objeto_concessao")
	name := row.Str("servico")
	responsible := row.Str("responsavel")

	date := row.DatePtr("data_atualizacao")
	key := fmt.Sprintf("tracking|%s|%s|%s|%s",
		engine.NormalizeKey(object), engine.NormalizeKey(name),
		date.Format("2006-01-02"), engine.NormalizeKey(responsible))

	return []*engine.Candidate{{
		Kind:      engine.KindTracking,
		Key:       key,
		ParentKey: serviceKey(object, name),
		Entity: &trackingRow{
			Tracking: domain.TrackingRecord{
				PercentExecuted: row.Dec("percentual_executado"),
				CapexAdjusted:   row.Dec("capex_reajustado"),
				ValueExecuted:   row.Dec("valor_executado"),
				UpdateDate:      date,
				Responsible:     responsible,
				Role:            row.Str("cargo"),
				Department:      row.Str("setor"),
			},
			Object:      object,
			ServiceName: name,
			RiskType:    row.Str("riscos_tipo"),
			RiskDesc:    row.Str("riscos_descricao"),
		},
	}}, nil
}

// Workbook-field to store-column translations for the three tables.
// "risks" is the tracking pseudo-column gating the risk associations.
var concessionCols = map[string]string{
	"capex_total":     "capex_total",
	"data_assinatura": "signing_date",
	"descricao":       "description",
	"coord_e":         "coord_e",
	"coord_s":         "coord_s",
	"fuso":            "utm_zone",
}

var serviceCols = map[string]string{
	"tipo_servico":      "service_type_id",
	"fase":              "phase",
	"descricao_servico": "description",
	"prazo_inicio_anos": "start_lead_years",
	"data_inicio":       "start_date",
	"prazo_final_anos":  "end_lead_years",
	"data_final":        "end_date",
	"fonte_prazo":       "lead_source",
	"percentual_capex":  "capex_percent",
	"capex_servico":     "capex_amount",
	"fonte_percentual":  "percent_source",
}

var trackingCols = map[string]string{
	"percentual_executado": "percent_executed",
	"capex_reajustado":     "capex_adjusted",
	"valor_executado":      "value_executed",
	"cargo":                "role",
	"setor":                "department",
	"riscos_tipo":          "risks",
}

func persistConcession(ctx context.Context, tx engine.Tx, run *engine.RunState, cand *engine.Candidate) (engine.Outcome, error) {
	cr := cand.Entity.(*concessionRow)

	zoneID, err := run.Resolver.Resolve(ctx, tx, domain.LookupPortZone, cr.Zone, cr.UF)
	if err != nil {
		return 0, err
	}
	cr.Concession.PortZoneID = zoneID

	id, created, err := tx.UpsertConcession(ctx, &cr.Concession, colsFor(cand, concessionCols))
	if err != nil {
		return 0, err
	}
	cr.Concession.ID = id
	run.IDs[cand.Key] = id
	run.Concessions[cand.Key] = &cr.Concession
	return engine.OutcomeOf(created), nil
}

// resolveConcession finds a service's parent concession, preferring the
// current batch over the store.
func resolveConcession(ctx context.Context, tx engine.Tx, run *engine.RunState, key, object string) (*domain.Concession, error) {
	if conc, ok := run.Concessions[key]; ok {
		return conc, nil
	}

	conc, err := tx.FindConcession(ctx, engine.NormalizeKey(object))
	if err != nil {
		return nil, err
	}
	if conc == nil {
		return nil, engine.OrphanRowError("concessão " + engine.CleanCell(object))
	}
	run.Concessions[key] = conc
	return conc, nil
}

func persistService(ctx context.Context, tx engine.Tx, run *engine.RunState, cand *engine.Candidate) (engine.Outcome, error) {
	sr := cand.Entity.(*serviceRow)

	conc, err := resolveConcession(ctx, tx, run, cand.ParentKey, sr.Object)
	if err != nil {
		return 0, err
	}
	sr.Service.ConcessionID = conc.ID

	if sr.HasAmount {
		expected := conc.CapexTotal.Mul(sr.Service.CapexPercent).Div(decimal.NewFromInt(100))
		if diff := expected.Sub(sr.Service.CapexAmount).Abs(); diff.GreaterThan(expected.Abs().Mul(run.CapexTolerance)) {
			return 0, &engine.RowError{
				Reason: engine.ReasonCapexMismatch,
				Detail: fmt.Sprintf("expected %s, got %s", expected.StringFixed(2), sr.Service.CapexAmount.StringFixed(2)),
			}
		}
	}

	typeID, err := run.Resolver.Resolve(ctx, tx, domain.LookupServiceType, sr.ServiceType, "")
	if err != nil {
		return 0, err
	}
	sr.Service.ServiceTypeID = typeID

	id, created, err := tx.UpsertService(ctx, &sr.Service, colsFor(cand, serviceCols))
	if err != nil {
		return 0, err
	}
	run.IDs[cand.Key] = id
	return engine.OutcomeOf(created), nil
}

func persistTracking(ctx context.Context, tx engine.Tx, run *engine.RunState, cand *engine.Candidate) (engine.Outcome, error) {
	tr := cand.Entity.(*trackingRow)

	serviceID, ok := run.IDs[cand.ParentKey]
	if !ok {
		conc, err := resolveConcession(ctx, tx, run, concessionKey(tr.Object), tr.Object)
		if err != nil {
			return 0, err
		}
		id, found, err := tx.FindService(ctx, conc.ID, engine.NormalizeKey(tr.ServiceName))
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, engine.OrphanRowError("serviço " + engine.CleanCell(tr.ServiceName))
		}
		serviceID = id
		run.IDs[cand.ParentKey] = id
	}
	tr.Tracking.ServiceID = serviceID

	if tr.RiskType != "" {
		riskTypeID, err := run.Resolver.Resolve(ctx, tx, domain.LookupRiskType, tr.RiskType, "")
		if err != nil {
			return 0, err
		}
		tr.Tracking.Risks = []domain.Risk{{RiskTypeID: riskTypeID, Description: tr.RiskDesc}}
	}

	id, created, err := tx.UpsertTracking(ctx, &tr.Tracking, colsFor(cand, trackingCols))
	if err != nil {
		return 0, err
	}
	run.IDs[cand.Key] = id
	return engine.OutcomeOf(created), nil
}
