package engine

import (
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"
)

var yearProfile = &Profile{
	Key:    "metas-test",
	Layout: LayoutYearSheets,
	Tables: []TableSpec{
		{
			Kind: "processos",
			Fields: []FieldSpec{
				{Name: "numero_processo", Type: FieldText, Required: true,
					Aliases: []string{"nº processo"}},
				{Name: "licenca", Type: FieldText, Aliases: []string{"licença"}},
			},
		},
	},
}

var namedProfile = &Profile{
	Key:    "contratos-test",
	Layout: LayoutNamedTables,
	Tables: []TableSpec{
		{
			Kind:         "cadastro",
			SheetAliases: []string{"cadastro"},
			Fields: []FieldSpec{
				{Name: "zona_portuaria", Type: FieldText, Required: true,
					Aliases: []string{"zona portuária"}},
				{Name: "objeto_concessao", Type: FieldText, Required: true,
					Aliases: []string{"obj. de concessão"}},
				{Name: "capex_total", Type: FieldDecimal, Required: true,
					Aliases: []string{"capex total"}},
			},
		},
		{
			Kind:         "servicos",
			SheetAliases: []string{"serviços", "servicos"},
			Fields: []FieldSpec{
				{Name: "objeto_concessao", Type: FieldText, Required: true,
					Aliases: []string{"obj. de concessão"}},
				{Name: "servico", Type: FieldText, Required: true,
					Aliases: []string{"serviço"}},
				{Name: "percentual_capex", Type: FieldPercent, Required: true,
					Aliases: []string{"% de capex para o serviço"}},
			},
		},
	},
}

// buildWorkbook writes sheets of raw rows into xlsx bytes.
func buildWorkbook(t *testing.T, sheets map[string][][]any, order []string) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, name := range order {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				t.Fatal(err)
			}
		} else {
			if _, err := f.NewSheet(name); err != nil {
				t.Fatal(err)
			}
		}
		for r, row := range sheets[name] {
			cell, _ := excelize.CoordinatesToCellName(1, r+1)
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				t.Fatal(err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// ----------------------------------------------------------------------------
// Year-sheet layout
// ----------------------------------------------------------------------------

func TestReadWorkbook_YearSheets(t *testing.T) {
	data := buildWorkbook(t, map[string][][]any{
		"Metas 2023": {
			{"Nº Processo", "Licença"},
			{"50300.001/2023", "LO-123"},
		},
		"Metas 2024": {
			{"Acompanhamento das metas"}, // title banner above the header
			{"Nº Processo", "Licença"},
			{"50300.002/2024", "LP-456"},
			{"50300.003/2024", ""},
		},
		"Resumo": {
			{"não é uma tabela"},
		},
	}, []string{"Metas 2023", "Metas 2024", "Resumo"})

	blocks, err := ReadWorkbook(data, yearProfile)
	if err != nil {
		t.Fatalf("ReadWorkbook() error = %v", err)
	}

	if len(blocks) != 2 {
		t.Fatalf("len(blocks) = %d, want 2 (Resumo has no year)", len(blocks))
	}

	if blocks[0].Context["year"] != "2023" {
		t.Errorf("blocks[0] year = %q, want 2023", blocks[0].Context["year"])
	}
	if len(blocks[0].Rows) != 1 {
		t.Errorf("blocks[0] rows = %d, want 1", len(blocks[0].Rows))
	}

	if blocks[1].Context["year"] != "2024" {
		t.Errorf("blocks[1] year = %q, want 2024", blocks[1].Context["year"])
	}
	if blocks[1].HeaderRow != 2 {
		t.Errorf("blocks[1] header row = %d, want 2 (below the banner)", blocks[1].HeaderRow)
	}
	if len(blocks[1].Rows) != 2 {
		t.Errorf("blocks[1] rows = %d, want 2", len(blocks[1].Rows))
	}
}

func TestReadWorkbook_NoYearSheet(t *testing.T) {
	data := buildWorkbook(t, map[string][][]any{
		"Resumo": {{"Nº Processo"}, {"x"}},
	}, []string{"Resumo"})

	_, err := ReadWorkbook(data, yearProfile)
	var layoutErr *UnexpectedLayoutError
	if !errors.As(err, &layoutErr) {
		t.Fatalf("error = %v, want *UnexpectedLayoutError", err)
	}
}

func TestReadWorkbook_YearSheetMissingColumn(t *testing.T) {
	// A sheet that is clearly the expected table but lacks a required
	// column must say which column is missing, not that no header exists.
	data := buildWorkbook(t, map[string][][]any{
		"Metas 2024": {
			{"Licença", "Situação Geral"},
			{"LO-123", "Em execução"},
		},
	}, []string{"Metas 2024"})

	_, err := ReadWorkbook(data, yearProfile)
	var missing *MissingColumnError
	if !errors.As(err, &missing) {
		t.Fatalf("error = %v, want *MissingColumnError", err)
	}
	if len(missing.Columns) != 1 || missing.Columns[0] != "numero_processo" {
		t.Errorf("missing columns = %v, want [numero_processo]", missing.Columns)
	}
	if missing.Sheet != "Metas 2024" {
		t.Errorf("sheet = %q, want Metas 2024", missing.Sheet)
	}
}

func TestReadWorkbook_YearSheetWithoutHeader(t *testing.T) {
	data := buildWorkbook(t, map[string][][]any{
		"Metas 2024": {{"só texto"}, {"mais texto"}},
	}, []string{"Metas 2024"})

	_, err := ReadWorkbook(data, yearProfile)
	var layoutErr *UnexpectedLayoutError
	if !errors.As(err, &layoutErr) {
		t.Fatalf("error = %v, want *UnexpectedLayoutError", err)
	}
}

// ----------------------------------------------------------------------------
// Named-table layout
// ----------------------------------------------------------------------------

func TestReadWorkbook_NamedSheets(t *testing.T) {
	data := buildWorkbook(t, map[string][][]any{
		"Tabela 01 - Cadastro": {
			{"Zona Portuária", "Obj. de Concessão", "CAPEX Total"},
			{"Porto de Santos", "TECON 10", "1.000.000,00"},
		},
		"Tabela 02 - Serviços": {
			{"Obj. de Concessão", "Serviço", "% de CAPEX para o Serviço"},
			{"TECON 10", "Dragagem", "40"},
		},
	}, []string{"Tabela 01 - Cadastro", "Tabela 02 - Serviços"})

	blocks, err := ReadWorkbook(data, namedProfile)
	if err != nil {
		t.Fatalf("ReadWorkbook() error = %v", err)
	}

	if len(blocks) != 2 {
		t.Fatalf("len(blocks) = %d, want 2", len(blocks))
	}
	if blocks[0].Table != "cadastro" || blocks[1].Table != "servicos" {
		t.Errorf("tables = %s, %s; want cadastro, servicos", blocks[0].Table, blocks[1].Table)
	}
}

func TestReadWorkbook_StackedRegions(t *testing.T) {
	data := buildWorkbook(t, map[string][][]any{
		"Planilha Geral": {
			{"Cadastro de Concessões"}, // banner
			{"Zona Portuária", "Obj. de Concessão", "CAPEX Total"},
			{"Porto de Santos", "TECON 10", "1.000.000,00"},
			{},
			{},
			{"Obj. de Concessão", "Serviço", "% de CAPEX para o Serviço"},
			{"TECON 10", "Dragagem", "40"},
			{"TECON 10", "Berço 3", "60"},
		},
	}, []string{"Planilha Geral"})

	blocks, err := ReadWorkbook(data, namedProfile)
	if err != nil {
		t.Fatalf("ReadWorkbook() error = %v", err)
	}

	if len(blocks) != 2 {
		t.Fatalf("len(blocks) = %d, want 2", len(blocks))
	}
	if blocks[0].Table != "cadastro" {
		t.Errorf("blocks[0].Table = %s, want cadastro", blocks[0].Table)
	}
	if blocks[1].Table != "servicos" {
		t.Errorf("blocks[1].Table = %s, want servicos", blocks[1].Table)
	}
	if len(blocks[1].Rows) != 2 {
		t.Errorf("servicos rows = %d, want 2", len(blocks[1].Rows))
	}
	if blocks[1].HeaderRow != 6 {
		t.Errorf("servicos header row = %d, want 6", blocks[1].HeaderRow)
	}
}

func TestReadWorkbook_MissingTable(t *testing.T) {
	data := buildWorkbook(t, map[string][][]any{
		"Tabela 01 - Cadastro": {
			{"Zona Portuária", "Obj. de Concessão", "CAPEX Total"},
			{"Porto de Santos", "TECON 10", "1.000.000,00"},
		},
	}, []string{"Tabela 01 - Cadastro"})

	_, err := ReadWorkbook(data, namedProfile)
	var layoutErr *UnexpectedLayoutError
	if !errors.As(err, &layoutErr) {
		t.Fatalf("error = %v, want *UnexpectedLayoutError", err)
	}
}

func TestReadWorkbook_WrongTableOrder(t *testing.T) {
	data := buildWorkbook(t, map[string][][]any{
		"Tabela 01 - Serviços": {
			{"Obj. de Concessão", "Serviço", "% de CAPEX para o Serviço"},
			{"TECON 10", "Dragagem", "40"},
		},
		"Tabela 02 - Cadastro": {
			{"Zona Portuária", "Obj. de Concessão", "CAPEX Total"},
			{"Porto de Santos", "TECON 10", "1.000.000,00"},
		},
	}, []string{"Tabela 01 - Serviços", "Tabela 02 - Cadastro"})

	_, err := ReadWorkbook(data, namedProfile)
	var layoutErr *UnexpectedLayoutError
	if !errors.As(err, &layoutErr) {
		t.Fatalf("error = %v, want *UnexpectedLayoutError", err)
	}
}

func TestReadWorkbook_UnrecognizedSheetSkipped(t *testing.T) {
	// Workbooks ship with summary and notes tabs; those are skipped, the
	// expected tables still load.
	data := buildWorkbook(t, map[string][][]any{
		"Resumo Executivo": {
			{"Coluna A", "Coluna B", "Coluna C"},
			{"1", "2", "3"},
		},
		"Tabela 01 - Cadastro": {
			{"Zona Portuária", "Obj. de Concessão", "CAPEX Total"},
			{"Porto de Santos", "TECON 10", "1.000.000,00"},
		},
		"Tabela 02 - Serviços": {
			{"Obj. de Concessão", "Serviço", "% de CAPEX para o Serviço"},
			{"TECON 10", "Dragagem", "40"},
		},
	}, []string{"Resumo Executivo", "Tabela 01 - Cadastro", "Tabela 02 - Serviços"})

	blocks, err := ReadWorkbook(data, namedProfile)
	if err != nil {
		t.Fatalf("ReadWorkbook() error = %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("len(blocks) = %d, want 2 (Resumo Executivo must be skipped)", len(blocks))
	}
}

func TestReadWorkbook_OnlyUnrecognizedContent(t *testing.T) {
	data := buildWorkbook(t, map[string][][]any{
		"Planilha Geral": {
			{"Coluna A", "Coluna B", "Coluna C"},
			{"1", "2", "3"},
			{"4", "5", "6"},
		},
	}, []string{"Planilha Geral"})

	_, err := ReadWorkbook(data, namedProfile)
	var layoutErr *UnexpectedLayoutError
	if !errors.As(err, &layoutErr) {
		t.Fatalf("error = %v, want *UnexpectedLayoutError", err)
	}
}

// ----------------------------------------------------------------------------
// Malformed payloads
// ----------------------------------------------------------------------------

func TestReadWorkbook_MalformedBytes(t *testing.T) {
	_, err := ReadWorkbook([]byte("definitely not a zip archive"), yearProfile)
	var malformed *MalformedWorkbookError
	if !errors.As(err, &malformed) {
		t.Fatalf("error = %v, want *MalformedWorkbookError", err)
	}
}
