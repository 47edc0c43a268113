package dataprocessing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Transform labels, as they appear in dataset logs
const (
	TransformCoberturaMovil     = "transform_cobertura_movil"
	TransformInternetFijo       = "transform_internet_fijo"
	TransformRevistasIndexadas  = "transform_revistas_indexadas"
	TransformGrupoInvestigacion = "transform_grupo_investigacion"
	TransformFilterByYearRange  = "filter_by_year_range"
)

// Shared output columns
const (
	ColumnKey         = "Llave"
	ColumnYear        = "AÑO"
	ColumnYearQuarter = "AÑO_TRIMESTRE"
	ColumnQuarter     = "TRIMESTRE"
)

// DefaultMunicipalityCode fills mobile coverage rows without a municipality
const DefaultMunicipalityCode = "50325"

// BelenDeBajiraCode is assigned to "belen de bajira" in the fixed internet data
const BelenDeBajiraCode = "27086"

var revistasDroppedColumns = []string{
	"TXT_ISSN_P", "TXT_ISSN_E", "TXT_ISSN_L", "REG_REV_IN",
	"ID_INST_EDIT_1", "ID_INST_EDIT_2", "NME_INST_EDIT_2", "ID_REVISTA_P",
	"ID_INST_EDIT_3", "NME_INST_EDIT_3",
	"TIPO_INS_N4_E1",
	"TIPO_INS_N1_E2", "TIPO_INS_N2_E2", "TIPO_INS_N3_E2", "TIPO_INS_N4_E2",
	"TIPO_INS_N1_E3", "TIPO_INS_N2_E3", "TIPO_INS_N3_E3", "TIPO_INS_N4_E3",
}

var gruposDroppedColumns = []string{
	"ID_CONVOCATORIA", "NME_CONVOCATORIA", "NME_GRUPO_GR", "NME_REGION_GR", "NME_PAIS_GR",
}

// CoberturaMovil cleans the mobile coverage dataset
func CoberturaMovil() Transform {
	return NewTransform(TransformCoberturaMovil, func(t *Table) error {
		err := t.MapColumn("COD MUNICIPIO", func(v string) (string, error) {
			if strings.TrimSpace(v) == "" {
				return DefaultMunicipalityCode, nil
			}
			return v, nil
		})
		if err != nil {
			return err
		}
		if err := t.DropColumns("CABECERA MUNICIPAL", "COD CENTRO POBLADO", "CENTRO POBLADO"); err != nil {
			return err
		}
		if err := castIntColumns(t, "COD DEPARTAMENTO", "COD MUNICIPIO"); err != nil {
			return err
		}
		if err := setKey(t, "COD DEPARTAMENTO", "COD MUNICIPIO"); err != nil {
			return err
		}
		return setYearQuarter(t, ColumnYear, ColumnQuarter)
	})
}

// InternetFijo cleans the fixed internet dataset
func InternetFijo() Transform {
	return NewTransform(TransformInternetFijo, func(t *Table) error {
		for _, c := range []string{"MUNICIPIO", "DEPARTAMENTO"} {
			err := t.MapColumn(c, func(v string) (string, error) { return NormalizeName(v), nil })
			if err != nil {
				return err
			}
		}

		// national aggregate rows
		err := t.FilterRows(func(row Row) (bool, error) {
			dep, err := row.Get("DEPARTAMENTO")
			return dep != "colombia", err
		})
		if err != nil {
			return err
		}

		mun, err := t.Index("MUNICIPIO")
		if err != nil {
			return err
		}
		code, err := t.Index("COD_MUNICIPIO")
		if err != nil {
			return err
		}
		for _, r := range t.Rows {
			if r[mun] == "belen de bajira" {
				r[code] = BelenDeBajiraCode
			}
		}

		if err := castIntColumns(t, "COD_DEPARTAMENTO", "COD_MUNICIPIO"); err != nil {
			return err
		}
		if err := setKey(t, "COD_DEPARTAMENTO", "COD_MUNICIPIO"); err != nil {
			return err
		}
		return setYearQuarter(t, ColumnYear, ColumnQuarter)
	})
}

// RevistasIndexadas cleans the indexed journals dataset
func RevistasIndexadas() Transform {
	return NewTransform(TransformRevistasIndexadas, func(t *Table) error {
		if err := t.DropColumns(revistasDroppedColumns...); err != nil {
			return err
		}

		if err := t.Require("NRO_ANO"); err != nil {
			return err
		}
		err := t.SetColumn(ColumnYear, func(_ int, row Row) (string, error) {
			v, err := row.Get("NRO_ANO")
			if err != nil {
				return "", err
			}
			return CastInt(v)
		})
		if err != nil {
			return err
		}

		if err := dropEmpty(t, "COD_DANE_REV_IN"); err != nil {
			return err
		}
		return setDaneCodes(t, "COD_DANE_REV_IN", true)
	})
}

// GrupoInvestigacion cleans the research groups dataset
func GrupoInvestigacion() Transform {
	return NewTransform(TransformGrupoInvestigacion, func(t *Table) error {
		t.DropDuplicates()
		if err := t.DropColumns(gruposDroppedColumns...); err != nil {
			return err
		}
		if err := dropEmpty(t, "COD_DANE_GR"); err != nil {
			return err
		}

		created := make([]time.Time, t.Len())
		idx, err := t.Index("FCREACION_GR")
		if err != nil {
			return err
		}
		for i, r := range t.Rows {
			if strings.TrimSpace(r[idx]) == "" {
				continue
			}
			ts, err := ParseDate(r[idx])
			if err != nil {
				return fmt.Errorf("column %q row %d: %w", "FCREACION_GR", i+1, err)
			}
			created[i] = ts
			r[idx] = FormatDate(ts)
		}

		if err := setDaneCodes(t, "COD_DANE_GR", false); err != nil {
			return err
		}

		err = t.SetColumn(ColumnYear, func(i int, _ Row) (string, error) {
			if created[i].IsZero() {
				return "", nil
			}
			return strconv.Itoa(created[i].Year()), nil
		})
		if err != nil {
			return err
		}

		return t.SetColumn(ColumnYearQuarter, func(i int, _ Row) (string, error) {
			if created[i].IsZero() {
				return "", nil
			}
			quarter := (int(created[i].Month())-1)/3 + 1
			return fmt.Sprintf("%d_%d", created[i].Year(), quarter), nil
		})
	})
}

// FilterByYearRange keeps rows whose AÑO lies in [minYear, maxYear].
// Rows with an empty year are dropped; a non-numeric year is an error.
func FilterByYearRange(minYear, maxYear int) Transform {
	return NewTransform(TransformFilterByYearRange, func(t *Table) error {
		idx, err := t.Index(ColumnYear)
		if err != nil {
			return err
		}
		return t.FilterRows(func(row Row) (bool, error) {
			v := row.cells[idx]
			if strings.TrimSpace(v) == "" {
				return false, nil
			}
			year, err := ParseInt(v)
			if err != nil {
				return false, fmt.Errorf("column %q: %w", ColumnYear, err)
			}
			return year >= int64(minYear) && year <= int64(maxYear), nil
		})
	})
}

func castIntColumns(t *Table, columns ...string) error {
	for _, c := range columns {
		if err := t.MapColumn(c, CastInt); err != nil {
			return err
		}
	}
	return nil
}

// setKey builds Llave as "<dep>_<mun>", both zero padded to four digits
func setKey(t *Table, depColumn, munColumn string) error {
	if err := t.Require(depColumn, munColumn); err != nil {
		return err
	}
	return t.SetColumn(ColumnKey, func(_ int, row Row) (string, error) {
		dep, err := row.Get(depColumn)
		if err != nil {
			return "", err
		}
		mun, err := row.Get(munColumn)
		if err != nil {
			return "", err
		}
		return ZeroPad(dep, 4) + "_" + ZeroPad(mun, 4), nil
	})
}

func setYearQuarter(t *Table, yearColumn, quarterColumn string) error {
	if err := t.Require(yearColumn, quarterColumn); err != nil {
		return err
	}
	return t.SetColumn(ColumnYearQuarter, func(_ int, row Row) (string, error) {
		year, err := row.Get(yearColumn)
		if err != nil {
			return "", err
		}
		quarter, err := row.Get(quarterColumn)
		if err != nil {
			return "", err
		}
		return canonical(year) + "_" + canonical(quarter), nil
	})
}

// setDaneCodes derives COD_MUNICIPIO, COD_DEPARTAMENTO and Llave from a DANE
// municipality code. The department is the code without its last three
// digits. With strict set, a non-integer code is an error; otherwise the
// trimmed text is used as is.
func setDaneCodes(t *Table, codeColumn string, strict bool) error {
	codes := make([]string, t.Len())
	idx, err := t.Index(codeColumn)
	if err != nil {
		return err
	}
	for i, r := range t.Rows {
		c, err := CastInt(r[idx])
		if err != nil {
			if strict {
				return fmt.Errorf("column %q row %d: %w", codeColumn, i+1, err)
			}
			c = strings.TrimSpace(r[idx])
		}
		codes[i] = c
	}

	err = t.SetColumn("COD_MUNICIPIO", func(i int, _ Row) (string, error) {
		return ZeroPad(codes[i], 4), nil
	})
	if err != nil {
		return err
	}

	err = t.SetColumn("COD_DEPARTAMENTO", func(i int, _ Row) (string, error) {
		c := codes[i]
		if len(c) > 3 {
			c = c[:len(c)-3]
		} else {
			c = ""
		}
		return ZeroPad(c, 4), nil
	})
	if err != nil {
		return err
	}

	return t.SetColumn(ColumnKey, func(_ int, row Row) (string, error) {
		dep, _ := row.Get("COD_DEPARTAMENTO")
		mun, _ := row.Get("COD_MUNICIPIO")
		return dep + "_" + mun, nil
	})
}

func dropEmpty(t *Table, column string) error {
	idx, err := t.Index(column)
	if err != nil {
		return err
	}
	return t.FilterRows(func(row Row) (bool, error) {
		return strings.TrimSpace(row.cells[idx]) != "", nil
	})
}

// canonical rewrites whole numbers without a decimal part and trims the rest
func canonical(v string) string {
	if n, err := ParseInt(v); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return strings.TrimSpace(v)
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
	"2006/01/02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04",
}

// ParseDate parses the date formats found in the research group exports
func ParseDate(value string) (time.Time, error) {
	s := strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", value)
}

// FormatDate writes midnight timestamps as plain dates
func FormatDate(ts time.Time) string {
	if ts.Hour() == 0 && ts.Minute() == 0 && ts.Second() == 0 && ts.Nanosecond() == 0 {
		return ts.Format("2006-01-02")
	}
	return ts.Format("2006-01-02 15:04:05")
}
