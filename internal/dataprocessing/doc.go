// Package dataprocessing holds the extract and transform halves of the
// pipeline: the in-memory Table, the file extractor and the dataset
// cleaning rules.
//
// # Tables
//
// A Table is a list of named columns plus string rows. Cells are kept as
// text; transforms parse numbers and dates where they need them, and an
// empty cell is treated as a missing value. Looking up a column the table
// does not have yields a *MissingColumnError, matched by
// errors.Is(err, ErrMissingColumn).
//
// # Extraction
//
//	table, err := dataprocessing.NewFileExtractor().Extract(ctx, "data/raw/internet_fijo.csv")
//
// CSV files must be UTF-8 with a header row. XLSX workbooks are read from
// their first sheet.
//
// # Transforms
//
// A Transform is a labelled pure function from table to table. The dataset
// rules are built with NewTransform, which hands the function a private
// copy of its input:
//
//	steps := []dataprocessing.Transform{
//	    dataprocessing.InternetFijo(),
//	    dataprocessing.FilterByYearRange(2015, 2022),
//	}
package dataprocessing
