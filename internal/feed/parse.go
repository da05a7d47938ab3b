package feed

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// streamCSV reads delimited rows and sends them to a channel. Both channels
// close when parsing completes; the caller must drain the row channel.
func streamCSV(ctx context.Context, r io.Reader, profile Profile) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		reader.Comma = profile.delimiter()
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1 // supplier files have ragged rows

		skipped := 0
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "feed: csv cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "feed: read csv row")
				return
			}

			if skipped < profile.SkipRows {
				skipped++
				continue
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "feed: csv cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// readXLSX loads all rows of one sheet from an XLSX file on disk. Remote
// files are spooled to a temp file first; the format has no streaming read.
func readXLSX(path string, profile Profile) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "feed: open xlsx")
	}

	var sheet *xlsx.Sheet
	if profile.Sheet != "" {
		s, ok := f.Sheet[profile.Sheet]
		if !ok {
			return nil, eris.Errorf("feed: sheet %q not found", profile.Sheet)
		}
		sheet = s
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.New("feed: xlsx has no sheets")
		}
		sheet = f.Sheets[0]
	}

	var rows [][]string
	for i, row := range sheet.Rows {
		if i < profile.SkipRows {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = c.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
