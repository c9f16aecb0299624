// Package csvio convierte texto delimitado por comas en filas de importación y
// escribe los reportes exportados como CSV.
package csvio

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
	"iter"
	"strings"

	"github.com/NESTREN/aio-warehouse-bot/internal/application/importer"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain"
)

const bom = "\ufeff"

// ReadRows separa cada línea no vacía en campos (coma, espacios iniciales ignorados).
// Cada línea se interpreta por separado: una comilla sin cerrar no arrastra a la siguiente.
func ReadRows(r io.Reader) ([]importer.Row, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var rows []importer.Row
	n := 0
	for sc.Scan() {
		n++
		line := sc.Text()
		if n == 1 {
			line = strings.TrimPrefix(line, bom)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rec, err := splitLine(line)
		if err != nil {
			return nil, domain.Validationf("line %d: %v", n, err)
		}
		rows = append(rows, importer.Row(rec))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// ParseText igual que ReadRows sobre un texto ya recibido (mensaje del chat, cuerpo HTTP).
func ParseText(text string) ([]importer.Row, error) {
	return ReadRows(strings.NewReader(text))
}

func splitLine(line string) ([]string, error) {
	cr := csv.NewReader(strings.NewReader(line))
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	rec, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	return rec, err
}

// WriteOptions opciones de escritura.
type WriteOptions struct {
	// BOM antepone la marca UTF-8 para que las hojas de cálculo detecten la codificación.
	BOM bool
}

// Write escribe la cabecera y luego cada registro.
func Write(w io.Writer, header []string, records iter.Seq[[]string], opts WriteOptions) error {
	if opts.BOM {
		if _, err := io.WriteString(w, bom); err != nil {
			return err
		}
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for rec := range records {
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Records adapta una lista de filas con Record() a la secuencia que espera Write.
func Records[T interface{ Record() []string }](rows []T) iter.Seq[[]string] {
	return func(yield func([]string) bool) {
		for _, r := range rows {
			if !yield(r.Record()) {
				return
			}
		}
	}
}
