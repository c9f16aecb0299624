package csvio_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NESTREN/aio-warehouse-bot/internal/application/importer"
	"github.com/NESTREN/aio-warehouse-bot/internal/application/report"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain"
	"github.com/NESTREN/aio-warehouse-bot/internal/interfaces/csvio"
)

// ── Lectura ──────────────────────────────────────────────────────────────────

func TestParseText_LineasYCampos(t *testing.T) {
	text := "\ufeffA-001, Cable, 10, m\n\n   \nA-002,Adapter,5\n\"A-003\", \"Caja, grande\",1\n"

	rows, err := csvio.ParseText(text)
	require.NoError(t, err)
	require.Len(t, rows, 3, "las líneas vacías se ignoran")
	assert.Equal(t, importer.Row{"A-001", "Cable", "10", "m"}, rows[0])
	assert.Equal(t, importer.Row{"A-002", "Adapter", "5"}, rows[1])
	assert.Equal(t, importer.Row{"A-003", "Caja, grande", "1"}, rows[2])
}

func TestParseText_SoloCodigo(t *testing.T) {
	rows, err := csvio.ParseText("bad-row-missing-name")
	require.NoError(t, err)
	assert.Equal(t, []importer.Row{{"bad-row-missing-name"}}, rows)
}

func TestParseText_Vacio(t *testing.T) {
	rows, err := csvio.ParseText("\n \n")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestParseText_ErrorIndicaLinea(t *testing.T) {
	_, err := csvio.ParseText("A-1,ok,1\nA-2,ro\"to,1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "line 2")
}

// ── Escritura (golden) ───────────────────────────────────────────────────────

func TestWrite_StockGolden(t *testing.T) {
	rows := []report.StockRow{
		{Code: "A-1", Name: "Adapter", Quantity: 2, Unit: "pcs", Warehouse: "Main"},
		{Code: "C-3", Name: "Cable, 2m", Quantity: 12, Unit: "m", Location: "R1", Warehouse: "Main", MinQty: 5},
	}
	var buf bytes.Buffer
	require.NoError(t, csvio.Write(&buf, report.StockHeader, csvio.Records(rows), csvio.WriteOptions{}))

	g := goldie.New(t)
	g.Assert(t, "stock", buf.Bytes())
}

func TestWrite_MovementsGolden(t *testing.T) {
	t0 := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	rows := []report.MovementRow{
		{Timestamp: t0.Add(time.Minute), Code: "A-1", Kind: "delta", Delta: 5, ResultingQty: 5, Actor: "ana", Reason: `compra "urgente"`},
		{Timestamp: t0.Add(3 * time.Minute), Code: "A-1", Kind: "set", Delta: -3, ResultingQty: 2, Actor: "bulk-import", Reason: "bulk import"},
	}
	var buf bytes.Buffer
	require.NoError(t, csvio.Write(&buf, report.MovementHeader, csvio.Records(rows), csvio.WriteOptions{}))

	g := goldie.New(t)
	g.Assert(t, "movements", buf.Bytes())
}

func TestWrite_BOM(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, csvio.Write(&buf, []string{"a"}, csvio.Records([]report.StockRow{}), csvio.WriteOptions{BOM: true}))
	assert.Equal(t, "\ufeffa\n", buf.String())
}
