package dto

import "github.com/NESTREN/aio-warehouse-bot/internal/application/importer"

// ImportRowResponse resultado de una línea del lote.
type ImportRowResponse struct {
	Line    int    `json:"line"`
	Code    string `json:"code"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

// ImportResponse resumen del lote. Error solo aparece si el lote se cortó.
type ImportResponse struct {
	Created  int                 `json:"created"`
	Updated  int                 `json:"updated"`
	Rejected int                 `json:"rejected"`
	Rows     []ImportRowResponse `json:"rows"`
	Error    string              `json:"error,omitempty"`
}

// ImportFromReport mapea el reporte del importador.
func ImportFromReport(r *importer.Report) ImportResponse {
	out := ImportResponse{
		Created:  r.Created,
		Updated:  r.Updated,
		Rejected: r.Rejected,
		Rows:     make([]ImportRowResponse, 0, len(r.Rows)),
	}
	for _, row := range r.Rows {
		out.Rows = append(out.Rows, ImportRowResponse{
			Line:    row.Line,
			Code:    row.Code,
			Outcome: string(row.Outcome),
			Reason:  row.Reason,
		})
	}
	return out
}
