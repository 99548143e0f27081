package api

import (
	"net/http"
)

type schemaColumn struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

type schemaTable struct {
	Name     string         `json:"name"`
	RowCount int64          `json:"row_count"`
	Columns  []schemaColumn `json:"columns"`
}

type schemaResponse struct {
	Tables []schemaTable `json:"tables"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Warehouse == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "warehouse dependencies are not configured", false, nil)
		return
	}

	names, err := deps.Warehouse.ListTables(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "WAREHOUSE_ERROR", "failed to list tables", true, map[string]any{"details": err.Error()})
		return
	}

	tables := make([]schemaTable, 0, len(names))
	for _, name := range names {
		metadata, err := deps.Warehouse.TableMetadata(r.Context(), name)
		if err != nil {
			writeError(r.Context(), w, http.StatusInternalServerError, "WAREHOUSE_ERROR", "failed to describe table", true, map[string]any{"table": name, "details": err.Error()})
			return
		}
		columns := make([]schemaColumn, 0, len(metadata.Columns))
		for _, column := range metadata.Columns {
			columns = append(columns, schemaColumn{
				Name:       column.Name,
				DataType:   column.DataType,
				Nullable:   column.Nullable,
				PrimaryKey: column.PrimaryKey,
			})
		}
		tables = append(tables, schemaTable{Name: name, RowCount: metadata.RowCount, Columns: columns})
	}

	writeJSON(w, http.StatusOK, schemaResponse{Tables: tables})
}
