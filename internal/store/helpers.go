package store

import (
	"database/sql"
	"fmt"

	"github.com/luisrosales852/rodirogRengifoAgente/internal/models"
)

func emptyHistory() models.ConversationHistory {
	return models.ConversationHistory{
		Auth: models.AuthState{State: models.AuthStateUnauthenticated},
	}
}

// scanClientes scans client rows of the shape (id, nombre, contrasena).
func scanClientes(rows *sql.Rows) ([]models.Cliente, error) {
	var clientes []models.Cliente
	for rows.Next() {
		var c models.Cliente
		if err := rows.Scan(&c.ID, &c.Nombre, &c.Contrasena); err != nil {
			return nil, fmt.Errorf("scan cliente failed: %w", err)
		}
		clientes = append(clientes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cliente rows failed: %w", err)
	}
	return clientes, nil
}

// scanPolizas scans policy rows with nullable detail columns.
func scanPolizas(rows *sql.Rows) ([]models.Poliza, error) {
	var polizas []models.Poliza
	for rows.Next() {
		var p models.Poliza
		var inicio, fin, tipo, descripcion, estado sql.NullString
		var suma, primaAnual, primaNeta sql.NullFloat64
		err := rows.Scan(&p.Numero, &inicio, &fin, &tipo, &suma, &primaAnual, &primaNeta, &descripcion, &estado)
		if err != nil {
			return nil, fmt.Errorf("scan poliza failed: %w", err)
		}
		p.VigenciaInicio = stringPtr(inicio)
		p.VigenciaFin = stringPtr(fin)
		p.TipoSeguro = stringPtr(tipo)
		p.SumaAsegurada = floatPtr(suma)
		p.PrimaAnual = floatPtr(primaAnual)
		p.PrimaNeta = floatPtr(primaNeta)
		p.Descripcion = stringPtr(descripcion)
		p.Estado = stringPtr(estado)
		polizas = append(polizas, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate poliza rows failed: %w", err)
	}
	return polizas, nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}
