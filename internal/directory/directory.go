// Package directory provides read-only client and policy queries for the
// reasoning engine's tool layer.
//
// Lookups are structured (typed records from the store) with prose rendering
// as a separate step, so matching logic stays testable independent of prompt
// wording. The rendered Spanish prose is what crosses the engine boundary.
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/luisrosales852/rodirogRengifoAgente/internal/models"
	"github.com/luisrosales852/rodirogRengifoAgente/internal/store"
)

// DefaultCredential is the shared access token for clients that have no
// credential of their own.
const DefaultCredential = "1234"

// Directory answers client and policy queries against the store.
type Directory struct {
	store   store.Store
	printer *message.Printer
}

// NewDirectory creates a Directory over the given store.
func NewDirectory(s store.Store) *Directory {
	return &Directory{
		store:   s,
		printer: message.NewPrinter(language.Spanish),
	}
}

// Clients returns every client record.
func (d *Directory) Clients(ctx context.Context) ([]models.Cliente, error) {
	return d.store.ListClientes(ctx)
}

// FindByName returns the clients whose name contains the query,
// case-insensitively.
func (d *Directory) FindByName(ctx context.Context, nameQuery string) ([]models.Cliente, error) {
	return d.store.FindClientesByName(ctx, nameQuery)
}

// CredentialByName resolves the effective credential for the first client
// matching the query. found reports whether any client matched; hasOwn
// reports whether that client has a stored credential (when false the
// returned credential is the shared default token).
func (d *Directory) CredentialByName(ctx context.Context, nameQuery string) (credential string, cliente models.Cliente, found, hasOwn bool, err error) {
	matches, err := d.store.FindClientesByName(ctx, nameQuery)
	if err != nil {
		return "", models.Cliente{}, false, false, err
	}
	if len(matches) == 0 {
		return "", models.Cliente{}, false, false, nil
	}
	cliente = matches[0]
	if cliente.Contrasena == "" {
		return DefaultCredential, cliente, true, false, nil
	}
	return cliente.Contrasena, cliente, true, true, nil
}

// ListClients renders the full client list as prose for the engine context.
// Data-access failures come back as a readable error sentence, never as an
// error value.
func (d *Directory) ListClients(ctx context.Context) string {
	clientes, err := d.Clients(ctx)
	if err != nil {
		slog.Error("Directory.ListClients: store query failed", "error", err)
		return dataErrorSentence(err)
	}
	if len(clientes) == 0 {
		return "No hay clientes registrados en la base de datos."
	}

	var b strings.Builder
	b.WriteString("LISTA DE CLIENTES:\n")
	b.WriteString(strings.Repeat("-", 40) + "\n")
	for _, c := range clientes {
		fmt.Fprintf(&b, "  • %s (ID: %d)\n", c.Nombre, c.ID)
	}
	fmt.Fprintf(&b, "\nTotal: %d clientes", len(clientes))
	return b.String()
}

// FindPolicies renders every policy of every client matching the name query.
func (d *Directory) FindPolicies(ctx context.Context, nameQuery string) string {
	matches, err := d.FindByName(ctx, nameQuery)
	if err != nil {
		slog.Error("Directory.FindPolicies: store query failed", "error", err, "query", nameQuery)
		return dataErrorSentence(err)
	}
	if len(matches) == 0 {
		return notFoundSentence(nameQuery)
	}

	var b strings.Builder
	for _, cliente := range matches {
		polizas, err := d.store.PolizasForCliente(ctx, cliente.ID)
		if err != nil {
			slog.Error("Directory.FindPolicies: policy query failed", "error", err, "clienteID", cliente.ID)
			return dataErrorSentence(err)
		}
		d.renderClientSection(&b, cliente, polizas)
	}
	return b.String()
}

// FindCredential renders the effective credential for the first matching
// client. A client with no credential of their own yields a distinct
// sentence naming the default token, so the two outcomes are never
// ambiguous.
func (d *Directory) FindCredential(ctx context.Context, nameQuery string) string {
	credential, cliente, found, hasOwn, err := d.CredentialByName(ctx, nameQuery)
	if err != nil {
		slog.Error("Directory.FindCredential: store query failed", "error", err, "query", nameQuery)
		return dataErrorSentence(err)
	}
	if !found {
		return notFoundSentence(nameQuery)
	}
	if !hasOwn {
		return fmt.Sprintf("El cliente %s no tiene contraseña propia registrada; aplica la clave de acceso por defecto: %s", cliente.Nombre, credential)
	}
	return fmt.Sprintf("La contraseña registrada del cliente %s es: %s", cliente.Nombre, credential)
}

func (d *Directory) renderClientSection(b *strings.Builder, cliente models.Cliente, polizas []models.Poliza) {
	sep := strings.Repeat("=", 60)
	fmt.Fprintf(b, "\n%s\n", sep)
	fmt.Fprintf(b, "CLIENTE: %s (ID: %d)\n", cliente.Nombre, cliente.ID)
	fmt.Fprintf(b, "%s\n", sep)

	if len(polizas) == 0 {
		b.WriteString("  No tiene pólizas registradas.\n")
		return
	}

	fmt.Fprintf(b, "  Total de pólizas: %d\n\n", len(polizas))
	for i, p := range polizas {
		fmt.Fprintf(b, "  --- Póliza %d ---\n", i+1)
		fmt.Fprintf(b, "  Número de Póliza: %s\n", orNA(&p.Numero))
		fmt.Fprintf(b, "  Tipo de Seguro: %s\n", orNA(p.TipoSeguro))
		fmt.Fprintf(b, "  Estado: %s\n", orNA(p.Estado))
		fmt.Fprintf(b, "  Vigencia: %s a %s\n", orNA(p.VigenciaInicio), orNA(p.VigenciaFin))
		fmt.Fprintf(b, "  Suma Asegurada: %s\n", d.money(p.SumaAsegurada))
		fmt.Fprintf(b, "  Prima Anual: %s\n", d.money(p.PrimaAnual))
		fmt.Fprintf(b, "  Prima Neta: %s\n", d.money(p.PrimaNeta))
		fmt.Fprintf(b, "  Descripción: %s\n\n", orNA(p.Descripcion))
	}
}

// money renders a monetary amount with Spanish-locale grouping, or "N/A".
func (d *Directory) money(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return d.printer.Sprintf("$%.2f", *v)
}

func orNA(s *string) string {
	if s == nil || *s == "" {
		return "N/A"
	}
	return *s
}

func notFoundSentence(nameQuery string) string {
	return fmt.Sprintf("No se encontró ningún cliente con el nombre '%s'.", nameQuery)
}

func dataErrorSentence(err error) string {
	return fmt.Sprintf("Error al consultar la base de datos: %v", err)
}
