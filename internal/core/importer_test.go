package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/recon/internal/core"
	_ "github.com/JonMunkholm/recon/internal/core/tables"
	"github.com/JonMunkholm/recon/internal/ingest"
	"github.com/JonMunkholm/recon/internal/store/memory"
)

// mapSource serves fixed tables by directory and records archived ones.
type mapSource struct {
	tables   map[string]*ingest.Table
	archived []string
}

func (s *mapSource) Load(_ context.Context, dir string) (*ingest.Table, error) {
	t, ok := s.tables[dir]
	if !ok {
		return nil, fmt.Errorf("%s: %w", dir, ingest.ErrNoInput)
	}
	return t, nil
}

func (s *mapSource) Archive(dir string) error {
	s.archived = append(s.archived, dir)
	return nil
}

func table(source string, cols []string, rows ...[]string) *ingest.Table {
	t := &ingest.Table{Columns: cols}
	for i, r := range rows {
		t.Rows = append(t.Rows, ingest.Row{Source: source, Line: i + 2, Values: r})
	}
	return t
}

func fixture() *mapSource {
	return &mapSource{tables: map[string]*ingest.Table{
		"Clientes": table("Clientes.csv",
			[]string{"ID", "Nome", "CNPJ / CPF", "Tipo pessoa", "Situação", "origem"},
			[]string{"1", "joão silva", "123.456.789-00", "Pessoa Física", "Ativo", "servi"},
			[]string{"7", "JOÃO SILVA", "999", "Pessoa Jurídica", "Inativo", "imp"},
			[]string{"2", "Maria  Souza", "", "Pessoa Física", "Ativo", "servi"},
			[]string{"3", "Consumidor Final", "", "", "", "servi"},
			[]string{"4", "consumidor final", "", "", "", "imp"},
		),
		"Produtos": table("Produtos.csv",
			[]string{"Código (SKU)", "Descrição", "Estoque", "origem"},
			[]string{"X1", "Caneta", "5", "servi"},
			[]string{"X1", "Caneta azul", "-2", "imp"},
			[]string{"Y2", "Lápis", "10", "servi"},
		),
		"Vendas": table("Vendas.csv",
			[]string{"Número", "Data", "E-commerce", "origem"},
			[]string{"564265", "05/03/2024", "", "servi"},
			[]string{"777", "2024-03-06", "Loja virtual", "imp"},
		),
		"ItemVenda": table("ItemVenda.csv",
			[]string{"Número", "Nome do cliente", "Vendedor", "Código (SKU)", "Quantidade", "Preço unitário", "origem"},
			[]string{"564265", "João Silva", "Carlos", "X1", "4", "25,00", "servi"},
			[]string{"564265", "joao silva", "carlos", "Y2", "2", "25,00", "servi"},
			[]string{"", "Maria Souza", "Carlos", "X1", "1", "10", "servi"},
			[]string{"777", "Maria Souza", "", "X1", "1", "10", "imp"},
			[]string{"888", "Ninguém", "Carlos", "X1", "1", "10", "servi"},
		),
	}}
}

func options() core.Options {
	return core.Options{
		Scheme:  core.SchemeName,
		Origins: core.Origins{Primary: "servi", Secondary: "imp"},
	}
}

func rowsByName(s *memory.Store, tableName, field string) map[string]core.Entity {
	out := make(map[string]core.Entity)
	for _, e := range s.Rows(tableName) {
		out[e.Fields.Get(field).String()] = e
	}
	return out
}

func TestImporter_FullRun(t *testing.T) {
	store := memory.New()
	src := fixture()

	report, err := core.NewImporter(store, src, options()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.RunSucceeded, report.Status)
	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Entities, 5)
	for _, s := range report.Entities {
		assert.Equal(t, core.PhaseDone, s.Phase, s.Entity)
	}

	t.Run("customers keep the primary origin row", func(t *testing.T) {
		customers := rowsByName(store, "customers", "name")
		require.Len(t, customers, 3)

		joao, ok := customers["João Silva"]
		require.True(t, ok)
		assert.Equal(t, "12345678900", joao.Fields.Get("tax_id").String())
		assert.Equal(t, "1", joao.Fields.Get("external_id").String())
		assert.Equal(t, "F", joao.Fields.Get("person_type").String())
		assert.Equal(t, int64(9), joao.Fields.Get("taxpayer_code").Int)
		assert.True(t, joao.Fields.Get("active").Bool)
		assert.False(t, joao.Fields.Get("origin").Valid)

		assert.Contains(t, customers, "Maria Souza")
		assert.Contains(t, customers, "Consumidor Final")

		sum := report.Summary(core.EntityCustomer)
		assert.Equal(t, 5, sum.Read)
		assert.Equal(t, 3, sum.Created)
		assert.Equal(t, 2, sum.Merged)
	})

	t.Run("sellers come from the order items when there is no seller extract", func(t *testing.T) {
		sellers := store.Rows("sellers")
		require.Len(t, sellers, 1)
		assert.Equal(t, "Carlos", sellers[0].Fields.Get("name").String())

		sum := report.Summary(core.EntitySeller)
		assert.Equal(t, 1, sum.SkipReasons[core.SkipMissingKey])
		assert.Equal(t, 3, sum.Duplicates)
	})

	t.Run("product stock is summed across origins", func(t *testing.T) {
		products := rowsByName(store, "products", "sku")
		require.Len(t, products, 2)
		assert.Equal(t, "3", products["X1"].Fields.Get("stock").String())
		assert.Equal(t, "Caneta", products["X1"].Fields.Get("description").String())
		assert.Equal(t, "10", products["Y2"].Fields.Get("stock").String())
	})

	t.Run("orders default the channel", func(t *testing.T) {
		orders := rowsByName(store, "orders", "order_number")
		require.Len(t, orders, 2)
		assert.Equal(t, "Pdv", orders["564265"].Fields.Get("channel").String())
		assert.Equal(t, "2024-03-05", orders["564265"].Fields.Get("sale_date").String())
		assert.Equal(t, "Loja virtual", orders["777"].Fields.Get("channel").String())
	})

	t.Run("order items share the order total", func(t *testing.T) {
		orders := rowsByName(store, "orders", "order_number")
		customers := rowsByName(store, "customers", "name")

		items := store.Rows("order_items")
		require.Len(t, items, 3)

		var group []core.Entity
		for _, it := range items {
			if it.Fields.Get("order_id").Int == orders["564265"].ID {
				group = append(group, it)
			}
		}
		require.Len(t, group, 2)
		for _, it := range group {
			assert.Equal(t, "150", it.Fields.Get("final_price").String())
			assert.Equal(t, customers["João Silva"].ID, it.Fields.Get("customer_id").Int)
			assert.True(t, it.Fields.Get("seller_id").Valid)
		}
		assert.ElementsMatch(t, []string{"100", "50"}, []string{
			group[0].Fields.Get("total_value").String(),
			group[1].Fields.Get("total_value").String(),
		})

		sum := report.Summary(core.EntityOrderItem)
		assert.Equal(t, 3, sum.Created)
		assert.Equal(t, 2, sum.Skipped)
		assert.Equal(t, 1, sum.SkipReasons[core.SkipMissingKey])
		assert.Equal(t, 1, sum.SkipReasons[core.SkipUnresolvedReference])
	})

	t.Run("run is recorded", func(t *testing.T) {
		runs := store.Runs()
		require.Len(t, runs, 1)
		assert.Equal(t, report.RunID, runs[0].RunID)
	})
}

func TestImporter_SecondRunIsIdempotent(t *testing.T) {
	store := memory.New()
	imp := core.NewImporter(store, fixture(), options())

	_, err := imp.Run(context.Background())
	require.NoError(t, err)
	before := len(store.Rows("order_items"))

	report, err := imp.Run(context.Background())
	require.NoError(t, err)

	created, updated := report.Totals()
	assert.Zero(t, created)
	assert.Zero(t, updated)
	assert.Equal(t, 3, report.Summary(core.EntityCustomer).Unchanged)
	assert.Equal(t, 3, report.Summary(core.EntityOrderItem).Unchanged)
	assert.Len(t, store.Rows("order_items"), before)
}

func TestImporter_MissingColumnAbortsRun(t *testing.T) {
	store := memory.New()
	src := fixture()
	src.tables["Vendas"] = table("Vendas.csv", []string{"Data", "origem"}, []string{"2024-03-05", "servi"})

	report, err := core.NewImporter(store, src, options()).Run(context.Background())

	var mc *core.MissingColumnError
	require.True(t, errors.As(err, &mc))
	assert.Equal(t, core.EntityOrder, mc.Entity)

	assert.Equal(t, core.RunFailed, report.Status)
	assert.Equal(t, core.PhaseDone, report.Summary(core.EntityProduct).Phase)
	assert.Equal(t, core.PhaseFailed, report.Summary(core.EntityOrder).Phase)
	assert.Equal(t, core.PhasePending, report.Summary(core.EntityOrderItem).Phase)

	assert.Len(t, store.Rows("products"), 2, "earlier entities stay committed")
	assert.Empty(t, store.Rows("orders"))
	assert.Empty(t, store.Rows("order_items"))
}

func TestImporter_MissingOriginKeyColumn(t *testing.T) {
	store := memory.New()
	opts := options()
	opts.Scheme = core.SchemeOrigin
	src := &mapSource{tables: map[string]*ingest.Table{
		"Clientes": table("Clientes.csv", []string{"Nome", "origem"},
			[]string{"Ana", "servi"},
			[]string{"Bia", "imp"},
		),
	}}

	report, err := core.NewImporter(store, src, opts).Run(context.Background(), core.EntityCustomer)

	var mc *core.MissingColumnError
	require.True(t, errors.As(err, &mc))
	assert.Equal(t, []string{"ID"}, mc.Columns)
	assert.Equal(t, core.PhaseFailed, report.Summary(core.EntityCustomer).Phase)
	assert.Empty(t, store.Rows("customers"))
}

func TestImporter_ConstraintViolationRollsBackEntity(t *testing.T) {
	store := memory.New()
	cols := []string{"Nome", "CPF/CNPJ", "origem"}

	first := &mapSource{tables: map[string]*ingest.Table{
		"Clientes": table("Clientes.csv", cols,
			[]string{"Ana", "111", "servi"},
			[]string{"Bia", "222", "servi"},
		),
		"Produtos": fixture().tables["Produtos"],
	}}
	_, err := core.NewImporter(store, first, options()).Run(context.Background())
	require.NoError(t, err)

	second := &mapSource{tables: map[string]*ingest.Table{
		"Clientes": table("Clientes.csv", cols, []string{"Bia", "111", "servi"}),
		"Produtos": fixture().tables["Produtos"],
	}}
	report, err := core.NewImporter(store, second, options()).Run(context.Background(), core.EntityProduct, core.EntityCustomer)

	var cv *core.ConstraintViolation
	require.True(t, errors.As(err, &cv))
	assert.Equal(t, []string{"bia"}, cv.Keys)
	assert.Equal(t, "DB001", core.MapError(err).Code)

	assert.Equal(t, core.PhaseFailed, report.Summary(core.EntityCustomer).Phase)
	assert.Equal(t, core.PhasePending, report.Summary(core.EntityProduct).Phase)

	customers := rowsByName(store, "customers", "name")
	assert.Equal(t, "222", customers["Bia"].Fields.Get("tax_id").String())
	assert.Len(t, store.Rows("products"), 2)
	assert.Len(t, store.Runs(), 2)
}

func TestImporter_CollapsesWalkInCustomers(t *testing.T) {
	store := memory.New()
	opts := options()
	opts.Scheme = core.SchemeOrigin

	def := core.Definitions(opts)[core.EntityCustomer]
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	for _, ext := range []string{"1", "2"} {
		_, err := tx.BulkInsert(ctx, def, []core.Entity{{Fields: core.Record{
			"name":        core.TextValue("Consumidor Final"),
			"external_id": core.TextValue(ext),
			"origin":      core.TextValue("servi"),
		}}})
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit(ctx))

	src := &mapSource{tables: map[string]*ingest.Table{
		"Clientes": table("Clientes.csv", []string{"ID", "Nome", "origem"},
			[]string{"3", "CONSUMIDOR FINAL", "imp"},
			[]string{"5", "Ana", "servi"},
			[]string{"6", "Ana", "imp"},
		),
	}}
	report, err := core.NewImporter(store, src, opts).Run(ctx, core.EntityCustomer)
	require.NoError(t, err)

	sum := report.Summary(core.EntityCustomer)
	assert.Equal(t, 1, sum.Collapsed)

	var walkIns, anas int
	for _, e := range store.Rows("customers") {
		switch e.Fields.Get("name").String() {
		case "Consumidor Final":
			walkIns++
			assert.Equal(t, int64(1), e.ID)
		case "Ana":
			anas++
		}
	}
	assert.Equal(t, 1, walkIns)
	assert.Equal(t, 2, anas, "origin scheme keeps one row per origin account")
}

func TestImporter_DryRunWritesNothing(t *testing.T) {
	store := memory.New()
	opts := options()
	opts.DryRun = true
	opts.Archive = true
	src := fixture()

	report, err := core.NewImporter(store, src, opts).Run(context.Background(), core.EntityCustomer, core.EntityProduct)
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 3, report.Summary(core.EntityCustomer).Created)
	assert.Empty(t, store.Rows("customers"))
	assert.Empty(t, store.Rows("products"))
	assert.Empty(t, store.Runs())
	assert.Empty(t, src.archived)
}

func TestImporter_NoInputAndArchive(t *testing.T) {
	store := memory.New()
	opts := options()
	opts.Archive = true
	src := &mapSource{tables: map[string]*ingest.Table{"Produtos": fixture().tables["Produtos"]}}

	report, err := core.NewImporter(store, src, opts).Run(context.Background())
	require.NoError(t, err)

	for _, s := range report.Entities {
		assert.Equal(t, core.PhaseDone, s.Phase)
		if s.Entity != core.EntityProduct {
			assert.Equal(t, core.NoInputNote, s.Note, s.Entity)
		}
	}
	assert.Equal(t, []string{"Produtos"}, src.archived)
}

func TestImporter_UnknownEntity(t *testing.T) {
	_, err := core.NewImporter(memory.New(), fixture(), options()).Run(context.Background(), "pedidos")
	assert.ErrorContains(t, err, "unknown entity")
}

func TestConsolidate(t *testing.T) {
	out, err := core.Consolidate(context.Background(), fixture(), options(),
		core.EntityCustomer, core.EntitySeller, core.EntityOrderItem)
	require.NoError(t, err)
	require.Len(t, out, 3)

	customers := out[0].Table
	assert.NotContains(t, customers.Columns, "origin")
	assert.Contains(t, customers.Columns, "taxpayer_code")
	assert.Equal(t, 3, customers.Len())
	idx := customers.Index()
	assert.Equal(t, "João Silva", customers.Rows[0].Get(idx["name"]))
	assert.Equal(t, "12345678900", customers.Rows[0].Get(idx["tax_id"]))

	assert.Equal(t, core.EntitySeller, out[1].Entity.Type)
	assert.Equal(t, 1, out[1].Table.Len())

	items := out[2].Table
	assert.NotContains(t, items.Columns, "order_id")
	assert.Contains(t, items.Columns, "customer_name")
	idx = items.Index()
	for _, r := range items.Rows {
		if r.Get(idx["order_number"]) == "564265" {
			assert.Equal(t, "150", r.Get(idx["final_price"]))
		}
	}
	assert.Equal(t, 1, out[2].Summary.SkipReasons[core.SkipMissingKey])
}
