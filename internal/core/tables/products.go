package tables

import "github.com/JonMunkholm/recon/internal/core"

func init() {
	registerProducts()
}

func registerProducts() {
	core.Register(core.EntityDefinition{
		Type:      core.EntityProduct,
		Label:     "Produtos",
		Table:     "products",
		Directory: "Produtos",

		NaturalKey: []string{"sku"},

		Fields: []core.FieldSpec{
			{Name: "sku", Columns: []string{"Código (SKU)", "Código", "SKU"}, Type: core.FieldText, Required: true},
			{Name: "description", Columns: []string{"Descrição"}, Type: core.FieldText},
			{Name: "unit_price", Columns: []string{"Preço"}, Type: core.FieldNumeric},
			{Name: "promo_price", Columns: []string{"Preço promocional"}, Type: core.FieldNumeric},
			{Name: "cost", Columns: []string{"Custo", "Preço de custo"}, Type: core.FieldNumeric},
			{Name: core.FieldStock, Columns: []string{"Estoque disponível", "Estoque"}, Type: core.FieldNumeric},
			{Name: "unit", Columns: []string{"Unidade"}, Type: core.FieldText},
			// Stock of both origins is summed into one row, so the origin
			// of a product is not kept.
			{Name: core.OriginField, Columns: []string{"origem", "loja"}, Type: core.FieldText, Required: true, Transient: true},
		},
		Policy: core.PolicyStockSum,
	})
}
