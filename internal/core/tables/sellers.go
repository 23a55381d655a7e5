package tables

import "github.com/JonMunkholm/recon/internal/core"

func init() {
	registerSellers()
}

// Sellers have no export of their own in every account; when Vendedores is
// empty the names are taken from the order item extract.
func registerSellers() {
	core.Register(core.EntityDefinition{
		Type:              core.EntitySeller,
		Label:             "Vendedores",
		Table:             "sellers",
		Directory:         "Vendedores",
		FallbackDirectory: "ItemVenda",

		NaturalKey: []string{"name"},
		OriginKey:  []string{"external_id", core.OriginField},

		Fields: []core.FieldSpec{
			{Name: "external_id", Columns: []string{"ID"}, Type: core.FieldText},
			{Name: core.OriginField, Columns: []string{"origem", "loja"}, Type: core.FieldText, Required: true},
			{Name: "name", Columns: []string{"Nome", "Vendedor"}, Type: core.FieldText, Required: true, Normalizer: NormalizeName},
		},
	})
}
