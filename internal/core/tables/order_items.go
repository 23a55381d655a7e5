package tables

import "github.com/JonMunkholm/recon/internal/core"

func init() {
	registerOrderItems()
}

// Order items carry the order number, customer name, seller name and SKU of
// their parents; all four are resolved to ids before writing. The customer
// is matched by name through the customer extract since item exports do not
// carry a usable customer id.
func registerOrderItems() {
	core.Register(core.EntityDefinition{
		Type:      core.EntityOrderItem,
		Label:     "Itens de venda",
		Table:     "order_items",
		Directory: "ItemVenda",

		NaturalKey: []string{"order_id", "product_id", core.OriginField},

		Fields: []core.FieldSpec{
			{Name: "order_number", Columns: []string{"Número", "Número do pedido"}, Type: core.FieldText, Required: true, Transient: true},
			{Name: "customer_name", Columns: []string{"Nome do cliente", "Nome do contato", "Cliente"}, Type: core.FieldText, Required: true, Transient: true, Normalizer: NormalizeName},
			{Name: "seller_name", Columns: []string{"Vendedor"}, Type: core.FieldText, Transient: true, Normalizer: NormalizeName},
			{Name: "sku", Columns: []string{"Código (SKU)", "Código", "SKU"}, Type: core.FieldText, Required: true, Transient: true},

			{Name: "order_id", Type: core.FieldRef},
			{Name: "customer_id", Type: core.FieldRef},
			{Name: "product_id", Type: core.FieldRef},
			{Name: "seller_id", Type: core.FieldRef},
			{Name: core.OriginField, Columns: []string{"origem", "loja"}, Type: core.FieldText, Required: true},

			{Name: core.FieldQuantity, Columns: []string{"Quantidade de produtos", "Quantidade"}, Type: core.FieldNumeric, Required: true},
			{Name: core.FieldUnitPrice, Columns: []string{"Preço unitário", "Valor unitário"}, Type: core.FieldNumeric, Required: true},
			{Name: core.FieldTotalValue, Type: core.FieldNumeric},
			{Name: "discount", Columns: []string{"Desconto", "Valor desconto"}, Type: core.FieldNumeric},
			{Name: "freight", Columns: []string{"Frete pago pelo cliente", "Frete"}, Type: core.FieldNumeric},
			{Name: core.FieldFinalPrice, Type: core.FieldNumeric},
			{Name: "delivery_address", Columns: []string{"Endereço de entrega"}, Type: core.FieldText},
			{Name: "delivery_city", Columns: []string{"Cidade de entrega"}, Type: core.FieldText},
			{Name: "delivery_state", Columns: []string{"UF de entrega"}, Type: core.FieldText},
			{Name: "delivery_postal_code", Columns: []string{"CEP de entrega"}, Type: core.FieldText, Normalizer: DigitsOnly},
		},

		References: []core.Reference{
			{Field: "order_id", Target: core.EntityOrder, Lookup: []string{"order_number", core.OriginField}},
			{Field: "customer_id", Target: core.EntityCustomer, Lookup: []string{"customer_name"}, ByDirectory: true},
			{Field: "product_id", Target: core.EntityProduct, Lookup: []string{"sku"}},
			{Field: "seller_id", Target: core.EntitySeller, Lookup: []string{"seller_name"}, Match: []string{"name"}, Optional: true},
		},

		Policy:  core.PolicyGroupTotals,
		GroupBy: []string{"order_number", core.OriginField},
	})
}
