package tables

import "github.com/JonMunkholm/recon/internal/core"

// DefaultChannel is the sales channel of orders exported without one.
const DefaultChannel = "Pdv"

func init() {
	registerOrders()
}

func registerOrders() {
	core.Register(core.EntityDefinition{
		Type:      core.EntityOrder,
		Label:     "Vendas",
		Table:     "orders",
		Directory: "Vendas",

		NaturalKey: []string{"order_number", core.OriginField},

		Fields: []core.FieldSpec{
			{Name: "order_number", Columns: []string{"Número", "Número do pedido"}, Type: core.FieldText, Required: true},
			{Name: core.OriginField, Columns: []string{"origem", "loja"}, Type: core.FieldText, Required: true},
			{Name: "sale_date", Columns: []string{"Data da venda", "Data"}, Type: core.FieldDate},
			{Name: "channel", Columns: []string{"E-commerce", "Canal"}, Type: core.FieldText, Default: DefaultChannel},
			{Name: "status", Columns: []string{"Situação da venda", "Situação"}, Type: core.FieldText},
		},
	})
}
