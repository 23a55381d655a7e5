package tables

import "github.com/JonMunkholm/recon/internal/core"

func init() {
	registerCustomers()
}

func registerCustomers() {
	core.Register(core.EntityDefinition{
		Type:      core.EntityCustomer,
		Label:     "Clientes",
		Table:     "customers",
		Directory: "Clientes",

		NaturalKey: []string{"name"},
		OriginKey:  []string{"external_id", core.OriginField},
		Unique:     []string{"tax_id"},

		Fields: []core.FieldSpec{
			{Name: "external_id", Columns: []string{"ID", "Código"}, Type: core.FieldText},
			{Name: core.OriginField, Columns: []string{"origem", "loja"}, Type: core.FieldText, Required: true},
			{Name: "name", Columns: []string{"Nome"}, Type: core.FieldText, Required: true, Normalizer: NormalizeName},
			{Name: "postal_code", Columns: []string{"CEP"}, Type: core.FieldText, Normalizer: DigitsOnly},
			{Name: "tax_id", Columns: []string{"CNPJ / CPF", "CPF/CNPJ", "CPF / CNPJ", "CNPJ/CPF"}, Type: core.FieldText, Normalizer: DigitsOnly},
			{Name: "phone", Columns: []string{"Celular", "Fone", "Telefone"}, Type: core.FieldText},
			{Name: "address", Columns: []string{"Endereço"}, Type: core.FieldText},
			{Name: "person_type", Columns: []string{"Tipo pessoa", "Tipo de pessoa"}, Type: core.FieldText, Normalizer: PersonType},
			{Name: "taxpayer_code", Type: core.FieldInt},
			{Name: "route", Columns: []string{"Rota"}, Type: core.FieldText},
			{Name: "salesperson", Columns: []string{"Vendedor"}, Type: core.FieldText, Normalizer: NormalizeName},
			{Name: "credit_limit", Columns: []string{"Limite de crédito"}, Type: core.FieldNumeric},
			{Name: "active", Columns: []string{"Situação"}, Type: core.FieldBool, Normalizer: ActiveFlag},
		},
		Policy: core.PolicyOriginPriority,

		Placeholder:      WalkInCustomer,
		PlaceholderField: "name",

		Derive: func(rec core.Record) {
			rec["taxpayer_code"] = TaxpayerCode(rec.Get("person_type"))
		},
	})
}
