package taxonomy

type Category string

const (
	CategoryFuel        Category = "fuel"
	CategoryInsurance   Category = "insurance"
	CategoryMaintenance Category = "maintenance"
	CategoryCarriedDebt Category = "carried_debt"
	CategoryOther       Category = "other"
)

type Payer string

const (
	PayerEmployer Payer = "employer"
	PayerPayee    Payer = "payee"
)
