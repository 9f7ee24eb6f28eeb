package core

type (
	Role            string
	AnimalType      string
	AnimalStatus    string
	RevenueType     string
	ExpenseCategory string
	SubsidyStatus   string
)

const (
	RoleOwner      Role = "owner"
	RoleStaff      Role = "staff"
	RoleAccountant Role = "accountant"
)

const (
	AnimalDairy AnimalType = "dairy"
	AnimalBeef  AnimalType = "beef"
	AnimalOther AnimalType = "other"
)

const (
	AnimalActive   AnimalStatus = "active"
	AnimalSold     AnimalStatus = "sold"
	AnimalDeceased AnimalStatus = "deceased"
	AnimalGone     AnimalStatus = "other"
)

const (
	RevenueMilk    RevenueType = "milk"
	RevenueCarcass RevenueType = "carcass"
	RevenueCalf    RevenueType = "calf"
	RevenueOther   RevenueType = "other"
	RevenueSubsidy RevenueType = "subsidy"
)

const (
	ExpenseFeedRoughage      ExpenseCategory = "feed_roughage"
	ExpenseFeedConcentrate   ExpenseCategory = "feed_concentrate"
	ExpenseVeterinary        ExpenseCategory = "veterinary"
	ExpenseLabor             ExpenseCategory = "labor"
	ExpenseFuel              ExpenseCategory = "fuel"
	ExpenseUtilities         ExpenseCategory = "utilities"
	ExpenseRepairs           ExpenseCategory = "repairs"
	ExpenseMachinery         ExpenseCategory = "machinery"
	ExpenseLivestockPurchase ExpenseCategory = "livestock_purchase"
	ExpenseLosses            ExpenseCategory = "losses"
	ExpenseOther             ExpenseCategory = "other"
)

const (
	SubsidyApplied  SubsidyStatus = "applied"
	SubsidyApproved SubsidyStatus = "approved"
	SubsidyPaid     SubsidyStatus = "paid"
	SubsidyRejected SubsidyStatus = "rejected"
)

// Option is a value/label pair for form selects.
type Option struct {
	Value string
	Label string
}

var roleLabels = map[Role]string{
	RoleOwner:      "Owner",
	RoleStaff:      "Staff",
	RoleAccountant: "Accountant",
}

var animalTypeLabels = map[AnimalType]string{
	AnimalDairy: "Dairy cattle",
	AnimalBeef:  "Beef cattle",
	AnimalOther: "Other",
}

var animalStatusLabels = map[AnimalStatus]string{
	AnimalActive:   "Active",
	AnimalSold:     "Sold",
	AnimalDeceased: "Deceased",
	AnimalGone:     "Other",
}

var revenueTypeLabels = map[RevenueType]string{
	RevenueMilk:    "Milk sales",
	RevenueCarcass: "Carcass sales",
	RevenueCalf:    "Calf sales",
	RevenueOther:   "Other",
	RevenueSubsidy: "Subsidies & grants",
}

var expenseCategoryLabels = map[ExpenseCategory]string{
	ExpenseFeedRoughage:      "Feed (roughage)",
	ExpenseFeedConcentrate:   "Feed (concentrate)",
	ExpenseVeterinary:        "Veterinary",
	ExpenseLabor:             "Labor",
	ExpenseFuel:              "Fuel",
	ExpenseUtilities:         "Utilities",
	ExpenseRepairs:           "Repairs",
	ExpenseMachinery:         "Machinery",
	ExpenseLivestockPurchase: "Livestock purchase",
	ExpenseLosses:            "Losses",
	ExpenseOther:             "Other",
}

var subsidyStatusLabels = map[SubsidyStatus]string{
	SubsidyApplied:  "Applied",
	SubsidyApproved: "Approved",
	SubsidyPaid:     "Paid",
	SubsidyRejected: "Rejected",
}

func (r Role) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

// CanEdit reports whether the role may create, change or delete records. Accountants are read-only.
func (r Role) CanEdit() bool { return r == RoleOwner || r == RoleStaff }

func (r Role) Label() string { return label(roleLabels, r) }

func (t AnimalType) Valid() bool {
	_, ok := animalTypeLabels[t]
	return ok
}

func (t AnimalType) Label() string { return label(animalTypeLabels, t) }

func (s AnimalStatus) Valid() bool {
	_, ok := animalStatusLabels[s]
	return ok
}

func (s AnimalStatus) Label() string { return label(animalStatusLabels, s) }

func (t RevenueType) Valid() bool {
	_, ok := revenueTypeLabels[t]
	return ok
}

func (t RevenueType) Label() string { return label(revenueTypeLabels, t) }

func (c ExpenseCategory) Valid() bool {
	_, ok := expenseCategoryLabels[c]
	return ok
}

func (c ExpenseCategory) Label() string { return label(expenseCategoryLabels, c) }

func (s SubsidyStatus) Valid() bool {
	_, ok := subsidyStatusLabels[s]
	return ok
}

func (s SubsidyStatus) Label() string { return label(subsidyStatusLabels, s) }

func RoleOptions() []Option {
	return options(roleLabels, RoleOwner, RoleStaff, RoleAccountant)
}

func AnimalTypeOptions() []Option {
	return options(animalTypeLabels, AnimalDairy, AnimalBeef, AnimalOther)
}

func AnimalStatusOptions() []Option {
	return options(animalStatusLabels, AnimalActive, AnimalSold, AnimalDeceased, AnimalGone)
}

func RevenueTypeOptions() []Option {
	return options(revenueTypeLabels, RevenueMilk, RevenueCarcass, RevenueCalf, RevenueOther, RevenueSubsidy)
}

func ExpenseCategoryOptions() []Option {
	return options(expenseCategoryLabels,
		ExpenseFeedRoughage, ExpenseFeedConcentrate, ExpenseVeterinary, ExpenseLabor,
		ExpenseFuel, ExpenseUtilities, ExpenseRepairs, ExpenseMachinery,
		ExpenseLivestockPurchase, ExpenseLosses, ExpenseOther)
}

func SubsidyStatusOptions() []Option {
	return options(subsidyStatusLabels, SubsidyApplied, SubsidyApproved, SubsidyPaid, SubsidyRejected)
}

func label[K ~string](m map[K]string, k K) string {
	if l, ok := m[k]; ok {
		return l
	}
	return string(k)
}

func options[K ~string](m map[K]string, order ...K) []Option {
	out := make([]Option, 0, len(order))
	for _, k := range order {
		out = append(out, Option{Value: string(k), Label: m[k]})
	}
	return out
}
