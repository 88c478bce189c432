package models

// Tier describes a subscription plan. Prices are whole KES.
// BranchLimit < 0 means the plan has no branch cap.
type Tier struct {
	Name        string `json:"name"`
	BasePrice   int    `json:"base_price"`
	BranchLimit int    `json:"branch_limit"`
}

// Unlimited is the BranchLimit value for plans without a branch cap.
const Unlimited = -1

// SubscriptionTiers is the fixed plan table. Never mutated at runtime.
var SubscriptionTiers = map[string]Tier{
	"starter":    {Name: "Starter", BasePrice: 100, BranchLimit: 10},
	"pro":        {Name: "Pro", BasePrice: 300, BranchLimit: 100},
	"enterprise": {Name: "Enterprise", BasePrice: 500, BranchLimit: Unlimited},
}

func (t Tier) HasBranchLimit() bool {
	return t.BranchLimit != Unlimited
}
