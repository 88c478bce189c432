package billing

import (
	"fmt"
	"log"
	"regexp"
	"strings"

	"dukapay-billing-api/models"
)

const (
	// MaxBranchesPerAction caps how many branches a single payment may add,
	// regardless of tier.
	MaxBranchesPerAction = 10

	// BranchFee is charged per branch on top of the tier base price, in KES.
	BranchFee = 100
)

// Kenyan international format: 254, trunk digit 7, eight more digits.
var phonePattern = regexp.MustCompile(`^2547\d{8}$`)

// ValidatePhoneNumber reports whether phone is a Kenyan MSISDN in
// international format (e.g. 254712345678).
func ValidatePhoneNumber(phone string) bool {
	if !phonePattern.MatchString(phone) {
		log.Printf("Invalid phone number format: %q (expected Kenyan international format, e.g. 254712345678)", phone)
		return false
	}
	return true
}

// ValidateBranchCount checks the per-action cap and the tier's own branch
// limit. The checks are independent; either one failing rejects the action.
func ValidateBranchCount(tier models.Tier, branches int) bool {
	if branches > MaxBranchesPerAction {
		log.Printf("Branch count %d exceeds the per-action maximum of %d", branches, MaxBranchesPerAction)
		return false
	}
	if tier.HasBranchLimit() && branches > tier.BranchLimit {
		log.Printf("The %s plan allows a maximum of %d branches, got %d", tier.Name, tier.BranchLimit, branches)
		return false
	}
	return true
}

// ResolveTier looks up a tier by name, case-insensitively.
func ResolveTier(name string) (models.Tier, bool) {
	tier, ok := models.SubscriptionTiers[strings.ToLower(name)]
	return tier, ok
}

// ComputePrice returns the total charge in KES for a subscription payment.
func ComputePrice(tier models.Tier, branches int) int {
	return tier.BasePrice + branches*BranchFee
}

// AccountReference builds the deterministic account label sent to the
// gateway for a vendor's payment.
func AccountReference(phone string) string {
	return fmt.Sprintf("Vendor_%s", phone)
}

// TransactionDescription builds the human-readable summary the gateway
// records against the transaction.
func TransactionDescription(tier models.Tier, branches int) string {
	return fmt.Sprintf("%s subscription with %d branches", tier.Name, branches)
}
