package consensus

import "strings"

// ImportRequirements is a set of checks a caller asks for when admitting a
// block or transaction.
type ImportRequirements uint32

// Individual requirements.
const (
	ValidSeal ImportRequirements = 1 << iota
	TransactionBasic
	TransactionSignatures
	Parent
	PostGenesis
)

// Composite requirement sets.
const (
	None              ImportRequirements = 0
	CheckTransactions                    = TransactionBasic | TransactionSignatures
	Everything                           = ValidSeal | CheckTransactions | Parent | PostGenesis
)

var requirementNames = []struct {
	flag ImportRequirements
	name string
}{
	{ValidSeal, "valid-seal"},
	{TransactionBasic, "transaction-basic"},
	{TransactionSignatures, "transaction-signatures"},
	{Parent, "parent"},
	{PostGenesis, "post-genesis"},
}

// Has returns true if every flag in req is set.
func (ir ImportRequirements) Has(req ImportRequirements) bool {
	return ir&req == req
}

// Strictness returns the header strictness implied by ir.
func (ir ImportRequirements) Strictness() Strictness {
	if ir.Has(ValidSeal) {
		return CheckEverything
	}
	return IgnoreSeal
}

func (ir ImportRequirements) String() string {
	if ir == None {
		return "none"
	}
	var parts []string
	for _, r := range requirementNames {
		if ir.Has(r.flag) {
			parts = append(parts, r.name)
		}
	}
	return strings.Join(parts, "|")
}
