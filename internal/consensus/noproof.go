package consensus

// NoProofName is the registry name of the NoProof engine.
const NoProofName = "NoProof"

// NoProof accepts any seal. Headers are still held to the generic rules.
// Used for tests and development chains.
type NoProof struct {
	Base
}

// NewNoProof creates an unconfigured NoProof engine.
func NewNoProof() *NoProof {
	e := &NoProof{}
	e.name = NoProofName
	return e
}
