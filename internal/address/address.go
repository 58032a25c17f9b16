// Package address resolves transfer targets: raw per-asset addresses and
// naming-service domains. Resolution failures are reported as typed errors
// so the engines can map them onto validation states.
package address

import (
	"context"
	"errors"
	"strings"

	"github.com/btcsuite/btcutil/base58"

	"github.com/traversefi/traverse/internal/asset"
)

// Common errors
var (
	ErrInvalidAddress    = errors.New("invalid address")
	ErrInvalidDomain     = errors.New("domain could not be resolved")
	ErrAddressIsContract = errors.New("address is a contract")
)

// Resolved is the outcome of a successful resolution.
type Resolved struct {
	// Address is the machine address funds will be sent to.
	Address string
	// Domain is the human-readable name the address was resolved from,
	// empty when the input was already a raw address.
	Domain string
	// IsContract reports whether the address belongs to a contract
	// rather than an externally owned account.
	IsContract bool
}

// DomainResolver resolves naming-service domains (e.g. "alice.crypto")
// to machine addresses for a given asset.
type DomainResolver interface {
	Resolve(ctx context.Context, domain string, a asset.Asset) (string, error)
}

// ContractChecker reports whether a raw address is a contract on the
// asset's chain. Fiat and custodial rails have no contracts.
type ContractChecker interface {
	IsContract(ctx context.Context, addr string, a asset.Asset) (bool, error)
}

// Resolver validates raw addresses and resolves domains.
type Resolver struct {
	domains   DomainResolver
	contracts ContractChecker
}

// NewResolver creates a resolver. Either collaborator may be nil, in which
// case domain inputs fail and contract detection is skipped.
func NewResolver(domains DomainResolver, contracts ContractChecker) *Resolver {
	return &Resolver{domains: domains, contracts: contracts}
}

// Resolve turns user input into a machine address for the given asset.
// Input containing a dot is treated as a naming-service domain.
func (r *Resolver) Resolve(ctx context.Context, input string, a asset.Asset) (Resolved, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Resolved{}, ErrInvalidAddress
	}

	if isDomain(input) {
		if r.domains == nil {
			return Resolved{}, ErrInvalidDomain
		}
		addr, err := r.domains.Resolve(ctx, input, a)
		if err != nil {
			return Resolved{}, errors.Join(ErrInvalidDomain, err)
		}
		res, err := r.checkRaw(ctx, addr, a)
		if err != nil {
			return Resolved{}, err
		}
		res.Domain = input
		return res, nil
	}

	return r.checkRaw(ctx, input, a)
}

func (r *Resolver) checkRaw(ctx context.Context, addr string, a asset.Asset) (Resolved, error) {
	if !ValidRaw(addr, a) {
		return Resolved{}, ErrInvalidAddress
	}

	res := Resolved{Address: addr}
	if r.contracts != nil && a.Kind != asset.Fiat {
		isContract, err := r.contracts.IsContract(ctx, addr, a)
		if err == nil && isContract {
			res.IsContract = true
		}
	}
	return res, nil
}

// ValidRaw checks the syntactic shape of a raw address for an asset.
// On-chain addresses are base58 payloads of a sane length; fiat targets
// are bank account references validated upstream by the linking flow.
func ValidRaw(addr string, a asset.Asset) bool {
	if a.Kind == asset.Fiat {
		return len(addr) >= 4
	}

	decoded := base58.Decode(addr)
	return len(decoded) >= 16 && len(decoded) <= 40
}

func isDomain(input string) bool {
	if strings.ContainsAny(input, " \t") {
		return false
	}
	i := strings.LastIndexByte(input, '.')
	return i > 0 && i < len(input)-1
}
