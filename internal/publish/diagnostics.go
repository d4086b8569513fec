package publish

import (
	"context"
	"fmt"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
)

// EntryPoint reports whether the contract exposes one pipeline function.
type EntryPoint struct {
	Method    string `json:"method"`
	Signature string `json:"signature"`
	Selector  string `json:"selector"`
	Present   bool   `json:"present"`
}

// Diagnostics is the contract state a publisher sees when a deploy fails.
type Diagnostics struct {
	Contract     chain.Address `json:"contract"`
	CodeDeployed bool          `json:"code_deployed"`
	CodeSize     int           `json:"code_size"`
	EntryPoints  []EntryPoint  `json:"entry_points"`
	Account      chain.Address `json:"account,omitempty"`
	Role         string        `json:"role,omitempty"`
	HasRole      bool          `json:"has_role"`
	Problems     []string      `json:"problems,omitempty"`
}

// Healthy reports whether nothing blocks a deploy.
func (d Diagnostics) Healthy() bool {
	return len(d.Problems) == 0
}

var pipelineMethods = []string{
	chain.MethodCreateCollection,
	chain.MethodAddTrack,
	chain.MethodFinalizeCollection,
}

// Diagnose checks that code is deployed at the wallet's contract, that it
// exposes every pipeline entry point and that the account holds role.
func Diagnose(ctx context.Context, wallet chain.Wallet, role string) (Diagnostics, error) {
	d := Diagnostics{Contract: wallet.Contract, Role: role}

	code, err := wallet.Reader.CodeAt(ctx, wallet.Contract)
	if err != nil {
		return d, pkgerrors.Wrap(pkgerrors.CodeChain, err, "read contract code")
	}
	d.CodeSize = len(code)
	d.CodeDeployed = len(code) > 0
	if !d.CodeDeployed {
		d.Problems = append(d.Problems, fmt.Sprintf("no contract deployed at %s", wallet.Contract))
	}

	for _, method := range pipelineMethods {
		sig := chain.Signatures[method]
		sel := chain.Selector(sig)
		ep := EntryPoint{Method: method, Signature: sig, Selector: chain.SelectorHex(sel)}
		if d.CodeDeployed {
			ep.Present, err = wallet.Reader.SupportsSelector(ctx, wallet.Contract, sel)
			if err != nil {
				return d, pkgerrors.Wrap(pkgerrors.CodeChain, err, "check selector "+ep.Selector)
			}
		}
		if d.CodeDeployed && !ep.Present {
			d.Problems = append(d.Problems, fmt.Sprintf("contract does not expose %s", sig))
		}
		d.EntryPoints = append(d.EntryPoints, ep)
	}

	account, ok := wallet.CurrentAccount(ctx)
	if !ok {
		d.Problems = append(d.Problems, "no wallet account connected")
		return d, nil
	}
	d.Account = account
	if role == "" {
		d.HasRole = true
		return d, nil
	}
	d.HasRole, err = wallet.HasRole(ctx, account, role)
	if err != nil {
		return d, pkgerrors.Wrap(pkgerrors.CodeChain, err, "check role")
	}
	if !d.HasRole {
		d.Problems = append(d.Problems, fmt.Sprintf("%s does not hold %s", account, role))
	}
	return d, nil
}

// Diagnose runs the contract checks for this session's wallet.
func (c *Controller) Diagnose(ctx context.Context) (Diagnostics, error) {
	return Diagnose(ctx, c.wallet, c.deps.PublisherRole)
}
