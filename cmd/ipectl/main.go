// Command ipectl is a thin CLI façade over the IPE engine's compile,
// validate, evaluate, and benchmark operations. It carries no
// authorization logic of its own — every decision it prints comes from
// internal/lang and internal/adapter/outbound/policystore.
package main

import "github.com/ipe-systems/ipe/cmd/ipectl/cmd"

func main() {
	cmd.Execute()
}
