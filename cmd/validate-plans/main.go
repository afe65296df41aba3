package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/marcelsud/flowrelay/ratelimit"
)

/* validate-plans - Standalone CLI tool to validate plans.yaml
 * Usage: go run cmd/validate-plans/main.go [plans.yaml]
 * Exit codes: 0 = valid, 1 = invalid
 */

func main() {
	plansFile := "plans.yaml"
	if len(os.Args) > 1 {
		plansFile = os.Args[1]
	}

	fmt.Printf("Validating plans file: %s\n", plansFile)
	fmt.Println(strings.Repeat("-", 50))

	plans, err := ratelimit.LoadPlans(plansFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ VALIDATION FAILED\n\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ VALIDATION PASSED\n\n")
	fmt.Printf("Loaded %d plan(s):\n", len(plans))

	for i, name := range plans.Names() {
		fmt.Printf("\n%d. Plan: %s\n", i+1, name)

		actions := make([]string, 0, len(plans[name]))
		for action := range plans[name] {
			actions = append(actions, action)
		}
		sort.Strings(actions)

		for _, action := range actions {
			limit := plans[name][action]
			fmt.Printf("   %-20s %d calls / %s\n", action, limit.Calls, limit.Window)
		}
	}

	fmt.Printf("\n✓ All plans are valid!\n")
	os.Exit(0)
}
