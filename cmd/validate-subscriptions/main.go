package main

import (
	"fmt"
	"os"

	"github.com/vasa-trade/webhook-engine/subscription"
)

/* validate-subscriptions - Standalone CLI tool to validate subscriptions.yaml
 * Usage: go run cmd/validate-subscriptions/main.go [subscriptions.yaml]
 * Exit codes: 0 = valid, 1 = invalid
 */

func main() {
	// Get subscriptions file path from args or use default
	subsFile := "subscriptions.yaml"
	if len(os.Args) > 1 {
		subsFile = os.Args[1]
	}

	fmt.Printf("Validating subscriptions file: %s\n", subsFile)

	subs, err := subscription.ParseSeedFile(subsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ VALIDATION FAILED\n\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ VALIDATION PASSED\n\n")
	fmt.Printf("Loaded %d subscription(s):\n", len(subs))

	for i, sub := range subs {
		fmt.Printf("\n%d. Subscription: %s (%s)\n", i+1, sub.ID, sub.Name)
		fmt.Printf("   URL:         %s %s\n", sub.Method, sub.URL)
		fmt.Printf("   Active:      %t\n", sub.IsActive)
		fmt.Printf("   Signed:      %t\n", sub.Secret != "")
		fmt.Printf("   Events:      ")
		for j, t := range sub.Events {
			if j > 0 {
				fmt.Print(", ")
			}
			fmt.Print(t)
		}
		fmt.Println()
		fmt.Printf("   Max Retries: %d\n", sub.RetryPolicy.MaxRetries)
		fmt.Printf("   Retry Delay: %s (x%.1f)\n", sub.RetryPolicy.RetryDelay, sub.RetryPolicy.BackoffMultiplier)
		fmt.Printf("   Timeout:     %s\n", sub.RetryPolicy.Timeout)

		if sub.Filters != nil {
			fmt.Printf("   Filters:     configured\n")
		}
		if sub.RateLimit.Enabled {
			fmt.Printf("   Rate Limit:  %d/min %d/hour\n",
				sub.RateLimit.MaxRequestsPerMinute, sub.RateLimit.MaxRequestsPerHour)
		}
	}

	fmt.Printf("\n✓ All subscriptions are valid!\n")
	os.Exit(0)
}
