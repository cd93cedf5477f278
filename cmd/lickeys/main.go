// cmd/lickeys/main.go

// lickeys is the administrative tool for the license ledger: it issues new
// keys and provides monitoring, search, and revocation. It only consumes
// the Ledger contract and runs against the same database as the server.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gestionpro/license-server/internal/config"
	"github.com/gestionpro/license-server/internal/database"
	"github.com/gestionpro/license-server/internal/keygen"
	"github.com/gestionpro/license-server/internal/models"
	"github.com/gestionpro/license-server/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.Close(db)

	if err := database.RunMigrations(db); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	ledger := store.NewLedger(db)

	switch os.Args[1] {
	case "generate":
		runGenerate(ledger, os.Args[2:])
	case "status":
		runStatus(ledger)
	case "search":
		if len(os.Args) < 3 {
			fmt.Println("Usage: lickeys search <term>")
			os.Exit(1)
		}
		runSearch(ledger, os.Args[2])
	case "revoke":
		if len(os.Args) < 3 {
			fmt.Println("Usage: lickeys revoke <key>")
			os.Exit(1)
		}
		runRevoke(ledger, os.Args[2])
	case "help":
		usage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("lickeys - GestionPro license key administration")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  lickeys generate <count> [--email <email>] [--expires <months>] [--transfers <n>]")
	fmt.Println("  lickeys status                 Show ledger overview and suspicious activity")
	fmt.Println("  lickeys search <term>          Find a license by key substring")
	fmt.Println("  lickeys revoke <key>           Revoke a license (terminal)")
}

func runGenerate(ledger store.Ledger, args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: lickeys generate <count> [options]")
		os.Exit(1)
	}

	count := 0
	if _, err := fmt.Sscanf(args[0], "%d", &count); err != nil || count <= 0 {
		fmt.Println("Invalid license count")
		os.Exit(1)
	}

	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	email := fs.String("email", "", "customer email")
	expires := fs.Int("expires", 0, "expiration in months (0 = never)")
	transfers := fs.Int("transfers", 1, "allowed transfers")
	fs.Parse(args[1:])

	var expirationDate *time.Time
	if *expires > 0 {
		exp := time.Now().UTC().AddDate(0, *expires, 0)
		expirationDate = &exp
	}

	var customerEmail *string
	if *email != "" {
		customerEmail = email
	}

	issued := 0
	for i := 0; i < count; i++ {
		key, err := keygen.Generate()
		if err != nil {
			fmt.Printf("Key generation failed: %v\n", err)
			continue
		}

		if err := ledger.Issue(key, expirationDate, *transfers, customerEmail); err != nil {
			fmt.Printf("Failed to issue %s: %v\n", key, err)
			continue
		}

		issued++
		fmt.Printf("Issued: %s\n", key)
		if expirationDate != nil {
			fmt.Printf("  Expires: %s\n", expirationDate.Format("2006-01-02"))
		} else {
			fmt.Println("  Expires: never")
		}
		fmt.Printf("  Max transfers: %d\n", *transfers)
	}

	fmt.Printf("\n%d/%d licenses issued\n", issued, count)
}

func runStatus(ledger store.Ledger) {
	licenses, err := ledger.All()
	if err != nil {
		log.Fatal("Failed to read licenses:", err)
	}

	now := time.Now().UTC()
	var active, expired int
	for _, l := range licenses {
		if l.Status == models.LicenseStatusActive {
			active++
		}
		if l.ExpirationDate != nil && l.ExpirationDate.Before(now) {
			expired++
		}
	}

	fmt.Println("LICENSE LEDGER OVERVIEW")
	fmt.Printf("  Total licenses:    %d\n", len(licenses))
	fmt.Printf("  Active licenses:   %d\n", active)
	fmt.Printf("  Expired licenses:  %d\n", expired)
	fmt.Printf("  Inactive licenses: %d\n", len(licenses)-active-expired)
	fmt.Println()

	for _, l := range licenses {
		if l.Status != models.LicenseStatusActive {
			continue
		}
		fmt.Printf("  %s\n", l.Key)
		if l.MachineID != nil {
			fmt.Printf("    Machine: %s\n", *l.MachineID)
		}
		if l.ActivationDate != nil {
			fmt.Printf("    Activated: %s\n", l.ActivationDate.Format(time.RFC3339))
		}
		if l.LastValidation != nil {
			fmt.Printf("    Last validation: %s\n", l.LastValidation.Format(time.RFC3339))
		}
		fmt.Printf("    Validations: %d/%d\n", l.ValidationCount, l.MaxValidations)
		fmt.Printf("    Transfers: %d/%d\n", l.TransferCount, l.MaxTransfers)
		fmt.Println()
	}

	history, err := ledger.GlobalHistory(store.DefaultHistoryLimit)
	if err != nil {
		log.Fatal("Failed to read history:", err)
	}

	suspicious := 0
	for _, h := range history {
		if h.Action != models.ActionFraudAttempt && h.Action != models.ActionTransferLimitExceeded {
			continue
		}
		if suspicious == 0 {
			fmt.Println("RECENT SUSPICIOUS ACTIVITY")
		}
		suspicious++
		if suspicious > 10 {
			continue
		}
		fmt.Printf("  %s %s machine=%s ip=%s at %s\n",
			h.Action, h.LicenseKey, h.MachineID, h.IPAddress, h.Timestamp.Format(time.RFC3339))
	}
	if suspicious > 0 {
		fmt.Println()
	}

	printed := false
	for _, l := range licenses {
		if l.ExpirationDate == nil {
			continue
		}
		daysLeft := int(l.ExpirationDate.Sub(now).Hours() / 24)
		if daysLeft < 0 || daysLeft > 30 {
			continue
		}
		if !printed {
			fmt.Println("LICENSES EXPIRING WITHIN 30 DAYS")
			printed = true
		}
		fmt.Printf("  %s - %d day(s) left\n", l.Key, daysLeft)
	}
}

func runSearch(ledger store.Ledger, term string) {
	license, err := ledger.Search(term)
	if err != nil {
		log.Fatal("Search failed:", err)
	}
	if license == nil {
		fmt.Printf("No license found for: %s\n", term)
		return
	}

	fmt.Println("LICENSE DETAILS")
	fmt.Printf("  Key: %s\n", license.Key)
	fmt.Printf("  Status: %s\n", license.Status)
	fmt.Printf("  Machine: %s\n", strOrDash(license.MachineID))
	fmt.Printf("  Fingerprint: %s\n", strOrDash(license.HardwareFingerprint))
	fmt.Printf("  Activated: %s\n", timeOrDash(license.ActivationDate))
	fmt.Printf("  Last validation: %s\n", timeOrDash(license.LastValidation))
	fmt.Printf("  Validations: %d/%d\n", license.ValidationCount, license.MaxValidations)
	fmt.Printf("  Transfers: %d/%d\n", license.TransferCount, license.MaxTransfers)
	fmt.Printf("  Expires: %s\n", timeOrDash(license.ExpirationDate))
	fmt.Println()

	history, err := ledger.RecentHistory(license.Key, 20)
	if err != nil {
		log.Fatal("Failed to read history:", err)
	}
	if len(history) == 0 {
		return
	}

	fmt.Println("ACTIVITY HISTORY")
	for _, h := range history {
		mark := "FAIL"
		if h.Success {
			mark = "OK"
		}
		fmt.Printf("  [%s] %s machine=%s ip=%s at %s\n",
			mark, h.Action, h.MachineID, h.IPAddress, h.Timestamp.Format(time.RFC3339))
	}
}

func runRevoke(ledger store.Ledger, key string) {
	applied, err := ledger.Revoke(key)
	if err != nil {
		log.Fatal("Revocation failed:", err)
	}
	if applied == 0 {
		fmt.Printf("License %s not found or already revoked\n", key)
		return
	}

	if err := ledger.AppendHistory(key, "ADMIN", "ADMIN", models.ActionRevoked, true, ""); err != nil {
		log.Printf("Warning: failed to record revocation history: %v", err)
	}
	fmt.Printf("License %s revoked\n", key)
}

func strOrDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func timeOrDash(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
