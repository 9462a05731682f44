package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	httpmiddleware "github.com/wolfman30/hrconsult-assistant/internal/http/middleware"
	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

// Usage: admintoken -sub <operator> [-ttl 12h]
// Prints a bearer token for the /admin endpoints, signed with ADMIN_JWT_SECRET.
func main() {
	_ = godotenv.Load()
	logger := logging.New(os.Getenv("LOG_LEVEL"))

	if err := run(os.Args[1:], os.Getenv("ADMIN_JWT_SECRET"), time.Now(), os.Stdout); err != nil {
		logger.Error("admintoken failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string, secret string, now time.Time, out io.Writer) error {
	fs := flag.NewFlagSet("admintoken", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	subject := fs.String("sub", "", "operator name recorded in the token subject")
	ttl := fs.Duration("ttl", 12*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(secret) == "" {
		return errors.New("ADMIN_JWT_SECRET is required")
	}
	if strings.TrimSpace(*subject) == "" {
		return errors.New("-sub is required")
	}

	token, err := httpmiddleware.IssueAdminToken(secret, strings.TrimSpace(*subject), *ttl, now)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
