// Command devtoken mints an unsigned JWT for local development so requests can
// pass the auth middleware when AUTH_PROVIDER=dev.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/clearledger/taxflow/platform/go/auth/devtoken"
)

func main() {
	userID := flag.String("user-id", "", "user_id/sub/uid claim")
	email := flag.String("email", "", "email claim")
	companyID := flag.String("company-id", "", "companyId claim")
	isAdmin := flag.Bool("admin", false, "set isAdmin=true for admin role")
	expiresIn := flag.Duration("expires-in", time.Hour, "token lifetime (duration, e.g. 30m, 2h)")
	issuer := flag.String("issuer", "", "override iss (defaults to taxflow-dev)")

	flag.Parse()

	params := devtoken.Params{
		UserID:    strings.TrimSpace(*userID),
		Email:     strings.TrimSpace(*email),
		CompanyID: strings.TrimSpace(*companyID),
		IsAdmin:   *isAdmin,
		ExpiresIn: *expiresIn,
		Issuer:    strings.TrimSpace(*issuer),
	}

	token, err := devtoken.BuildUnsignedToken(params, time.Now().UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
