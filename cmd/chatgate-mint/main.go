// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/chatgate/lib/chattoken"
	"github.com/bureau-foundation/chatgate/lib/process"
	"github.com/bureau-foundation/chatgate/lib/secret"
	"github.com/bureau-foundation/chatgate/lib/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, time.Now()); err != nil {
		process.Fatal(err)
	}
}

func run(args []string, stdout io.Writer, now time.Time) error {
	var (
		algorithm       string
		keyFile         string
		userID          string
		tenantID        string
		issuer          string
		audience        string
		tokenID         string
		ttl             time.Duration
		showFingerprint bool
		showVersion     bool
	)
	flagSet := pflag.NewFlagSet("chatgate-mint", pflag.ContinueOnError)
	flagSet.StringVar(&algorithm, "algorithm", "HS256", "JWT signing algorithm")
	flagSet.StringVar(&keyFile, "key-file", "", "HMAC secret file or PEM private key (required)")
	flagSet.StringVar(&keyFile, "secret-file", "", "alias for --key-file")
	flagSet.StringVar(&userID, "user", "", "sub claim (required)")
	flagSet.StringVar(&tenantID, "tenant", "", "tid claim (required)")
	flagSet.StringVar(&issuer, "issuer", "", "iss claim")
	flagSet.StringVar(&audience, "audience", "", "aud claim")
	flagSet.StringVar(&tokenID, "jti", "", "jti claim (default: random UUID)")
	flagSet.DurationVar(&ttl, "ttl", 15*time.Minute, "lifetime from now")
	flagSet.BoolVar(&showFingerprint, "fingerprint", false, "also print the revocation fingerprint")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return process.Usage(err)
	}

	if showVersion {
		fmt.Fprintf(stdout, "chatgate-mint %s\n", version.Info())
		return nil
	}

	var missing []string
	for flag, value := range map[string]string{"--key-file": keyFile, "--user": userID, "--tenant": tenantID} {
		if value == "" {
			missing = append(missing, flag)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return process.Usage(fmt.Errorf("required flags not set: %s", strings.Join(missing, ", ")))
	}
	if ttl <= 0 {
		return process.Usage(errors.New("--ttl must be positive"))
	}

	var material []byte
	if strings.HasPrefix(algorithm, "HS") {
		buffer, err := secret.ReadFile(keyFile)
		if err != nil {
			return err
		}
		defer buffer.Close()
		material = buffer.Bytes()
	} else {
		var err error
		if material, err = os.ReadFile(keyFile); err != nil {
			return err
		}
	}
	key, err := chattoken.ParseSigningKey(algorithm, material)
	if err != nil {
		return err
	}

	if tokenID == "" {
		tokenID = uuid.NewString()
	}
	claims := chattoken.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID: tenantID,
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}

	credential, err := chattoken.Mint(algorithm, key, claims)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, credential)
	if showFingerprint {
		fmt.Fprintln(stdout, chattoken.Fingerprint(credential))
	}
	return nil
}
